package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voicewire/gateway/internal/archive"
	"github.com/voicewire/gateway/internal/pipeline"
	"github.com/voicewire/gateway/internal/session"
	"github.com/voicewire/gateway/internal/trace"
	"github.com/voicewire/gateway/internal/ws"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	// Recognizer backends
	recRouter := pipeline.NewRecognizerRouter(map[string]pipeline.Recognizer{
		"whisper": pipeline.NewWhisperRecognizer(cfg.whisperURL, cfg.asrPoolSize),
	}, "whisper")

	// Responder backends
	resBackends := map[string]pipeline.Responder{
		"ollama": pipeline.NewOllamaResponder(cfg.ollamaURL, cfg.ollamaModel, cfg.systemPrompt, cfg.maxTokens, cfg.llmPoolSize),
	}
	if cfg.openaiAPIKey != "" {
		resBackends["openai"] = pipeline.NewOpenAIResponder(cfg.openaiAPIKey, cfg.openaiURL, cfg.openaiModel, cfg.systemPrompt, cfg.maxTokens, cfg.llmPoolSize)
	}
	resRouter := pipeline.NewResponderRouter(resBackends, "ollama")

	// Synthesizer backends
	ttsHTTP := pipeline.NewPooledHTTPClient(cfg.ttsPoolSize, 30*time.Second)
	synBackends := map[string]pipeline.Synthesizer{
		"piper": pipeline.NewPiperSynthesizer(cfg.piperURL, cfg.piperVoice, ttsHTTP),
	}
	if cfg.kokoroURL != "" {
		synBackends["kokoro"] = pipeline.NewOpenAISynthesizer(cfg.kokoroURL, "kokoro", "af_heart", ttsHTTP)
	}
	synRouter := pipeline.NewSynthesizerRouter(synBackends, "piper")

	backends := session.Backends{
		Recognizer:  pipeline.BoundRecognizer{Router: recRouter, Engine: cfg.recognizerEngine},
		Responder:   pipeline.BoundResponder{Router: resRouter, Engine: cfg.responderEngine},
		Synthesizer: pipeline.BoundSynthesizer{Router: synRouter, Engine: cfg.synthesizerEngine},
	}

	var sink *archive.Sink
	if cfg.archiveDir != "" {
		var err error
		sink, err = archive.NewSink(cfg.archiveDir, slog.Default())
		if err != nil {
			slog.Error("archive init failed", "dir", cfg.archiveDir, "error", err)
			os.Exit(1)
		}
		backends.Archiver = sink
		slog.Info("archive enabled", "dir", cfg.archiveDir)
	}

	var traceStore *trace.Store
	var tracer *trace.Tracer
	if cfg.traceDBURL != "" {
		var err error
		traceStore, err = trace.Open(cfg.traceDBURL)
		if err != nil {
			slog.Error("trace store init failed", "error", err)
			os.Exit(1)
		}
		tracer = trace.NewTracer(traceStore)
		backends.Tracer = tracer
		slog.Info("tracing enabled")
	}

	handler := ws.NewHandler(cfg.session, backends, cfg.maxSessions, slog.Default())

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		recRouter:  recRouter,
		resRouter:  resRouter,
		synRouter:  synRouter,
		wsHandler:  handler,
		traceStore: traceStore,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "max_sessions", cfg.maxSessions)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	if sink != nil {
		sink.Close()
	}
	if tracer != nil {
		tracer.Close()
	}
	if traceStore != nil {
		traceStore.Close()
	}
	slog.Info("gateway stopped")
}
