package main

import (
	"os"
	"strconv"
	"time"

	"github.com/voicewire/gateway/internal/session"
	"github.com/voicewire/gateway/internal/turn"
)

const defaultSystemPrompt = "You are a helpful voice assistant. Keep answers short and conversational; they will be read aloud."

type config struct {
	port string

	whisperURL  string
	asrPoolSize int

	ollamaURL    string
	ollamaModel  string
	openaiAPIKey string
	openaiURL    string
	openaiModel  string
	systemPrompt string
	maxTokens    int
	llmPoolSize  int

	piperURL    string
	piperVoice  string
	kokoroURL   string
	ttsPoolSize int

	recognizerEngine  string
	responderEngine   string
	synthesizerEngine string

	maxSessions int
	archiveDir  string
	traceDBURL  string

	session session.Config
}

func loadConfig() config {
	seg := turn.DefaultSegmenterConfig()
	seg.Detector.Threshold = envFloat("VAD_THRESHOLD", seg.Detector.Threshold)
	seg.Detector.OnsetChunks = envInt("VAD_ONSET_CHUNKS", seg.Detector.OnsetChunks)
	seg.Detector.ReleaseChunks = envInt("VAD_RELEASE_CHUNKS", seg.Detector.ReleaseChunks)
	seg.PreRollChunks = envInt("VAD_PREROLL_CHUNKS", seg.PreRollChunks)

	reply := session.DefaultReplyConfig()
	reply.MinTurnDuration = envDuration("MIN_TURN_MS", reply.MinTurnDuration)
	reply.MinVoicedRatio = envFloat("MIN_VOICED_RATIO", reply.MinVoicedRatio)
	reply.MinPeakRMS = envFloat("MIN_PEAK_RMS", reply.MinPeakRMS)
	reply.CancelGrace = envDuration("CANCEL_GRACE_MS", reply.CancelGrace)
	reply.MaxHistory = envInt("MAX_HISTORY", reply.MaxHistory)

	sess := session.DefaultConfig()
	sess.Segmenter = seg
	sess.Reply = reply
	sess.NegotiationTimeout = envDuration("NEGOTIATION_TIMEOUT_MS", sess.NegotiationTimeout)
	sess.IdleTimeout = envDuration("IDLE_TIMEOUT_MS", sess.IdleTimeout)
	sess.DrainTimeout = envDuration("DRAIN_TIMEOUT_MS", sess.DrainTimeout)

	return config{
		port: envStr("GATEWAY_PORT", "8000"),

		whisperURL:  envStr("WHISPER_URL", "http://localhost:8080"),
		asrPoolSize: envInt("ASR_POOL_SIZE", 50),

		ollamaURL:    envStr("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:  envStr("OLLAMA_MODEL", "llama3.2:3b"),
		openaiAPIKey: envStr("OPENAI_API_KEY", ""),
		openaiURL:    envStr("OPENAI_URL", "https://api.openai.com"),
		openaiModel:  envStr("OPENAI_MODEL", "gpt-4o-mini"),
		systemPrompt: envStr("LLM_SYSTEM_PROMPT", defaultSystemPrompt),
		maxTokens:    envInt("LLM_MAX_TOKENS", 150),
		llmPoolSize:  envInt("LLM_POOL_SIZE", 50),

		piperURL:    envStr("PIPER_URL", "http://localhost:5100"),
		piperVoice:  envStr("PIPER_VOICE", "en_US-lessac-medium"),
		kokoroURL:   envStr("KOKORO_URL", ""),
		ttsPoolSize: envInt("TTS_POOL_SIZE", 50),

		recognizerEngine:  envStr("ASR_ENGINE", "whisper"),
		responderEngine:   envStr("LLM_ENGINE", "ollama"),
		synthesizerEngine: envStr("TTS_ENGINE", "piper"),

		maxSessions: envInt("MAX_SESSIONS", 64),
		archiveDir:  envStr("ARCHIVE_DIR", ""),
		traceDBURL:  envStr("TRACE_DB_URL", ""),

		session: sess,
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

// envDuration reads a millisecond count.
func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	ms, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
