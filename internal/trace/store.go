package trace

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 100

// Store persists session traces to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the trace database at connStr and applies migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session and prunes the oldest beyond the cap.
func (s *Store) CreateSession(id, device string, sampleRate int, format string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, device, sample_rate, format, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, device, sampleRate, format, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM sessions WHERE id NOT IN (SELECT id FROM sessions ORDER BY started_at DESC LIMIT $1)`,
		maxSessions,
	)
	return err
}

// EndSession stamps the session's end time and close reason.
func (s *Store) EndSession(id, reason string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = $1, reason = $2 WHERE id = $3`,
		time.Now().UTC(), reason, id,
	)
	return err
}

// CreateTurn inserts a closed turn.
func (s *Store) CreateTurn(t Turn) error {
	_, err := s.db.Exec(
		`INSERT INTO turns (id, session_id, turn_id, started_at, ended_at, chunks, voiced_ratio, max_rms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.SessionID, t.TurnID, t.StartedAt.UTC(), t.EndedAt.UTC(),
		t.Chunks, t.VoicedRatio, t.MaxRMS,
	)
	return err
}

// CreateReply inserts a finished reply.
func (s *Store) CreateReply(r Reply) error {
	_, err := s.db.Exec(
		`INSERT INTO replies (id, session_id, turn_id, state, transcript, response, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SessionID, r.TurnID, r.State, r.Transcript, r.Response, r.RecordedAt.UTC(),
	)
	return err
}

// ListSessions returns sessions newest first with turn counts.
func (s *Store) ListSessions(limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT s.id, s.device, s.sample_rate, s.format, s.started_at, s.ended_at, s.reason, COUNT(t.id) as turn_count
		FROM sessions s
		LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var endedAt sql.NullTime
		var reason sql.NullString
		if err = rows.Scan(&sess.ID, &sess.Device, &sess.SampleRate, &sess.Format,
			&sess.StartedAt, &endedAt, &reason, &sess.TurnCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			sess.EndedAt = &endedAt.Time
		}
		sess.Reason = reason.String
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetSession returns one session with its turns and replies.
func (s *Store) GetSession(id string) (*Session, []Turn, []Reply, error) {
	var sess Session
	var endedAt sql.NullTime
	var reason sql.NullString
	err := s.db.QueryRow(
		`SELECT id, device, sample_rate, format, started_at, ended_at, reason FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Device, &sess.SampleRate, &sess.Format, &sess.StartedAt, &endedAt, &reason)
	if err != nil {
		return nil, nil, nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	sess.Reason = reason.String

	rows, err := s.db.Query(
		`SELECT id, session_id, turn_id, started_at, ended_at, chunks, voiced_ratio, max_rms
		 FROM turns WHERE session_id = $1 ORDER BY turn_id ASC`, id)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err = rows.Scan(&t.ID, &t.SessionID, &t.TurnID, &t.StartedAt, &t.EndedAt,
			&t.Chunks, &t.VoicedRatio, &t.MaxRMS); err != nil {
			return nil, nil, nil, err
		}
		turns = append(turns, t)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	rrows, err := s.db.Query(
		`SELECT id, session_id, turn_id, state, transcript, response, recorded_at
		 FROM replies WHERE session_id = $1 ORDER BY turn_id ASC`, id)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rrows.Close()

	var replies []Reply
	for rrows.Next() {
		var r Reply
		if err = rrows.Scan(&r.ID, &r.SessionID, &r.TurnID, &r.State,
			&r.Transcript, &r.Response, &r.RecordedAt); err != nil {
			return nil, nil, nil, err
		}
		replies = append(replies, r)
	}
	return &sess, turns, replies, rrows.Err()
}
