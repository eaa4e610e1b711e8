package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for materials, links,
// sessions, reviews, and the background job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "mentora.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database handle for read-only collaborators.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// violation involving the given column or index name. The modernc driver
// exposes constraint failures only through the error message.
func isUniqueViolation(err error, needle string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, needle)
}

// --- Materials ---

// CreateMaterial inserts a new material in status "processing".
func (s *Store) CreateMaterial(m Material) error {
	status := m.Status
	if status == "" {
		status = MaterialProcessing
	}
	_, err := s.db.Exec(`
		INSERT INTO materials (id, persona_id, source_name, extracted_text, embedding, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.PersonaID, m.SourceName, nullString(m.ExtractedText), nullBlob(encodeFloat32s(m.Embedding)),
		string(status), nullString(m.ErrorMessage), m.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetMaterial returns one material by ID.
func (s *Store) GetMaterial(id string) (Material, error) {
	row := s.db.QueryRow(`
		SELECT id, persona_id, source_name, extracted_text, embedding, status, error_message, created_at
		FROM materials WHERE id = ?`, id)
	return scanMaterial(row)
}

// MarkMaterialReady records the extraction result: text plus embedding,
// status "ready". Only materials still in "processing" are updated; a
// material that already reached a terminal status is left untouched.
func (s *Store) MarkMaterialReady(id, text string, embedding []float32) error {
	res, err := s.db.Exec(`
		UPDATE materials SET extracted_text = ?, embedding = ?, status = ?, error_message = NULL
		WHERE id = ? AND status = ?`,
		text, encodeFloat32s(embedding), string(MaterialReady), id, string(MaterialProcessing),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkMaterialFailed records an extraction failure on the material row.
func (s *Store) MarkMaterialFailed(id, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE materials SET status = ?, error_message = ? WHERE id = ? AND status = ?`,
		string(MaterialFailed), errMsg, id, string(MaterialProcessing),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListReadyMaterials returns all ready materials for a persona, newest
// first, with embeddings decoded. Ordering matters: the retrieval engine
// breaks similarity ties by recency.
func (s *Store) ListReadyMaterials(ctx context.Context, personaID string) ([]Material, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, persona_id, source_name, extracted_text, embedding, status, error_message, created_at
		FROM materials WHERE persona_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC`, personaID, string(MaterialReady))
	if err != nil {
		return nil, fmt.Errorf("querying ready materials: %w", err)
	}
	defer rows.Close()
	return collectMaterials(rows)
}

// ListMaterials returns all materials for a persona regardless of status,
// newest first.
func (s *Store) ListMaterials(personaID string) ([]Material, error) {
	rows, err := s.db.Query(`
		SELECT id, persona_id, source_name, extracted_text, embedding, status, error_message, created_at
		FROM materials WHERE persona_id = ? ORDER BY created_at DESC, id DESC`, personaID)
	if err != nil {
		return nil, fmt.Errorf("querying materials: %w", err)
	}
	defer rows.Close()
	return collectMaterials(rows)
}

// DeleteMaterial removes a material by ID.
func (s *Store) DeleteMaterial(id string) error {
	res, err := s.db.Exec("DELETE FROM materials WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (Material, error) {
	var m Material
	var text, errMsg sql.NullString
	var blob []byte
	var status, createdAt string
	err := row.Scan(&m.ID, &m.PersonaID, &m.SourceName, &text, &blob, &status, &errMsg, &createdAt)
	if err == sql.ErrNoRows {
		return Material{}, ErrNotFound
	}
	if err != nil {
		return Material{}, err
	}
	m.ExtractedText = text.String
	m.ErrorMessage = errMsg.String
	m.Status = MaterialStatus(status)
	if len(blob) > 0 {
		m.Embedding, err = decodeFloat32s(blob)
		if err != nil {
			return Material{}, fmt.Errorf("decoding embedding for %s: %w", m.ID, err)
		}
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Material{}, fmt.Errorf("parsing created_at for %s: %w", m.ID, err)
	}
	m.CreatedAt = t
	return m, nil
}

func collectMaterials(rows *sql.Rows) ([]Material, error) {
	var materials []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// --- Links ---

// CreateLink inserts a link. Returns ErrDuplicateLink if the persona
// already has a link with the same URL.
func (s *Store) CreateLink(l Link) error {
	_, err := s.db.Exec(`
		INSERT INTO links (id, persona_id, url, title, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.PersonaID, l.URL, l.Title, nullString(l.Description),
		l.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueViolation(err, "links.") {
		return ErrDuplicateLink
	}
	return err
}

// ListLinks returns all links for a persona, newest first.
func (s *Store) ListLinks(ctx context.Context, personaID string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, persona_id, url, title, description, created_at
		FROM links WHERE persona_id = ? ORDER BY created_at DESC, id DESC`, personaID)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		var desc sql.NullString
		var createdAt string
		if err := rows.Scan(&l.ID, &l.PersonaID, &l.URL, &l.Title, &desc, &createdAt); err != nil {
			return nil, err
		}
		l.Description = desc.String
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", l.ID, err)
		}
		l.CreatedAt = t
		links = append(links, l)
	}
	return links, rows.Err()
}

// DeleteLink removes a link by ID.
func (s *Store) DeleteLink(id string) error {
	res, err := s.db.Exec("DELETE FROM links WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- Sessions ---

// CreateSession inserts a new active session. Returns
// ErrActiveSessionExists if the (persona, learner) pair already has one;
// the partial unique index makes this check atomic with the insert.
func (s *Store) CreateSession(sess Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, persona_id, learner_id, status, started_at, escalated)
		VALUES (?, ?, ?, ?, ?, 0)`,
		sess.ID, sess.PersonaID, sess.LearnerID, string(SessionActive),
		sess.StartedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueViolation(err, "sessions.") {
		return ErrActiveSessionExists
	}
	return err
}

// GetSession returns one session by ID.
func (s *Store) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(`
		SELECT id, persona_id, learner_id, status, started_at, ended_at, duration_minutes, cost_minor, escalated
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT id, persona_id, learner_id, status, started_at, ended_at, duration_minutes, cost_minor, escalated
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// FinalizeSession transitions an active session to a terminal status,
// setting ended_at, duration and cost together. Returns false (no error)
// if the session was not active, so repeated end/escalate calls are
// idempotent no-ops.
func (s *Store) FinalizeSession(id string, status SessionStatus, endedAt time.Time, durationMinutes, costMinor int, escalated bool) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finalize to non-terminal status %q", status)
	}
	esc := 0
	if escalated {
		esc = 1
	}
	res, err := s.db.Exec(`
		UPDATE sessions SET status = ?, ended_at = ?, duration_minutes = ?, cost_minor = ?, escalated = ?
		WHERE id = ? AND status = ?`,
		string(status), endedAt.UTC().Format(time.RFC3339), durationMinutes, costMinor, esc,
		id, string(SessionActive),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var status, startedAt string
	var endedAt sql.NullString
	var duration, cost sql.NullInt64
	var escalated int
	err := row.Scan(&sess.ID, &sess.PersonaID, &sess.LearnerID, &status, &startedAt, &endedAt, &duration, &cost, &escalated)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	sess.Status = SessionStatus(status)
	sess.Escalated = escalated != 0
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parsing started_at for %s: %w", sess.ID, err)
	}
	sess.StartedAt = t
	if endedAt.Valid {
		e, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parsing ended_at for %s: %w", sess.ID, err)
		}
		sess.EndedAt = &e
	}
	if duration.Valid {
		d := int(duration.Int64)
		sess.DurationMinutes = &d
	}
	if cost.Valid {
		c := int(cost.Int64)
		sess.CostMinor = &c
	}
	return sess, nil
}

// --- Turns ---

// AppendTurn appends a turn to a session's transcript, assigning the next
// sequence number. Returns ErrNotFound if the session does not exist and
// ErrSessionNotActive if it has reached a terminal status. The status
// check, sequence assignment and insert run in one transaction so
// concurrent appends cannot lose or reorder turns.
func (s *Store) AppendTurn(sessionID, role, content string, at time.Time) (Turn, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Turn{}, fmt.Errorf("beginning append transaction: %w", err)
	}

	var status string
	err = tx.QueryRow("SELECT status FROM sessions WHERE id = ?", sessionID).Scan(&status)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return Turn{}, ErrNotFound
	}
	if err != nil {
		tx.Rollback()
		return Turn{}, fmt.Errorf("checking session status: %w", err)
	}
	if SessionStatus(status) != SessionActive {
		tx.Rollback()
		return Turn{}, ErrSessionNotActive
	}

	var seq int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?", sessionID,
	).Scan(&seq); err != nil {
		tx.Rollback()
		return Turn{}, fmt.Errorf("assigning turn sequence: %w", err)
	}

	turn := Turn{
		SessionID: sessionID,
		Seq:       seq,
		Role:      role,
		Content:   content,
		CreatedAt: at.UTC(),
	}
	if _, err := tx.Exec(`
		INSERT INTO turns (session_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		turn.SessionID, turn.Seq, turn.Role, turn.Content, turn.CreatedAt.Format(time.RFC3339),
	); err != nil {
		tx.Rollback()
		return Turn{}, fmt.Errorf("inserting turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Turn{}, fmt.Errorf("committing turn: %w", err)
	}
	return turn, nil
}

// ListTurns returns a session's transcript in sequence order.
func (s *Store) ListTurns(sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT session_id, seq, role, content, created_at
		FROM turns WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing turn created_at: %w", err)
		}
		t.CreatedAt = ts
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// --- Reviews ---

// CreateReview inserts a review. Returns ErrDuplicateReview if the session
// already has one; the UNIQUE(session_id) constraint makes the check
// atomic with the insert.
func (s *Store) CreateReview(r Review) error {
	_, err := s.db.Exec(`
		INSERT INTO reviews (id, session_id, reviewer_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.ReviewerID, r.Rating, nullString(r.Comment),
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueViolation(err, "reviews.") {
		return ErrDuplicateReview
	}
	return err
}

// GetReviewBySession returns the review for a session, if any.
func (s *Store) GetReviewBySession(sessionID string) (Review, error) {
	var r Review
	var comment sql.NullString
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, session_id, reviewer_id, rating, comment, created_at
		FROM reviews WHERE session_id = ?`, sessionID,
	).Scan(&r.ID, &r.SessionID, &r.ReviewerID, &r.Rating, &comment, &createdAt)
	if err == sql.ErrNoRows {
		return Review{}, ErrNotFound
	}
	if err != nil {
		return Review{}, err
	}
	r.Comment = comment.String
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Review{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t
	return r, nil
}

// --- Jobs ---

// EnqueueJob adds a job to the queue.
func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob atomically claims the oldest runnable pending job of one of
// the given types. Returns nil if nothing is runnable.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.Attempts++
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after: %w", err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &j, nil
}

// CompleteJob marks a running job as completed.
func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FailJob records a job failure. Jobs with attempts remaining return to
// pending with a 30s delay; exhausted jobs are marked failed.
func (s *Store) FailJob(id string, errMsg string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE jobs SET
			status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			run_after = ?,
			last_error = ?,
			updated_at = ?
		WHERE id = ?`,
		now.Add(30*time.Second).Format(time.RFC3339), errMsg, now.Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- helpers ---

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a float32 slice.
// Returns an error if the byte slice length is not a multiple of 4
// (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
