package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shriramnat/ai-decision-council/internal/domain"
)

// SQLiteStore implements Store using a single SQLite file with WAL journal
// mode, following the teacher pack's ashureev-shsh-labs/internal/store
// pattern (busy timeout, MkdirAll for the parent dir, raw migration SQL).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite database at path and applies
// the schema migrations.
func NewSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc sqlite: single writer avoids SQLITE_BUSY under WAL

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_email TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			stop_reason TEXT NOT NULL,
			max_iterations INTEGER NOT NULL,
			current_iteration INTEGER NOT NULL,
			feedback_version INTEGER NOT NULL,
			stop_marker TEXT NOT NULL,
			stop_on_reviewer_approved INTEGER NOT NULL,
			needs_final_iteration INTEGER NOT NULL DEFAULT 0,
			run_mode TEXT NOT NULL,
			topic TEXT NOT NULL,
			final_content TEXT NOT NULL,
			creator_config_json TEXT NOT NULL,
			reviewers_config_json TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			author TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			content TEXT NOT NULL,
			model_used TEXT NOT NULL,
			reviewer_display_name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_iteration ON messages(session_id, iteration);`,
		`CREATE TABLE IF NOT EXISTS feedback_rounds (
			feedback_round_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			iteration INTEGER NOT NULL,
			draft_content TEXT NOT NULL,
			user_feedback TEXT NOT NULL DEFAULT '',
			user_feedback_at TEXT,
			all_reviewers_approved INTEGER NOT NULL,
			reviewer_summaries_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_rounds_session_iteration ON feedback_rounds(session_id, iteration);`,
		`CREATE TABLE IF NOT EXISTS configured_models (
			id TEXT PRIMARY KEY,
			user_email TEXT NOT NULL,
			model_name TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL,
			provider TEXT NOT NULL,
			encrypted_key BLOB
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_configured_models_user_model ON configured_models(user_email, model_name);`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id TEXT PRIMARY KEY,
			native_agent_model_id TEXT NOT NULL DEFAULT ''
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	if sess.FeedbackVersion < 1 {
		sess.FeedbackVersion = 1 // a session's feedback version starts at 1
	}
	creatorJSON, err := json.Marshal(sess.CreatorConfig)
	if err != nil {
		return err
	}
	reviewersJSON, err := json.Marshal(sess.ReviewersConfig)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_email, name, status, stop_reason, max_iterations, current_iteration,
			feedback_version, stop_marker, stop_on_reviewer_approved, needs_final_iteration, run_mode, topic, final_content,
			creator_config_json, reviewers_config_json, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.UserEmail, sess.Name, sess.Status, sess.StopReason, sess.MaxIterations, sess.CurrentIteration,
		sess.FeedbackVersion, sess.StopMarker, boolToInt(sess.StopOnReviewerApproved), boolToInt(sess.NeedsFinalIteration), sess.RunMode,
		sess.Topic, sess.FinalContent, string(creatorJSON), string(reviewersJSON),
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	return err
}

func (s *SQLiteStore) scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var sess domain.Session
	var stopOnApproved, needsFinalIteration int
	var creatorJSON, reviewersJSON, createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.UserEmail, &sess.Name, &sess.Status, &sess.StopReason, &sess.MaxIterations,
		&sess.CurrentIteration, &sess.FeedbackVersion, &sess.StopMarker, &stopOnApproved, &needsFinalIteration, &sess.RunMode,
		&sess.Topic, &sess.FinalContent, &creatorJSON, &reviewersJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.StopOnReviewerApproved = stopOnApproved != 0
	sess.NeedsFinalIteration = needsFinalIteration != 0
	if err := json.Unmarshal([]byte(creatorJSON), &sess.CreatorConfig); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reviewersJSON), &sess.ReviewersConfig); err != nil {
		return nil, err
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_email, name, status, stop_reason, max_iterations, current_iteration, feedback_version,
			stop_marker, stop_on_reviewer_approved, needs_final_iteration, run_mode, topic, final_content,
			creator_config_json, reviewers_config_json, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	sess, err := s.scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, name, status, stop_reason, max_iterations, current_iteration, feedback_version,
			stop_marker, stop_on_reviewer_approved, needs_final_iteration, run_mode, topic, final_content,
			creator_config_json, reviewers_config_json, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *domain.Session) error {
	creatorJSON, err := json.Marshal(sess.CreatorConfig)
	if err != nil {
		return err
	}
	reviewersJSON, err := json.Marshal(sess.ReviewersConfig)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET name=?, status=?, stop_reason=?, max_iterations=?, current_iteration=?,
			feedback_version=?, stop_marker=?, stop_on_reviewer_approved=?, needs_final_iteration=?, run_mode=?, topic=?,
			final_content=?, creator_config_json=?, reviewers_config_json=?, updated_at=?
		WHERE id=?`,
		sess.Name, sess.Status, sess.StopReason, sess.MaxIterations, sess.CurrentIteration,
		sess.FeedbackVersion, sess.StopMarker, boolToInt(sess.StopOnReviewerApproved), boolToInt(sess.NeedsFinalIteration), sess.RunMode,
		sess.Topic, sess.FinalContent, string(creatorJSON), string(reviewersJSON),
		formatTime(sess.UpdatedAt), sess.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM feedback_rounds WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// --- Messages ---

func (s *SQLiteStore) AppendMessage(ctx context.Context, m *domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, session_id, role, author, iteration, content, model_used,
			reviewer_display_name, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		m.MessageID, m.SessionID, m.Role, m.Author, m.Iteration, m.Content, m.ModelUsed,
		m.ReviewerDisplayName, formatTime(m.CreatedAt))
	return err
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		var createdAt string
		if err := rows.Scan(&m.MessageID, &m.SessionID, &m.Role, &m.Author, &m.Iteration, &m.Content,
			&m.ModelUsed, &m.ReviewerDisplayName, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	return s.queryMessages(ctx, `
		SELECT message_id, session_id, role, author, iteration, content, model_used,
			reviewer_display_name, created_at
		FROM messages WHERE session_id = ? ORDER BY iteration ASC, created_at ASC`, sessionID)
}

func (s *SQLiteStore) ListMessagesByAuthor(ctx context.Context, sessionID, author string) ([]*domain.Message, error) {
	return s.queryMessages(ctx, `
		SELECT message_id, session_id, role, author, iteration, content, model_used,
			reviewer_display_name, created_at
		FROM messages WHERE session_id = ? AND author = ? ORDER BY iteration ASC, created_at ASC`,
		sessionID, author)
}

func (s *SQLiteStore) DeleteMessagesByAuthor(ctx context.Context, sessionID, author string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ? AND author = ?`, sessionID, author)
	return err
}

// --- Feedback rounds ---

func (s *SQLiteStore) CreateFeedbackRound(ctx context.Context, f *domain.FeedbackRound) error {
	summariesJSON, err := json.Marshal(f.ReviewerSummaries)
	if err != nil {
		return err
	}
	var userFeedbackAt any
	if f.UserFeedbackAt != nil {
		userFeedbackAt = formatTime(*f.UserFeedbackAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback_rounds (feedback_round_id, session_id, iteration, draft_content,
			user_feedback, user_feedback_at, all_reviewers_approved, reviewer_summaries_json, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		f.FeedbackRoundID, f.SessionID, f.Iteration, f.DraftContent, f.UserFeedback, userFeedbackAt,
		boolToInt(f.AllReviewersApproved), string(summariesJSON), formatTime(f.CreatedAt))
	if err != nil && isUniqueConstraintErr(err) {
		return ErrConflict
	}
	return err
}

func (s *SQLiteStore) scanFeedbackRound(row interface{ Scan(...any) error }) (*domain.FeedbackRound, error) {
	var f domain.FeedbackRound
	var allApproved int
	var summariesJSON, createdAt string
	var userFeedbackAt sql.NullString
	err := row.Scan(&f.FeedbackRoundID, &f.SessionID, &f.Iteration, &f.DraftContent, &f.UserFeedback,
		&userFeedbackAt, &allApproved, &summariesJSON, &createdAt)
	if err != nil {
		return nil, err
	}
	f.AllReviewersApproved = allApproved != 0
	if err := json.Unmarshal([]byte(summariesJSON), &f.ReviewerSummaries); err != nil {
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	if userFeedbackAt.Valid {
		t := parseTime(userFeedbackAt.String)
		f.UserFeedbackAt = &t
	}
	return &f, nil
}

func (s *SQLiteStore) ListFeedbackRounds(ctx context.Context, sessionID string) ([]*domain.FeedbackRound, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feedback_round_id, session_id, iteration, draft_content, user_feedback,
			user_feedback_at, all_reviewers_approved, reviewer_summaries_json, created_at
		FROM feedback_rounds WHERE session_id = ? ORDER BY iteration ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.FeedbackRound
	for rows.Next() {
		f, err := s.scanFeedbackRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetFeedbackRound(ctx context.Context, sessionID string, iteration int) (*domain.FeedbackRound, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT feedback_round_id, session_id, iteration, draft_content, user_feedback,
			user_feedback_at, all_reviewers_approved, reviewer_summaries_json, created_at
		FROM feedback_rounds WHERE session_id = ? AND iteration = ?`, sessionID, iteration)
	f, err := s.scanFeedbackRound(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *SQLiteStore) AttachUserFeedback(ctx context.Context, sessionID string, iteration int, text string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feedback_rounds SET user_feedback = ?, user_feedback_at = ?
		WHERE session_id = ? AND iteration = ?`, text, formatTime(at), sessionID, iteration)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Configured models ---

func (s *SQLiteStore) ListModels(ctx context.Context, userEmail string) ([]*domain.ConfiguredModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, model_name, display_name, endpoint, provider, encrypted_key
		FROM configured_models WHERE user_email = ? ORDER BY model_name ASC`, userEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ConfiguredModel
	for rows.Next() {
		m, err := scanConfiguredModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConfiguredModel(row interface{ Scan(...any) error }) (*domain.ConfiguredModel, error) {
	var m domain.ConfiguredModel
	if err := row.Scan(&m.ID, &m.UserEmail, &m.ModelName, &m.DisplayName, &m.Endpoint, &m.Provider, &m.EncryptedKey); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) GetModel(ctx context.Context, userEmail, modelName string) (*domain.ConfiguredModel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_email, model_name, display_name, endpoint, provider, encrypted_key
		FROM configured_models WHERE user_email = ? AND model_name = ?`, userEmail, modelName)
	m, err := scanConfiguredModel(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) AddModel(ctx context.Context, m *domain.ConfiguredModel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO configured_models (id, user_email, model_name, display_name, endpoint, provider, encrypted_key)
		VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.UserEmail, m.ModelName, m.DisplayName, m.Endpoint, m.Provider, m.EncryptedKey)
	if err != nil && isUniqueConstraintErr(err) {
		return ErrConflict
	}
	return err
}

// UpdateModel loads the existing row for (userEmail, id), applies mutate,
// and writes it back inside a transaction, translating a resulting unique
// violation (i.e. mutate renamed ModelName to one that collides) into
// ErrConflict.
func (s *SQLiteStore) UpdateModel(ctx context.Context, userEmail, id string, mutate func(*domain.ConfiguredModel) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, user_email, model_name, display_name, endpoint, provider, encrypted_key
		FROM configured_models WHERE user_email = ? AND id = ?`, userEmail, id)
	m, err := scanConfiguredModel(row)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := mutate(m); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE configured_models SET model_name=?, display_name=?, endpoint=?, provider=?, encrypted_key=?
		WHERE user_email=? AND id=?`,
		m.ModelName, m.DisplayName, m.Endpoint, m.Provider, m.EncryptedKey, userEmail, id)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrConflict
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteModel(ctx context.Context, userEmail, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM configured_models WHERE user_email = ? AND id = ?`, userEmail, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- User settings ---

func (s *SQLiteStore) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_id, native_agent_model_id FROM user_settings WHERE user_id = ?`, userID)
	var u domain.UserSettings
	if err := row.Scan(&u.UserID, &u.NativeAgentModelID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) PutUserSettings(ctx context.Context, u *domain.UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, native_agent_model_id) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET native_agent_model_id = excluded.native_agent_model_id`,
		u.UserID, u.NativeAgentModelID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces SQLite's own message text; matching on it
	// is the same approach the ashureev-shsh-labs teacher pack uses for
	// SQLITE_BUSY detection (internal/container/ttl.go).
	msg := err.Error()
	return containsAny(msg, "UNIQUE constraint failed", "constraint failed: UNIQUE")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
