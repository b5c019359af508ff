// Package storage provides SQLite-backed persistence for alerts, trigger
// history, notification preferences, and research runs.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nocliffcapital/alithos/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db          *sql.DB
	maxTriggers int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/alithos/data.db.
func New(maxTriggers int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "alithos", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxTriggers: maxTriggers}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			market_id        TEXT,
			conditions       TEXT NOT NULL,
			actions          TEXT NOT NULL,
			is_active        INTEGER NOT NULL DEFAULT 1,
			cooldown_minutes INTEGER NOT NULL DEFAULT 0,
			last_triggered   INTEGER,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alert_triggers (
			id           TEXT PRIMARY KEY,
			alert_id     TEXT NOT NULL,
			alert_name   TEXT NOT NULL,
			market_id    TEXT,
			triggered_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triggers_at ON alert_triggers(triggered_at DESC)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			browser     INTEGER NOT NULL DEFAULT 1,
			email       INTEGER NOT NULL DEFAULT 0,
			webhook     INTEGER NOT NULL DEFAULT 0,
			webhook_url TEXT NOT NULL DEFAULT '',
			user_email  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS research_runs (
			id           TEXT PRIMARY KEY,
			market_id    TEXT NOT NULL,
			question     TEXT NOT NULL,
			verdict      TEXT NOT NULL,
			prob_yes     REAL NOT NULL,
			prob_no      REAL NOT NULL,
			prob_unknown REAL NOT NULL,
			confidence   REAL NOT NULL,
			explanation  TEXT NOT NULL,
			source_count INTEGER NOT NULL,
			started_at   INTEGER NOT NULL,
			completed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_market ON research_runs(market_id, completed_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddAlert persists a new alert definition.
func (s *Storage) AddAlert(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	conditions, actions, err := marshalAlertParts(alert)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(id, name, market_id, conditions, actions, is_active,
			 cooldown_minutes, last_triggered, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.Name, alert.MarketID, conditions, actions,
		boolToInt(alert.IsActive), alert.CooldownPeriodMinutes,
		timePtrToNano(alert.LastTriggered),
		alert.CreatedAt.UnixNano(), alert.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// UpdateAlert overwrites an existing alert definition.
func (s *Storage) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	conditions, actions, err := marshalAlertParts(alert)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET
			name=?, market_id=?, conditions=?, actions=?, is_active=?,
			cooldown_minutes=?, last_triggered=?, updated_at=?
		WHERE id=?`,
		alert.Name, alert.MarketID, conditions, actions,
		boolToInt(alert.IsActive), alert.CooldownPeriodMinutes,
		timePtrToNano(alert.LastTriggered), alert.UpdatedAt.UnixNano(),
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert not found: %s", alert.ID)
	}
	return nil
}

// GetAlert loads one alert by id.
func (s *Storage) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns all persisted alerts, newest first.
func (s *Storage) ListAlerts(ctx context.Context) ([]*models.Alert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertCols+` FROM alerts ORDER BY created_at DESC`)
}

// ListActiveAlerts returns the alerts the scheduler should load at startup.
func (s *Storage) ListActiveAlerts(ctx context.Context) ([]*models.Alert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertCols+` FROM alerts WHERE is_active = 1 ORDER BY created_at DESC`)
}

func (s *Storage) queryAlerts(ctx context.Context, query string) ([]*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()
	alerts := []*models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// DeleteAlert removes an alert definition. Trigger history is kept.
func (s *Storage) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// PatchAlertTriggerTimestamp updates only the last-triggered column. The
// in-memory registry remains the source of truth; this is write-through.
func (s *Storage) PatchAlertTriggerTimestamp(ctx context.Context, alertID string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET last_triggered = ?, updated_at = ? WHERE id = ?`,
		ts.UnixNano(), ts.UnixNano(), alertID)
	if err != nil {
		return fmt.Errorf("failed to patch trigger timestamp: %w", err)
	}
	return nil
}

// RecordTrigger appends a trigger history row and prunes the oldest rows
// beyond the configured cap.
func (s *Storage) RecordTrigger(ctx context.Context, rec models.TriggerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alert_triggers (id, alert_id, alert_name, market_id, triggered_at)
		VALUES (?,?,?,?,?)`,
		rec.ID, rec.AlertID, rec.AlertName, rec.MarketID, rec.TriggeredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trigger record: %w", err)
	}

	if s.maxTriggers > 0 {
		if _, err = tx.ExecContext(ctx, `
			DELETE FROM alert_triggers WHERE id NOT IN (
				SELECT id FROM alert_triggers ORDER BY triggered_at DESC LIMIT ?
			)`, s.maxTriggers); err != nil {
			return fmt.Errorf("failed to enforce trigger history cap: %w", err)
		}
	}

	return tx.Commit()
}

// ListTriggers returns up to limit most recent trigger records.
func (s *Storage) ListTriggers(ctx context.Context, limit int) ([]models.TriggerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, alert_name, market_id, triggered_at
		FROM alert_triggers ORDER BY triggered_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var records []models.TriggerRecord
	for rows.Next() {
		var rec models.TriggerRecord
		var triggeredAtNano int64
		if err := rows.Scan(&rec.ID, &rec.AlertID, &rec.AlertName, &rec.MarketID, &triggeredAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan trigger record: %w", err)
		}
		rec.TriggeredAt = time.Unix(0, triggeredAtNano)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SavePreferences upserts the single-user notification preference row.
func (s *Storage) SavePreferences(ctx context.Context, prefs models.NotificationPreferences, userEmail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preferences (id, browser, email, webhook, webhook_url, user_email)
		VALUES (1,?,?,?,?,?)`,
		boolToInt(prefs.Browser), boolToInt(prefs.Email), boolToInt(prefs.Webhook),
		prefs.WebhookURL, userEmail,
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// FetchNotificationPreferences loads the preference row. A missing row is not
// an error; the defaults apply.
func (s *Storage) FetchNotificationPreferences(ctx context.Context) (models.NotificationPreferences, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT browser, email, webhook, webhook_url FROM preferences WHERE id = 1`)

	var browser, email, webhook int
	var webhookURL string
	err := row.Scan(&browser, &email, &webhook, &webhookURL)
	if err == sql.ErrNoRows {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return models.DefaultPreferences(), fmt.Errorf("failed to load preferences: %w", err)
	}
	return models.NotificationPreferences{
		Browser:    browser != 0,
		Email:      email != 0,
		Webhook:    webhook != 0,
		WebhookURL: webhookURL,
	}, nil
}

// FetchUserEmail returns the configured notification email address, empty if
// none is stored.
func (s *Storage) FetchUserEmail(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_email FROM preferences WHERE id = 1`)
	var email string
	err := row.Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user email: %w", err)
	}
	return email, nil
}

// SaveResearchRun persists a completed research run.
func (s *Storage) SaveResearchRun(ctx context.Context, run models.ResearchRun) error {
	p := run.Result.Probabilities
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO research_runs
			(id, market_id, question, verdict, prob_yes, prob_no, prob_unknown,
			 confidence, explanation, source_count, started_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.MarketID, run.Question, string(run.Verdict),
		p.Yes, p.No, p.Uncertain,
		run.Result.Confidence, run.Result.Explanation, run.SourceCount,
		run.StartedAt.UnixNano(), run.CompletedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert research run: %w", err)
	}
	return nil
}

// ListResearchRuns returns up to limit most recent runs for a market; an
// empty marketID returns runs across all markets.
func (s *Storage) ListResearchRuns(ctx context.Context, marketID string, limit int) ([]models.ResearchRun, error) {
	query := `
		SELECT id, market_id, question, verdict, prob_yes, prob_no, prob_unknown,
		       confidence, explanation, source_count, started_at, completed_at
		FROM research_runs`
	args := []any{}
	if marketID != "" {
		query += ` WHERE market_id = ?`
		args = append(args, marketID)
	}
	query += ` ORDER BY completed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query research runs: %w", err)
	}
	defer rows.Close()

	var runs []models.ResearchRun
	for rows.Next() {
		var run models.ResearchRun
		var verdict string
		var startedAtNano, completedAtNano int64
		err := rows.Scan(
			&run.ID, &run.MarketID, &run.Question, &verdict,
			&run.Result.Probabilities.Yes, &run.Result.Probabilities.No, &run.Result.Probabilities.Uncertain,
			&run.Result.Confidence, &run.Result.Explanation, &run.SourceCount,
			&startedAtNano, &completedAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan research run: %w", err)
		}
		run.Verdict = models.Verdict(verdict)
		run.StartedAt = time.Unix(0, startedAtNano)
		run.CompletedAt = time.Unix(0, completedAtNano)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const alertCols = `id, name, market_id, conditions, actions, is_active,
	cooldown_minutes, last_triggered, created_at, updated_at`

func scanAlert(scan func(...any) error) (*models.Alert, error) {
	var a models.Alert
	var conditions, actions string
	var isActive int
	var lastTriggeredNano sql.NullInt64
	var createdAtNano, updatedAtNano int64

	err := scan(
		&a.ID, &a.Name, &a.MarketID, &conditions, &actions, &isActive,
		&a.CooldownPeriodMinutes, &lastTriggeredNano, &createdAtNano, &updatedAtNano,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(conditions), &a.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &a.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	a.IsActive = isActive != 0
	if lastTriggeredNano.Valid {
		ts := time.Unix(0, lastTriggeredNano.Int64)
		a.LastTriggered = &ts
	}
	a.CreatedAt = time.Unix(0, createdAtNano)
	a.UpdatedAt = time.Unix(0, updatedAtNano)
	return &a, nil
}

func marshalAlertParts(alert *models.Alert) (conditions, actions string, err error) {
	cb, err := json.Marshal(alert.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal conditions: %w", err)
	}
	ab, err := json.Marshal(alert.Actions)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal actions: %w", err)
	}
	return string(cb), string(ab), nil
}

func timePtrToNano(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
