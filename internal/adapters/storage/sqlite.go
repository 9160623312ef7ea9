package storage

// sqlite.go — journal persistente de runs de autenticación y preflight.
//
// Estrategia:
//   - `auth_stories`: UNA fila por run (UPSERT por run_id). El mismo run se
//     reescribe según progresa: primero FAILED provisional, luego OK con
//     balance si el preflight lo confirma.
//   - `preflight_checks`: una fila por ciclo de verificación completado.
//     Los ciclos saltados por backoff no generan fila — no aportan señal.
//   - Prune automático al arrancar: stories > 30d, preflight checks > 7d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polybridge/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Un run de autenticación = una fila, actualizada in situ
CREATE TABLE IF NOT EXISTS auth_stories (
    run_id          TEXT PRIMARY KEY,
    signer_address  TEXT NOT NULL,
    funder_address  TEXT,
    signature_type  INTEGER NOT NULL DEFAULT 0,
    used_effective  INTEGER NOT NULL DEFAULT 0,
    status          TEXT    NOT NULL,
    balance_usdc    TEXT,
    error_details   TEXT,
    diagnosis_cause TEXT,
    created_at      DATETIME NOT NULL
);

-- Histórico de ciclos de preflight completados
CREATE TABLE IF NOT EXISTS preflight_checks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    status      TEXT    NOT NULL,
    reason      TEXT,
    http_status INTEGER NOT NULL DEFAULT 0,
    backoff_ms  INTEGER NOT NULL DEFAULT 0,
    checked_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stories_at   ON auth_stories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_preflight_at ON preflight_checks(checked_at DESC);
`

const (
	retentionStories   = 30 * 24 * time.Hour // stories: 30 días
	retentionPreflight = 7 * 24 * time.Hour  // preflight: 7 días (alto volumen, poca señal vieja)
)

// SQLiteJournal implementa ports.Journal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// SaveStory hace upsert del run: la primera escritura inserta, las
// siguientes (mismo run_id) actualizan status, balance y diagnóstico.
func (j *SQLiteJournal) SaveStory(ctx context.Context, story domain.AuthStory) error {
	usedEff := 0
	if story.UsedEffective {
		usedEff = 1
	}
	createdAt := story.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO auth_stories
			(run_id, signer_address, funder_address, signature_type,
			 used_effective, status, balance_usdc, error_details,
			 diagnosis_cause, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			signature_type  = excluded.signature_type,
			used_effective  = excluded.used_effective,
			status          = excluded.status,
			balance_usdc    = excluded.balance_usdc,
			error_details   = excluded.error_details,
			diagnosis_cause = excluded.diagnosis_cause
	`,
		story.RunID,
		story.SignerAddress,
		story.FunderAddress,
		int(story.SignatureType),
		usedEff,
		string(story.Status),
		story.BalanceUSDC,
		story.ErrorDetails,
		string(story.DiagnosisCause),
		createdAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveStory: upsert %s: %w", story.RunID, err)
	}
	return nil
}

// RecentStories devuelve los últimos runs, el más reciente primero.
func (j *SQLiteJournal) RecentStories(ctx context.Context, limit int) ([]domain.AuthStory, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, signer_address, funder_address, signature_type,
		       used_effective, status, balance_usdc, error_details,
		       diagnosis_cause, created_at
		FROM auth_stories
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentStories: query: %w", err)
	}
	defer rows.Close()

	var stories []domain.AuthStory
	for rows.Next() {
		var s domain.AuthStory
		var sigType, usedEff int
		var status, cause, createdAt string

		if err := rows.Scan(
			&s.RunID,
			&s.SignerAddress,
			&s.FunderAddress,
			&sigType,
			&usedEff,
			&status,
			&s.BalanceUSDC,
			&s.ErrorDetails,
			&cause,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage.RecentStories: scan row: %w", err)
		}

		s.SignatureType = domain.SignatureType(sigType)
		s.UsedEffective = usedEff == 1
		s.Status = domain.AuthStatus(status)
		s.DiagnosisCause = domain.Cause(cause)
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		stories = append(stories, s)
	}

	return stories, rows.Err()
}

// SavePreflight registra un ciclo de verificación completado.
func (j *SQLiteJournal) SavePreflight(ctx context.Context, rec domain.PreflightRecord) error {
	checkedAt := rec.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}

	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO preflight_checks (status, reason, http_status, backoff_ms, checked_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		string(rec.Status),
		string(rec.Reason),
		rec.HTTPStatus,
		rec.BackoffMs,
		checkedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SavePreflight: insert: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoffStories := time.Now().UTC().Add(-retentionStories)
	cutoffPreflight := time.Now().UTC().Add(-retentionPreflight)
	j.db.ExecContext(ctx, `DELETE FROM auth_stories WHERE created_at < ?`, cutoffStories)
	j.db.ExecContext(ctx, `DELETE FROM preflight_checks WHERE checked_at < ?`, cutoffPreflight)
}
