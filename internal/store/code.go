package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/qrtrail/qrtrail/internal/model"
	"github.com/qrtrail/qrtrail/internal/quota"
)

var (
	// ErrUnknownCode means no code row exists for the given ID.
	ErrUnknownCode = errors.New("unknown code")
	// ErrCodeExpired means the code's expires_at has passed.
	ErrCodeExpired = errors.New("code expired")
)

type CodeStore struct {
	db *sql.DB
}

func NewCodeStore(db *sql.DB) *CodeStore {
	return &CodeStore{db: db}
}

func scanCode(scanner interface{ Scan(...any) error }) (*model.Code, error) {
	var c model.Code
	var maxScans sql.NullInt64
	var expiresAt sql.NullTime

	err := scanner.Scan(&c.ID, &c.Kind, &c.Tier, &maxScans, &expiresAt, &c.TimesScanned, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if maxScans.Valid {
		c.MaxScans = &maxScans.Int64
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

const codeCols = `code_id, kind, tier, max_scans, expires_at, times_scanned, created_at`

func (s *CodeStore) Create(kind model.CodeKind, tier string, maxScans *int64, expiresAt *time.Time) (*model.Code, error) {
	var ms sql.NullInt64
	if maxScans != nil {
		ms = sql.NullInt64{Int64: *maxScans, Valid: true}
	}
	var exp sql.NullTime
	if expiresAt != nil {
		exp = sql.NullTime{Time: expiresAt.UTC(), Valid: true}
	}

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO codes (code_id, kind, tier, max_scans, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(kind), tier, ms, exp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert code: %w", err)
	}
	return s.GetByID(id)
}

func (s *CodeStore) GetByID(id string) (*model.Code, error) {
	row := s.db.QueryRow(`SELECT `+codeCols+` FROM codes WHERE code_id = ?`, id)
	c, err := scanCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	return c, nil
}

// RecordScan applies the one shared-mutation hot path: inside a single
// transaction it re-reads the code, enforces expiry, the tier's rolling
// window, and the hard scan cap, then bumps times_scanned and inserts
// the scan event. Either both mutations land or neither does. SQLITE_BUSY
// is retried a bounded number of times before surfacing.
func (s *CodeStore) RecordScan(ctx context.Context, ev *model.ScanEvent, lim quota.Limit) error {
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(10*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.recordScanTx(ctx, ev, lim)
		if isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *CodeStore) recordScanTx(ctx context.Context, ev *model.ScanEvent, lim quota.Limit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scan tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+codeCols+` FROM codes WHERE code_id = ?`, ev.CodeID)
	code, err := scanCode(row)
	if err == sql.ErrNoRows {
		return ErrUnknownCode
	}
	if err != nil {
		return fmt.Errorf("get code for scan: %w", err)
	}
	if code.Expired(ev.OccurredAt) {
		return ErrCodeExpired
	}

	if !lim.Unlimited() {
		var inWindow int64
		since := ev.OccurredAt.Add(-lim.Window)
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM scan_events WHERE code_id = ? AND occurred_at > ?`,
			ev.CodeID, since.UTC(),
		).Scan(&inWindow)
		if err != nil {
			return fmt.Errorf("count window scans: %w", err)
		}
		if inWindow >= lim.Scans {
			return quota.ErrQuotaExceeded
		}
	}

	// The conditional update is what makes max_scans race-free: the 6th
	// of 6 concurrent scans against max_scans=5 matches zero rows.
	result, err := tx.ExecContext(ctx,
		`UPDATE codes SET times_scanned = times_scanned + 1
		 WHERE code_id = ? AND (max_scans IS NULL OR times_scanned < max_scans)`,
		ev.CodeID,
	)
	if err != nil {
		return fmt.Errorf("increment times_scanned: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return quota.ErrQuotaExceeded
	}

	var parent sql.NullString
	if ev.ParentScanID != nil {
		parent = sql.NullString{String: *ev.ParentScanID, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO scan_events (scan_id, code_id, parent_scan_id, device_class, geo_hint, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.CodeID, parent, string(ev.DeviceClass), ev.GeoHint, ev.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert scan event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scan tx: %w", err)
	}
	return nil
}

// isBusy reports whether an error is SQLite lock contention worth
// retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
