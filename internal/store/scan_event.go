package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/qrtrail/qrtrail/internal/model"
)

type ScanEventStore struct {
	db *sql.DB
}

func NewScanEventStore(db *sql.DB) *ScanEventStore {
	return &ScanEventStore{db: db}
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.ScanEvent, error) {
	var ev model.ScanEvent
	var parent sql.NullString
	err := scanner.Scan(&ev.ID, &ev.CodeID, &parent, &ev.DeviceClass, &ev.GeoHint, &ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		ev.ParentScanID = &parent.String
	}
	return &ev, nil
}

const eventCols = `scan_id, code_id, parent_scan_id, device_class, geo_hint, occurred_at`

func (s *ScanEventStore) GetByID(id string) (*model.ScanEvent, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM scan_events WHERE scan_id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan event: %w", err)
	}
	return ev, nil
}

func (s *ScanEventStore) ListByCode(codeID string) ([]model.ScanEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM scan_events WHERE code_id = ? ORDER BY occurred_at ASC, rowid ASC`,
		codeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scan events: %w", err)
	}
	defer rows.Close()

	var events []model.ScanEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// ListAfter returns events for a code with rowid greater than the cursor,
// in insertion order, along with the new cursor. The aggregator uses this
// to fold only the delta since its last call.
func (s *ScanEventStore) ListAfter(codeID string, afterRowID int64) ([]model.ScanEvent, int64, error) {
	rows, err := s.db.Query(
		`SELECT rowid, `+eventCols+` FROM scan_events WHERE code_id = ? AND rowid > ? ORDER BY rowid ASC`,
		codeID, afterRowID,
	)
	if err != nil {
		return nil, afterRowID, fmt.Errorf("list scan events after: %w", err)
	}
	defer rows.Close()

	cursor := afterRowID
	var events []model.ScanEvent
	for rows.Next() {
		var rowID int64
		var ev model.ScanEvent
		var parent sql.NullString
		err := rows.Scan(&rowID, &ev.ID, &ev.CodeID, &parent, &ev.DeviceClass, &ev.GeoHint, &ev.OccurredAt)
		if err != nil {
			return nil, afterRowID, fmt.Errorf("scan event row: %w", err)
		}
		if parent.Valid {
			ev.ParentScanID = &parent.String
		}
		if rowID > cursor {
			cursor = rowID
		}
		events = append(events, ev)
	}
	return events, cursor, rows.Err()
}

// CountInWindow counts a code's events with occurred_at after the given
// instant. Quota windows are evaluated against event time, so this stays
// correct across process restarts.
func (s *ScanEventStore) CountInWindow(codeID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM scan_events WHERE code_id = ? AND occurred_at > ?`,
		codeID, since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count window scans: %w", err)
	}
	return count, nil
}

func (s *ScanEventStore) CountByCode(codeID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM scan_events WHERE code_id = ?`, codeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count scan events: %w", err)
	}
	return count, nil
}
