package store

import (
	"database/sql"
	"fmt"

	"github.com/qrtrail/qrtrail/internal/model"
)

type PartStore struct {
	db *sql.DB
}

func NewPartStore(db *sql.DB) *PartStore {
	return &PartStore{db: db}
}

func scanGroup(scanner interface{ Scan(...any) error }) (*model.PartGroup, error) {
	var g model.PartGroup
	var conflict int
	err := scanner.Scan(&g.GroupID, &g.TotalParts, &g.PayloadChecksum, &conflict, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.Conflict = conflict != 0
	return &g, nil
}

const groupCols = `group_id, total_parts, payload_checksum, conflict, created_at`

// CreateGroup inserts the bookkeeping row for a group if it does not
// exist yet. Re-creation with the same values is a no-op.
func (s *PartStore) CreateGroup(groupID string, totalParts int, payloadChecksum uint32) error {
	_, err := s.db.Exec(
		`INSERT INTO part_groups (group_id, total_parts, payload_checksum) VALUES (?, ?, ?)
		 ON CONFLICT(group_id) DO NOTHING`,
		groupID, totalParts, payloadChecksum,
	)
	if err != nil {
		return fmt.Errorf("insert part group: %w", err)
	}
	return nil
}

func (s *PartStore) GetGroup(groupID string) (*model.PartGroup, error) {
	row := s.db.QueryRow(`SELECT `+groupCols+` FROM part_groups WHERE group_id = ?`, groupID)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get part group: %w", err)
	}
	return g, nil
}

func (s *PartStore) SetConflict(groupID string, conflict bool) error {
	v := 0
	if conflict {
		v = 1
	}
	_, err := s.db.Exec(`UPDATE part_groups SET conflict = ? WHERE group_id = ?`, v, groupID)
	if err != nil {
		return fmt.Errorf("set group conflict: %w", err)
	}
	return nil
}

func scanPart(scanner interface{ Scan(...any) error }) (*model.Part, error) {
	var p model.Part
	err := scanner.Scan(&p.GroupID, &p.Index, &p.TotalParts, &p.Chunk, &p.Checksum)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const partCols = `group_id, part_index, total_parts, chunk_bytes, chunk_checksum`

// InsertPart records a part. Parts are write-once: inserting an index
// that already exists fails with a constraint error, which callers
// resolve by comparing checksums.
func (s *PartStore) InsertPart(p *model.Part) error {
	_, err := s.db.Exec(
		`INSERT INTO parts (group_id, part_index, total_parts, chunk_bytes, chunk_checksum) VALUES (?, ?, ?, ?, ?)`,
		p.GroupID, p.Index, p.TotalParts, p.Chunk, p.Checksum,
	)
	if err != nil {
		return fmt.Errorf("insert part: %w", err)
	}
	return nil
}

func (s *PartStore) GetPart(groupID string, index int) (*model.Part, error) {
	row := s.db.QueryRow(`SELECT `+partCols+` FROM parts WHERE group_id = ? AND part_index = ?`, groupID, index)
	p, err := scanPart(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get part: %w", err)
	}
	return p, nil
}

func (s *PartStore) ListParts(groupID string) ([]model.Part, error) {
	rows, err := s.db.Query(`SELECT `+partCols+` FROM parts WHERE group_id = ? ORDER BY part_index ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	defer rows.Close()

	var parts []model.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		parts = append(parts, *p)
	}
	return parts, rows.Err()
}

func (s *PartStore) CountParts(groupID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM parts WHERE group_id = ?`, groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count parts: %w", err)
	}
	return count, nil
}

// DeleteParts removes all parts of a group, leaving the group row in
// place. Used when a conflicted group is reset.
func (s *PartStore) DeleteParts(groupID string) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM parts WHERE group_id = ?`, groupID)
	if err != nil {
		return 0, fmt.Errorf("delete parts: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
