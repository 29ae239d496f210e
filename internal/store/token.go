package store

import (
	"database/sql"
	"fmt"

	"github.com/qrtrail/qrtrail/internal/model"
)

type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func scanToken(scanner interface{ Scan(...any) error }) (*model.TokenRecord, error) {
	var t model.TokenRecord
	var codeID sql.NullString
	var singleUse, consumed int

	err := scanner.Scan(
		&t.ID, &codeID, &t.PayloadTag, &t.Body, &t.IssuedAt,
		&t.TTLSeconds, &singleUse, &consumed, &t.Signature,
	)
	if err != nil {
		return nil, err
	}
	if codeID.Valid {
		t.CodeID = &codeID.String
	}
	t.SingleUse = singleUse != 0
	t.Consumed = consumed != 0
	return &t, nil
}

const tokenCols = `token_id, code_id, payload_tag, payload_body, issued_at, ttl_seconds, single_use, consumed, signature`

func (s *TokenStore) Create(t *model.TokenRecord) error {
	var codeID sql.NullString
	if t.CodeID != nil {
		codeID = sql.NullString{String: *t.CodeID, Valid: true}
	}
	singleUse := 0
	if t.SingleUse {
		singleUse = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO tokens (token_id, code_id, payload_tag, payload_body, issued_at, ttl_seconds, single_use, signature) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, codeID, t.PayloadTag, t.Body, t.IssuedAt.UTC(), t.TTLSeconds, singleUse, t.Signature,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *TokenStore) GetByID(id string) (*model.TokenRecord, error) {
	row := s.db.QueryRow(`SELECT `+tokenCols+` FROM tokens WHERE token_id = ?`, id)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// Consume flips consumed from 0 to 1 for a single-use token and reports
// whether this call was the one that flipped it. The WHERE clause makes
// the flip atomic: under concurrent callers exactly one sees a row
// change.
func (s *TokenStore) Consume(id string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE tokens SET consumed = 1 WHERE token_id = ? AND single_use = 1 AND consumed = 0`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *TokenStore) ListByCode(codeID string) ([]model.TokenRecord, error) {
	rows, err := s.db.Query(`SELECT `+tokenCols+` FROM tokens WHERE code_id = ? ORDER BY issued_at DESC`, codeID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.TokenRecord
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}
