package model

import "time"

// TokenRecord is the persisted form of an issued token. The payload is
// stored as its tag plus serialized body so variants added later do not
// invalidate rows written by older builds.
type TokenRecord struct {
	ID         string    `json:"token_id"`
	CodeID     *string   `json:"code_id"`
	PayloadTag string    `json:"payload_tag"`
	Body       string    `json:"payload_body"`
	IssuedAt   time.Time `json:"issued_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
	SingleUse  bool      `json:"single_use"`
	Consumed   bool      `json:"consumed"`
	Signature  string    `json:"signature"`
}
