package model

import "time"

// CodeKind identifies what a code's QR content carries.
type CodeKind string

const (
	KindSingle  CodeKind = "single"  // one self-contained payload
	KindChunked CodeKind = "chunked" // a group of parts
	KindToken   CodeKind = "token"   // a signed capability token
)

// Code is one logical QR artifact. The engine manages its lifecycle
// fields; whatever feature created it owns the rest.
type Code struct {
	ID           string     `json:"code_id"`
	Kind         CodeKind   `json:"kind"`
	Tier         string     `json:"tier"`
	MaxScans     *int64     `json:"max_scans"`
	ExpiresAt    *time.Time `json:"expires_at"`
	TimesScanned int64      `json:"times_scanned"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired reports whether the code's expiry, if set, has passed.
func (c *Code) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
