package model

import "time"

// Part is one fragment of a chunked payload. Every part of a group
// replicates the whole-payload checksum so integrity can be verified
// without needing a designated "first" part.
type Part struct {
	GroupID         string `json:"group_id"`
	Index           int    `json:"part_index"`
	TotalParts      int    `json:"total_parts"`
	Chunk           []byte `json:"chunk_bytes"`
	Checksum        uint32 `json:"chunk_checksum"`
	PayloadChecksum uint32 `json:"payload_checksum"`
}

// GroupState describes the completeness of a chunked group.
type GroupState string

const (
	GroupIncomplete GroupState = "incomplete"
	GroupComplete   GroupState = "complete"
	GroupConflict   GroupState = "conflict"
)

// PartGroup is the bookkeeping row for one chunked payload.
type PartGroup struct {
	GroupID         string    `json:"group_id"`
	TotalParts      int       `json:"total_parts"`
	PayloadChecksum uint32    `json:"payload_checksum"`
	Conflict        bool      `json:"conflict"`
	CreatedAt       time.Time `json:"created_at"`
}
