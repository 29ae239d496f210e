package chunker

import (
	"errors"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/google/uuid"

	"github.com/qrtrail/qrtrail/internal/model"
)

var (
	// ErrMalformedPart means a part string could not be parsed.
	ErrMalformedPart = errors.New("malformed part")
	// ErrIncompleteGroup means reassembly was attempted before every
	// index in 0..total_parts-1 was observed.
	ErrIncompleteGroup = errors.New("incomplete group")
	// ErrChecksumMismatch means a per-part or whole-payload checksum
	// failed verification.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrConflict means the same part index was resubmitted with
	// different content. The group is unusable until reset.
	ErrConflict = errors.New("conflicting duplicate part")
)

// Split partitions content into ceil(len/maxChunkSize) parts under a fresh
// group ID. Every part carries its own CRC32 and the CRC32 of the whole
// payload, so any single part is enough to know what a complete
// reassembly must hash to.
func Split(content []byte, maxChunkSize int) (string, []model.Part, error) {
	if maxChunkSize <= 0 {
		return "", nil, fmt.Errorf("max chunk size must be positive, got %d", maxChunkSize)
	}
	if len(content) == 0 {
		return "", nil, fmt.Errorf("empty payload")
	}

	groupID := uuid.NewString()
	total := (len(content) + maxChunkSize - 1) / maxChunkSize
	payloadSum := crc32.ChecksumIEEE(content)

	parts := make([]model.Part, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxChunkSize
		end := start + maxChunkSize
		if end > len(content) {
			end = len(content)
		}
		chunk := make([]byte, end-start)
		copy(chunk, content[start:end])

		parts = append(parts, model.Part{
			GroupID:         groupID,
			Index:           i,
			TotalParts:      total,
			Chunk:           chunk,
			Checksum:        crc32.ChecksumIEEE(chunk),
			PayloadChecksum: payloadSum,
		})
	}
	return groupID, parts, nil
}

// Join concatenates a complete set of parts in index order and verifies
// both per-part and whole-payload checksums. Arrival order of the input
// slice is irrelevant.
func Join(group *model.PartGroup, parts []model.Part) ([]byte, error) {
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		if p.Index < 0 || p.Index >= group.TotalParts {
			return nil, fmt.Errorf("part index %d out of range: %w", p.Index, ErrMalformedPart)
		}
		seen[p.Index] = true
	}
	for i := 0; i < group.TotalParts; i++ {
		if !seen[i] {
			return nil, fmt.Errorf("missing part %d of %d: %w", i, group.TotalParts, ErrIncompleteGroup)
		}
	}

	sorted := make([]model.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var content []byte
	for _, p := range sorted {
		if crc32.ChecksumIEEE(p.Chunk) != p.Checksum {
			return nil, fmt.Errorf("part %d: %w", p.Index, ErrChecksumMismatch)
		}
		content = append(content, p.Chunk...)
	}

	if crc32.ChecksumIEEE(content) != group.PayloadChecksum {
		return nil, fmt.Errorf("payload: %w", ErrChecksumMismatch)
	}
	return content, nil
}
