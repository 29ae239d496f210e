package chunker

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/qrtrail/qrtrail/internal/model"
)

// partPrefix versions the part wire format. A scanner that sees an
// unfamiliar prefix rejects the string instead of guessing.
const partPrefix = "QP1"

// EncodePart renders a part as the compact string carried by one QR code:
// QP1.<group>.<index>.<total>.<part-crc>.<payload-crc>.<chunk-b64url>
func EncodePart(p *model.Part) string {
	return strings.Join([]string{
		partPrefix,
		p.GroupID,
		strconv.Itoa(p.Index),
		strconv.Itoa(p.TotalParts),
		strconv.FormatUint(uint64(p.Checksum), 16),
		strconv.FormatUint(uint64(p.PayloadChecksum), 16),
		base64.RawURLEncoding.EncodeToString(p.Chunk),
	}, ".")
}

// DecodePart parses a part string produced by EncodePart. It validates
// structure only; content checks happen at accept/reassembly time.
func DecodePart(s string) (*model.Part, error) {
	fields := strings.Split(s, ".")
	if len(fields) != 7 || fields[0] != partPrefix {
		return nil, ErrMalformedPart
	}

	groupID := fields[1]
	if groupID == "" {
		return nil, ErrMalformedPart
	}

	index, err := strconv.Atoi(fields[2])
	if err != nil || index < 0 {
		return nil, fmt.Errorf("part index %q: %w", fields[2], ErrMalformedPart)
	}
	total, err := strconv.Atoi(fields[3])
	if err != nil || total < 1 || index >= total {
		return nil, fmt.Errorf("total parts %q: %w", fields[3], ErrMalformedPart)
	}
	checksum, err := strconv.ParseUint(fields[4], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("part checksum: %w", ErrMalformedPart)
	}
	payloadSum, err := strconv.ParseUint(fields[5], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("payload checksum: %w", ErrMalformedPart)
	}
	chunk, err := base64.RawURLEncoding.DecodeString(fields[6])
	if err != nil || len(chunk) == 0 {
		return nil, fmt.Errorf("chunk bytes: %w", ErrMalformedPart)
	}

	return &model.Part{
		GroupID:         groupID,
		Index:           index,
		TotalParts:      total,
		Chunk:           chunk,
		Checksum:        uint32(checksum),
		PayloadChecksum: uint32(payloadSum),
	}, nil
}
