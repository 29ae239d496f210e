package chunker

import (
	"bytes"
	"errors"
	"hash/crc32"
	"math/rand"
	"testing"

	"github.com/qrtrail/qrtrail/internal/model"
)

func testPayload(n int) []byte {
	content := make([]byte, n)
	rng := rand.New(rand.NewSource(42))
	rng.Read(content)
	return content
}

func groupFor(parts []model.Part) *model.PartGroup {
	return &model.PartGroup{
		GroupID:         parts[0].GroupID,
		TotalParts:      parts[0].TotalParts,
		PayloadChecksum: parts[0].PayloadChecksum,
	}
}

func TestSplitPartCount(t *testing.T) {
	cases := []struct {
		size  int
		chunk int
		want  int
	}{
		{size: 9000, chunk: 2500, want: 4},
		{size: 2500, chunk: 2500, want: 1},
		{size: 2501, chunk: 2500, want: 2},
		{size: 1, chunk: 100, want: 1},
	}
	for _, tc := range cases {
		_, parts, err := Split(testPayload(tc.size), tc.chunk)
		if err != nil {
			t.Fatalf("split %d/%d: %v", tc.size, tc.chunk, err)
		}
		if len(parts) != tc.want {
			t.Errorf("split %d/%d: got %d parts, want %d", tc.size, tc.chunk, len(parts), tc.want)
		}
	}
}

func TestSplitInvalidInput(t *testing.T) {
	if _, _, err := Split(nil, 100); err == nil {
		t.Error("expected error for empty payload")
	}
	if _, _, err := Split([]byte("data"), 0); err == nil {
		t.Error("expected error for zero chunk size")
	}
}

func TestSplitPartsAgree(t *testing.T) {
	groupID, parts, err := Split(testPayload(5000), 1024)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for i, p := range parts {
		if p.GroupID != groupID {
			t.Errorf("part %d: group %q, want %q", i, p.GroupID, groupID)
		}
		if p.Index != i {
			t.Errorf("part %d: index %d", i, p.Index)
		}
		if p.TotalParts != len(parts) {
			t.Errorf("part %d: total %d, want %d", i, p.TotalParts, len(parts))
		}
		if p.PayloadChecksum != parts[0].PayloadChecksum {
			t.Errorf("part %d: payload checksum differs", i)
		}
		if crc32.ChecksumIEEE(p.Chunk) != p.Checksum {
			t.Errorf("part %d: chunk checksum does not verify", i)
		}
	}
}

func TestJoinOutOfOrder(t *testing.T) {
	content := testPayload(9000)
	_, parts, err := Split(content, 2500)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(parts))
	}

	// Feed parts as [3,1,4,2] (1-indexed): arrival order is irrelevant.
	arrived := []model.Part{parts[2], parts[0], parts[3], parts[1]}
	got, err := Join(groupFor(parts), arrived)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("reassembled content differs from original")
	}
}

func TestJoinAllPermutations(t *testing.T) {
	content := testPayload(700)
	_, parts, err := Split(content, 256)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}

	perms := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, perm := range perms {
		arrived := make([]model.Part, 0, 3)
		for _, i := range perm {
			arrived = append(arrived, parts[i])
		}
		got, err := Join(groupFor(parts), arrived)
		if err != nil {
			t.Fatalf("join %v: %v", perm, err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("join %v: content differs", perm)
		}
	}
}

func TestJoinMissingPart(t *testing.T) {
	_, parts, err := Split(testPayload(9000), 2500)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	_, err = Join(groupFor(parts), parts[:3])
	if !errors.Is(err, ErrIncompleteGroup) {
		t.Errorf("expected ErrIncompleteGroup, got %v", err)
	}
}

func TestJoinCorruptedChunk(t *testing.T) {
	_, parts, err := Split(testPayload(4000), 1000)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	parts[1].Chunk[0] ^= 0xFF
	_, err = Join(groupFor(parts), parts)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestJoinPayloadChecksumMismatch(t *testing.T) {
	_, parts, err := Split(testPayload(4000), 1000)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	group := groupFor(parts)
	group.PayloadChecksum++
	_, err = Join(group, parts)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestEncodeDecodePartRoundTrip(t *testing.T) {
	_, parts, err := Split(testPayload(3000), 1024)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	for i := range parts {
		decoded, err := DecodePart(EncodePart(&parts[i]))
		if err != nil {
			t.Fatalf("decode part %d: %v", i, err)
		}
		if decoded.GroupID != parts[i].GroupID ||
			decoded.Index != parts[i].Index ||
			decoded.TotalParts != parts[i].TotalParts ||
			decoded.Checksum != parts[i].Checksum ||
			decoded.PayloadChecksum != parts[i].PayloadChecksum {
			t.Errorf("part %d: metadata changed in round trip", i)
		}
		if !bytes.Equal(decoded.Chunk, parts[i].Chunk) {
			t.Errorf("part %d: chunk changed in round trip", i)
		}
	}
}

func TestDecodePartMalformed(t *testing.T) {
	cases := []string{
		"",
		"garbage",
		"QP2.g.0.1.0.0.aGk",          // wrong version
		"QP1.g.0.1.0.0",              // missing field
		"QP1.g.x.1.0.0.aGk",          // bad index
		"QP1.g.0.0.0.0.aGk",          // zero total
		"QP1.g.5.3.0.0.aGk",          // index past total
		"QP1.g.0.1.zz zz.0.aGk",      // bad checksum
		"QP1.g.0.1.0.0.%%not-base64", // bad chunk
	}
	for _, s := range cases {
		if _, err := DecodePart(s); !errors.Is(err, ErrMalformedPart) {
			t.Errorf("decode %q: expected ErrMalformedPart, got %v", s, err)
		}
	}
}
