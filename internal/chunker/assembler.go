package chunker

import (
	"fmt"
	"hash/crc32"

	"github.com/qrtrail/qrtrail/internal/model"
	"github.com/qrtrail/qrtrail/internal/store"
)

// Assembler accepts parts as they are scanned, in any order, and
// reassembles complete groups from the part store.
type Assembler struct {
	parts *store.PartStore
}

func NewAssembler(parts *store.PartStore) *Assembler {
	return &Assembler{parts: parts}
}

// Accept idempotently records one part and reports the group's state.
// Resubmitting an identical part is a no-op; resubmitting an index with
// different content marks the whole group conflicted, and a conflicted
// group rejects everything until Reset.
func (a *Assembler) Accept(p *model.Part) (model.GroupState, error) {
	if crc32.ChecksumIEEE(p.Chunk) != p.Checksum {
		return model.GroupIncomplete, fmt.Errorf("part %d: %w", p.Index, ErrChecksumMismatch)
	}

	group, err := a.parts.GetGroup(p.GroupID)
	if err != nil {
		return model.GroupIncomplete, err
	}
	if group == nil {
		if err := a.parts.CreateGroup(p.GroupID, p.TotalParts, p.PayloadChecksum); err != nil {
			return model.GroupIncomplete, err
		}
		group = &model.PartGroup{
			GroupID:         p.GroupID,
			TotalParts:      p.TotalParts,
			PayloadChecksum: p.PayloadChecksum,
		}
	}

	if group.Conflict {
		return model.GroupConflict, ErrConflict
	}

	// All parts of a group must agree on the group-level facts.
	if p.TotalParts != group.TotalParts || p.PayloadChecksum != group.PayloadChecksum {
		if err := a.parts.SetConflict(p.GroupID, true); err != nil {
			return model.GroupConflict, err
		}
		return model.GroupConflict, fmt.Errorf("group metadata disagreement: %w", ErrConflict)
	}
	if p.Index >= group.TotalParts {
		return model.GroupIncomplete, fmt.Errorf("part index %d of %d: %w", p.Index, group.TotalParts, ErrMalformedPart)
	}

	existing, err := a.parts.GetPart(p.GroupID, p.Index)
	if err != nil {
		return model.GroupIncomplete, err
	}
	if existing != nil {
		if existing.Checksum == p.Checksum {
			return a.state(group)
		}
		if err := a.parts.SetConflict(p.GroupID, true); err != nil {
			return model.GroupConflict, err
		}
		return model.GroupConflict, fmt.Errorf("part %d resubmitted with different content: %w", p.Index, ErrConflict)
	}

	if err := a.parts.InsertPart(p); err != nil {
		// Lost a race with an identical concurrent submit: re-check
		// instead of surfacing the constraint error.
		dup, getErr := a.parts.GetPart(p.GroupID, p.Index)
		if getErr == nil && dup != nil && dup.Checksum == p.Checksum {
			return a.state(group)
		}
		return model.GroupIncomplete, err
	}
	return a.state(group)
}

func (a *Assembler) state(group *model.PartGroup) (model.GroupState, error) {
	count, err := a.parts.CountParts(group.GroupID)
	if err != nil {
		return model.GroupIncomplete, err
	}
	if count >= group.TotalParts {
		return model.GroupComplete, nil
	}
	return model.GroupIncomplete, nil
}

// State reports a group's current completeness without modifying it.
func (a *Assembler) State(groupID string) (model.GroupState, error) {
	group, err := a.parts.GetGroup(groupID)
	if err != nil {
		return model.GroupIncomplete, err
	}
	if group == nil {
		return model.GroupIncomplete, ErrIncompleteGroup
	}
	if group.Conflict {
		return model.GroupConflict, nil
	}
	return a.state(group)
}

// Reassemble returns the original payload bytes for a complete group.
func (a *Assembler) Reassemble(groupID string) ([]byte, error) {
	group, err := a.parts.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("group %s never seen: %w", groupID, ErrIncompleteGroup)
	}
	if group.Conflict {
		return nil, ErrConflict
	}

	parts, err := a.parts.ListParts(groupID)
	if err != nil {
		return nil, err
	}
	return Join(group, parts)
}

// Reset clears a group's parts and conflict flag so transmission can
// start over.
func (a *Assembler) Reset(groupID string) error {
	group, err := a.parts.GetGroup(groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return nil
	}
	if _, err := a.parts.DeleteParts(groupID); err != nil {
		return err
	}
	return a.parts.SetConflict(groupID, false)
}
