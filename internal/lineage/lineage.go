package lineage

import (
	"time"

	"github.com/qrtrail/qrtrail/internal/model"
	"github.com/qrtrail/qrtrail/internal/store"
)

// Node is one scan event placed in its code's referral forest.
type Node struct {
	Event      model.ScanEvent `json:"event"`
	Depth      int             `json:"depth"`
	ChildCount int             `json:"child_count"`
	Children   []*Node         `json:"children,omitempty"`
}

// Forest is the derived lineage view for one code. Scan events remain
// the source of truth; a forest is rebuilt from them on demand.
type Forest struct {
	Roots     []*Node `json:"roots"`
	NodeCount int     `json:"node_count"`
	MaxDepth  int     `json:"max_depth"`
}

// Tracker validates parent links at record time and materializes
// lineage forests.
type Tracker struct {
	events *store.ScanEventStore
}

func NewTracker(events *store.ScanEventStore) *Tracker {
	return &Tracker{events: events}
}

// ResolveParent validates a referrer reference for a scan that is about
// to be recorded. Lineage is advisory: a missing, self-referential,
// cross-code, or non-earlier parent demotes the scan to a root instead
// of rejecting it.
func (t *Tracker) ResolveParent(codeID, scanID string, referrerScanID *string, occurredAt time.Time) (*string, error) {
	if referrerScanID == nil || *referrerScanID == "" || *referrerScanID == scanID {
		return nil, nil
	}
	parent, err := t.events.GetByID(*referrerScanID)
	if err != nil {
		return nil, err
	}
	if parent == nil || parent.CodeID != codeID || !parent.OccurredAt.Before(occurredAt) {
		return nil, nil
	}
	return referrerScanID, nil
}

// BuildForest materializes every scan event of a code into a forest with
// per-node depth and child counts. It terminates on any input: parent
// references that are missing, self-referential, cross-code, non-earlier,
// or cyclic all demote the affected node to a root.
func (t *Tracker) BuildForest(codeID string) (*Forest, error) {
	events, err := t.events.ListByCode(codeID)
	if err != nil {
		return nil, err
	}
	return Build(events), nil
}

// Build constructs a forest from an event slice. Exposed separately so
// callers holding events already in memory can skip the store round-trip.
func Build(events []model.ScanEvent) *Forest {
	nodes := make(map[string]*Node, len(events))
	order := make([]string, 0, len(events))
	for _, ev := range events {
		ev := ev
		nodes[ev.ID] = &Node{Event: ev}
		order = append(order, ev.ID)
	}

	// First pass: effective parent per node. Anything that does not
	// reference an existing, distinct, same-code, strictly earlier
	// event is a root.
	parents := make(map[string]string, len(events))
	for _, id := range order {
		n := nodes[id]
		ref := n.Event.ParentScanID
		if ref == nil || *ref == id {
			continue
		}
		p, ok := nodes[*ref]
		if !ok || p.Event.CodeID != n.Event.CodeID || !p.Event.OccurredAt.Before(n.Event.OccurredAt) {
			continue
		}
		parents[id] = *ref
	}

	// Second pass: depths with a cycle guard. Revisiting an ID on the
	// current path means the chain never reaches a root; break it there.
	depths := make(map[string]int, len(events))
	var resolve func(id string, onPath map[string]bool) int
	resolve = func(id string, onPath map[string]bool) int {
		if d, ok := depths[id]; ok {
			return d
		}
		if onPath[id] {
			delete(parents, id)
			depths[id] = 0
			return 0
		}
		onPath[id] = true
		defer delete(onPath, id)

		p, ok := parents[id]
		if !ok {
			depths[id] = 0
			return 0
		}
		d := resolve(p, onPath) + 1
		depths[id] = d
		return d
	}
	for _, id := range order {
		resolve(id, make(map[string]bool))
	}

	forest := &Forest{NodeCount: len(events)}
	for _, id := range order {
		n := nodes[id]
		n.Depth = depths[id]
		if n.Depth > forest.MaxDepth {
			forest.MaxDepth = n.Depth
		}
		if p, ok := parents[id]; ok {
			parent := nodes[p]
			parent.Children = append(parent.Children, n)
			parent.ChildCount++
		} else {
			forest.Roots = append(forest.Roots, n)
		}
	}
	return forest
}
