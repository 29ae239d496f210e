package analytics

import (
	"sync"

	"github.com/qrtrail/qrtrail/internal/model"
	"github.com/qrtrail/qrtrail/internal/store"
)

// Rollup is the aggregate view of one code's scans.
type Rollup struct {
	CodeID              string           `json:"code_id"`
	TotalScans          int64            `json:"total_scans"`
	UniqueDeviceClasses int              `json:"unique_device_classes"`
	DeviceBreakdown     map[string]int64 `json:"device_breakdown"`
	GeoBreakdown        map[string]int64 `json:"geo_breakdown"`
	MaxDepth            int              `json:"max_depth"`
	AvgBranchFactor     float64          `json:"avg_branch_factor"`
}

// snapshot is the incremental fold state for one code. Events arrive in
// rowid order and parents are validated to precede their children, so a
// single forward pass keeps depths exact.
type snapshot struct {
	cursor        int64
	total         int64
	device        map[string]int64
	geo           map[string]int64
	depths        map[string]int
	childCount    map[string]int64
	maxDepth      int
	totalChildren int64
	internalNodes int64
}

func newSnapshot() *snapshot {
	return &snapshot{
		device:     make(map[string]int64),
		geo:        make(map[string]int64),
		depths:     make(map[string]int),
		childCount: make(map[string]int64),
	}
}

func (s *snapshot) fold(ev *model.ScanEvent) {
	s.total++
	s.device[string(ev.DeviceClass)]++
	s.geo[ev.GeoHint]++

	depth := 0
	if ev.ParentScanID != nil {
		if parentDepth, ok := s.depths[*ev.ParentScanID]; ok {
			depth = parentDepth + 1
			s.childCount[*ev.ParentScanID]++
			if s.childCount[*ev.ParentScanID] == 1 {
				s.internalNodes++
			}
			s.totalChildren++
		}
	}
	s.depths[ev.ID] = depth
	if depth > s.maxDepth {
		s.maxDepth = depth
	}
}

func (s *snapshot) rollup(codeID string) *Rollup {
	device := make(map[string]int64, len(s.device))
	for k, v := range s.device {
		device[k] = v
	}
	geo := make(map[string]int64, len(s.geo))
	for k, v := range s.geo {
		geo[k] = v
	}

	branch := 0.0
	if s.internalNodes > 0 {
		branch = float64(s.totalChildren) / float64(s.internalNodes)
	}
	return &Rollup{
		CodeID:              codeID,
		TotalScans:          s.total,
		UniqueDeviceClasses: len(s.device),
		DeviceBreakdown:     device,
		GeoBreakdown:        geo,
		MaxDepth:            s.maxDepth,
		AvgBranchFactor:     branch,
	}
}

// Aggregator produces per-code rollups incrementally: each call folds
// only the scan events recorded since the previous call for that code.
type Aggregator struct {
	events *store.ScanEventStore

	mu    sync.Mutex
	codes map[string]*snapshot
}

func NewAggregator(events *store.ScanEventStore) *Aggregator {
	return &Aggregator{
		events: events,
		codes:  make(map[string]*snapshot),
	}
}

// Aggregate returns the current rollup for a code, folding in any events
// newer than the last call.
func (a *Aggregator) Aggregate(codeID string) (*Rollup, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, ok := a.codes[codeID]
	if !ok {
		snap = newSnapshot()
		a.codes[codeID] = snap
	}

	events, cursor, err := a.events.ListAfter(codeID, snap.cursor)
	if err != nil {
		return nil, err
	}
	for i := range events {
		snap.fold(&events[i])
	}
	snap.cursor = cursor

	return snap.rollup(codeID), nil
}

// Invalidate drops the cached fold state for a code, forcing the next
// Aggregate call to recompute from scratch.
func (a *Aggregator) Invalidate(codeID string) {
	a.mu.Lock()
	delete(a.codes, codeID)
	a.mu.Unlock()
}
