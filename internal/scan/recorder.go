package scan

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/qrtrail/qrtrail/internal/device"
	"github.com/qrtrail/qrtrail/internal/geo"
	"github.com/qrtrail/qrtrail/internal/lineage"
	"github.com/qrtrail/qrtrail/internal/model"
	"github.com/qrtrail/qrtrail/internal/quota"
	"github.com/qrtrail/qrtrail/internal/store"
	"github.com/qrtrail/qrtrail/internal/token"
	"github.com/qrtrail/qrtrail/internal/websocket"
)

// Request carries everything the recorder needs about one incoming scan.
type Request struct {
	CodeID         string
	CarriedContent string
	ReferrerScanID *string
	RemoteIP       string
	UserAgent      string
}

// Recorder runs the scan pipeline: token verification, code lifecycle
// checks, quota, the atomic counter+event write, and best-effort
// enrichment.
type Recorder struct {
	codes    *store.CodeStore
	events   *store.ScanEventStore
	codec    *token.Codec
	enforcer *quota.Enforcer
	tracker  *lineage.Tracker
	geo      *geo.Client
	hub      *websocket.Hub
	logger   *slog.Logger
	now      func() time.Time
}

func NewRecorder(
	codes *store.CodeStore,
	events *store.ScanEventStore,
	codec *token.Codec,
	enforcer *quota.Enforcer,
	tracker *lineage.Tracker,
	geoClient *geo.Client,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		codes:    codes,
		events:   events,
		codec:    codec,
		enforcer: enforcer,
		tracker:  tracker,
		geo:      geoClient,
		hub:      hub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record validates and persists one scan. Validation errors (token,
// lifecycle, quota) surface verbatim; enrichment failures degrade to
// "unknown" and never fail the scan.
func (r *Recorder) Record(ctx context.Context, req Request) (*model.ScanEvent, error) {
	now := r.now()

	// Token first: an invalid or spent token never reaches the counter.
	if token.IsToken(req.CarriedContent) {
		if _, err := r.codec.Redeem(req.CarriedContent, now); err != nil {
			return nil, err
		}
	}

	code, err := r.codes.GetByID(req.CodeID)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, store.ErrUnknownCode
	}
	if code.Expired(now) {
		return nil, store.ErrCodeExpired
	}

	// Fast-fail quota check; the recording transaction re-checks under
	// the write lock so racing scans cannot slip past the limit.
	lim := r.enforcer.Resolve(code.Tier)
	if !lim.Unlimited() {
		inWindow, err := r.events.CountInWindow(req.CodeID, now.Add(-lim.Window))
		if err != nil {
			return nil, err
		}
		if err := r.enforcer.Check(code.Tier, inWindow); err != nil {
			return nil, err
		}
	}

	deviceClass, geoHint := r.enrich(ctx, req)

	scanID := uuid.NewString()
	parent, err := r.tracker.ResolveParent(req.CodeID, scanID, req.ReferrerScanID, now)
	if err != nil {
		// Lineage is advisory; a failed parent lookup demotes to root.
		r.logger.Warn("resolve parent", "code_id", req.CodeID, "error", err)
		parent = nil
	}

	ev := &model.ScanEvent{
		ID:           scanID,
		CodeID:       req.CodeID,
		ParentScanID: parent,
		DeviceClass:  deviceClass,
		GeoHint:      geoHint,
		OccurredAt:   now,
	}
	if err := r.codes.RecordScan(ctx, ev, lim); err != nil {
		return nil, err
	}

	r.logger.Info("scan recorded",
		"code_id", ev.CodeID,
		"scan_id", ev.ID,
		"device", string(ev.DeviceClass),
		"geo", ev.GeoHint,
		"root", ev.ParentScanID == nil,
	)
	if r.hub != nil {
		notice := websocket.ScanNotice{
			Type:        "scan_recorded",
			CodeID:      ev.CodeID,
			ScanID:      ev.ID,
			DeviceClass: string(ev.DeviceClass),
			GeoHint:     ev.GeoHint,
			OccurredAt:  ev.OccurredAt,
		}
		if ev.ParentScanID != nil {
			notice.ParentScan = *ev.ParentScanID
		}
		r.hub.Broadcast(notice)
	}
	return ev, nil
}

// enrich runs the collaborator lookups in parallel under the request
// context. Both are best-effort with their own timeouts.
func (r *Recorder) enrich(ctx context.Context, req Request) (model.DeviceClass, string) {
	deviceClass := model.DeviceUnknown
	geoHint := geo.Unknown

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deviceClass = device.Classify(req.UserAgent)
		return nil
	})
	g.Go(func() error {
		geoHint = r.geo.Lookup(gctx, req.RemoteIP)
		return nil
	})
	g.Wait()

	return deviceClass, geoHint
}
