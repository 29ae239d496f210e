package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/qrtrail/qrtrail/internal/analytics"
	"github.com/qrtrail/qrtrail/internal/chunker"
	"github.com/qrtrail/qrtrail/internal/geo"
	"github.com/qrtrail/qrtrail/internal/handler"
	"github.com/qrtrail/qrtrail/internal/lineage"
	"github.com/qrtrail/qrtrail/internal/middleware"
	"github.com/qrtrail/qrtrail/internal/quota"
	"github.com/qrtrail/qrtrail/internal/scan"
	"github.com/qrtrail/qrtrail/internal/store"
	"github.com/qrtrail/qrtrail/internal/token"
	ws "github.com/qrtrail/qrtrail/internal/websocket"
)

// Config carries the process-wide settings the server needs.
type Config struct {
	SigningSecret []byte
	GeoBaseURL    string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	codeH       *handler.CodeHandler
	chunkH      *handler.ChunkHandler
	scanH       *handler.ScanHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	codeStore := store.NewCodeStore(db)
	partStore := store.NewPartStore(db)
	tokenStore := store.NewTokenStore(db)
	eventStore := store.NewScanEventStore(db)

	codec, err := token.NewCodec(cfg.SigningSecret, tokenStore)
	if err != nil {
		return nil, err
	}

	assembler := chunker.NewAssembler(partStore)
	enforcer := quota.NewEnforcer(quota.DefaultLimits(), "free")
	tracker := lineage.NewTracker(eventStore)
	aggregator := analytics.NewAggregator(eventStore)
	geoClient := geo.NewClient(cfg.GeoBaseURL)

	recorder := scan.NewRecorder(
		codeStore, eventStore, codec, enforcer, tracker, geoClient, hub,
		logger.With("component", "recorder"),
	)

	return &Server{
		db:          db,
		hub:         hub,
		codeH:       handler.NewCodeHandler(codeStore, partStore, codec, logger.With("component", "code")),
		chunkH:      handler.NewChunkHandler(assembler, logger.With("component", "chunk")),
		scanH:       handler.NewScanHandler(recorder, tracker, aggregator, codeStore, logger.With("component", "scan")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}, nil
}

// RateLimiter returns the limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/codes", s.codeH.Create)
	mux.HandleFunc("GET /api/codes/{id}", s.codeH.Get)
	mux.HandleFunc("POST /api/codes/{id}/token", s.codeH.IssueToken)
	mux.HandleFunc("POST /api/codes/{id}/parts", s.codeH.Split)

	mux.HandleFunc("POST /api/parts", s.chunkH.AcceptPart)
	mux.HandleFunc("GET /api/groups/{id}", s.chunkH.GroupState)
	mux.HandleFunc("POST /api/groups/{id}/reassemble", s.chunkH.Reassemble)
	mux.HandleFunc("POST /api/groups/{id}/reset", s.chunkH.Reset)

	mux.HandleFunc("POST /api/scans", s.rateLimitedHandler(s.scanH.Record))
	mux.HandleFunc("GET /api/codes/{id}/lineage", s.scanH.Lineage)
	mux.HandleFunc("GET /api/codes/{id}/stats", s.scanH.Stats)

	mux.HandleFunc("GET /ws", ws.Handler(s.hub, s.logger.With("component", "websocket")))
	mux.HandleFunc("GET /health", s.healthHandler)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 60, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
