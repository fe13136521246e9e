package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/radiusdt/vector-gateway/internal/alerts"
	"github.com/radiusdt/vector-gateway/internal/catalog"
	"github.com/radiusdt/vector-gateway/internal/config"
	"github.com/radiusdt/vector-gateway/internal/database"
	"github.com/radiusdt/vector-gateway/internal/deeplink"
	"github.com/radiusdt/vector-gateway/internal/geo"
	"github.com/radiusdt/vector-gateway/internal/metrics"
	"github.com/radiusdt/vector-gateway/internal/postback"
	"github.com/radiusdt/vector-gateway/internal/rotator"
	"github.com/radiusdt/vector-gateway/internal/storage"
	"github.com/radiusdt/vector-gateway/internal/tracking"
	"github.com/radiusdt/vector-gateway/internal/vkads"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Catalog *catalog.Catalog
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and gateway services.
type Server struct {
	trackingService *tracking.Service
	postbackHandler *postback.Handler
	aggregator      *rotator.Aggregator
	eventStore      storage.EventStore
	catalog         *catalog.Catalog
	vkClient        *vkads.Client
	config          *config.Config
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	// Initialize stores: durable when the backing services are
	// configured, in-memory otherwise (development mode).
	var eventStore storage.EventStore
	if deps.DB != nil {
		eventStore = storage.NewPostgresEventStore(deps.DB.Pool)
	} else {
		eventStore = storage.NewInMemoryEventStore()
	}

	var statsRepo storage.StatsRepo
	if deps.Redis != nil {
		statsRepo = storage.NewRedisStatsRepo(deps.Redis.Client)
	} else {
		statsRepo = storage.NewInMemoryStatsRepo()
	}

	var geoDetect tracking.GeoDetector
	if deps.Config.Geo.Enabled {
		provider, err := geo.NewProvider(deps.Config.Geo.DatabasePath)
		if err != nil {
			deps.Logger.Warn("failed to initialize geo provider, clicks will not be enriched", zap.Error(err))
		} else {
			geoDetect = provider
		}
	}

	selector := rotator.NewSelectorWith(deps.Config.Rotator.WarmupRounds, deps.Config.Rotator.Epsilon, nil)
	aggregator := rotator.NewAggregator(statsRepo, deps.Catalog, deps.Logger)

	notifier := alerts.NewTelegramNotifier(deps.Config.Telegram, deps.Logger, func() {
		if deps.Metrics != nil {
			deps.Metrics.AlertFailures.Inc()
		}
	})

	trackingSvc := tracking.NewService(deps.Catalog, selector, aggregator, eventStore, geoDetect, deps.Metrics, deps.Logger)
	postbackHdl := postback.NewHandler(eventStore, aggregator, notifier, deps.Metrics, deps.Logger)

	s := &Server{
		trackingService: trackingSvc,
		postbackHandler: postbackHdl,
		aggregator:      aggregator,
		eventStore:      eventStore,
		catalog:         deps.Catalog,
		vkClient:        vkads.NewClient(deps.Config.VK.AccessToken, deps.Logger),
		config:          deps.Config,
		logger:          deps.Logger,
		metrics:         deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Tracking
	mux.HandleFunc("/click", s.handleClick)
	mux.HandleFunc("/postback", s.handlePostback)

	// VK ads OAuth setup and stats pull
	oauth := vkads.NewOAuth(deps.Config.VK, deps.Logger)
	mux.HandleFunc("/oauth/vk/login", oauth.HandleLogin)
	mux.HandleFunc("/oauth/vk/callback", oauth.HandleCallback)
	mux.HandleFunc("/cron/pull-vk", s.handlePullVK)

	// Management / diagnostics
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/offers", s.handleOffers)
	mux.HandleFunc("/rotators", s.handleRotators)
	mux.HandleFunc("/conversions", s.handleConversions)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Click ----

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	q := r.URL.Query()

	params := &tracking.ClickParams{
		OfferID:   q.Get("offer_id"),
		Target:    q.Get("target"),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if params.OfferID == "" {
		s.recordClickError("missing_offer_id")
		s.errorResponse(w, "offer_id is required", http.StatusBadRequest)
		return
	}

	result, err := s.trackingService.RegisterClick(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrOfferNotFound), errors.Is(err, catalog.ErrRotatorNotFound):
			s.recordClickError("unknown_offer")
			s.errorResponse(w, "unknown offer_id", http.StatusBadRequest)
		case errors.Is(err, tracking.ErrTargetRequired):
			s.recordClickError("missing_target")
			s.errorResponse(w, "target is required", http.StatusBadRequest)
		case errors.Is(err, deeplink.ErrUnknownNetwork):
			s.recordClickError("unknown_network")
			s.logger.Error("offer references unknown network", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
		default:
			s.recordClickError("internal")
			s.logger.Error("click failed", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	if s.metrics != nil {
		s.metrics.ClickLatency.Observe(time.Since(start).Seconds())
	}

	if q.Get("dry") != "" {
		s.jsonResponse(w, map[string]interface{}{
			"ok":          true,
			"click_id":    result.ClickID,
			"redirect_to": result.RedirectTo,
			"note":        "dry run: no redirect",
		})
		return
	}

	http.Redirect(w, r, result.RedirectTo, http.StatusFound)
}

// ---- Postback ----

func (s *Server) handlePostback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	q := r.URL.Query()

	key := q.Get("key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.Postback.Secret)) != 1 {
		if s.metrics != nil {
			s.metrics.PostbackRejected.Inc()
		}
		s.logger.Warn("postback rejected: bad secret", zap.String("remote_addr", r.RemoteAddr))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
		return
	}

	params := &postback.Params{
		ClickID:  q.Get("sub1"),
		Payout:   q.Get("payout"),
		Currency: q.Get("currency"),
		Status:   q.Get("status"),
		OrderID:  q.Get("order_id"),
		Network:  q.Get("network"),
	}

	if _, err := s.postbackHandler.Process(r.Context(), params); err != nil {
		s.logger.Error("postback failed", zap.Error(err))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("error"))
		return
	}

	if s.metrics != nil {
		s.metrics.PostbackLatency.Observe(time.Since(start).Seconds())
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

// ---- VK stats pull ----

func (s *Server) handlePullVK(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if s.config.VK.CronSecret == "" ||
		subtle.ConstantTimeCompare([]byte(key), []byte(s.config.VK.CronSecret)) != 1 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": "forbidden"})
		return
	}

	if s.config.VK.AccessToken == "" || s.config.VK.AdsAccountID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": "vk access token or account id not configured"})
		return
	}

	result, err := s.vkClient.PullDailyStats(r.Context(), s.config.VK.AdsAccountID)
	if err != nil {
		s.logger.Error("vk stats pull failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"ok":              true,
		"account_id":      result.AccountID,
		"campaigns_count": result.CampaignsCount,
		"stats_rows":      result.StatsRows,
		"sample":          result.Sample,
	})
}

// ---- Management / diagnostics ----

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Query().Get("rotator")
	if key != "" {
		if !s.catalog.HasRotator(key) {
			http.NotFound(w, r)
			return
		}
		stats, err := s.aggregator.Stats(r.Context(), key)
		if err != nil {
			s.logger.Error("failed to read stats", zap.Error(err))
			s.errorResponse(w, "failed to read stats", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, stats)
		return
	}

	all := make(map[string]interface{})
	for _, rot := range s.catalog.Rotators() {
		stats, err := s.aggregator.Stats(r.Context(), rot.Key)
		if err != nil {
			s.logger.Error("failed to read stats", zap.Error(err), zap.String("rotator", rot.Key))
			s.errorResponse(w, "failed to read stats", http.StatusInternalServerError)
			return
		}
		all[rot.Key] = stats
	}
	s.jsonResponse(w, all)
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, s.catalog.Offers())
}

func (s *Server) handleRotators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, s.catalog.Rotators())
}

func (s *Server) handleConversions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	conversions, err := s.eventStore.ListConversions(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list conversions", zap.Error(err))
		s.errorResponse(w, "failed to list conversions", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, conversions)
}

// ---- Helpers ----

func (s *Server) jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": message})
}

func (s *Server) recordClickError(reason string) {
	if s.metrics != nil {
		s.metrics.ClickErrors.WithLabelValues(reason).Inc()
	}
}

// clientIP extracts the visitor IP, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
