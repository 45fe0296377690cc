package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
	"time"

	"inkcal/internal/agg"
	"inkcal/internal/config"
	appLog "inkcal/internal/log"
	"inkcal/internal/model"
	"inkcal/internal/view"
)

// Server provides the HTTP API plus the /calendar page that the capture
// pipeline screenshots.
type Server struct {
	cfg        *config.Config
	loc        *time.Location
	viewKind   view.Kind
	aggregator *agg.Aggregator
	mux        *http.ServeMux

	// In-memory cache for /api/events responses to avoid redundant
	// fetch/parse/expand work on every HTTP request.
	eventsMu    sync.RWMutex
	eventsCache *eventsCache
}

//go:embed calendar.html
var templateFS embed.FS

var calendarTmpl = template.Must(template.ParseFS(templateFS, "calendar.html"))

// NewServer constructs a Server. The view kind and timezone are resolved
// by the caller so that bad values fail at startup, not per request.
func NewServer(cfg *config.Config, loc *time.Location, viewKind view.Kind, aggregator *agg.Aggregator) *Server {
	s := &Server{
		cfg:        cfg,
		loc:        loc,
		viewKind:   viewKind,
		aggregator: aggregator,
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays reachable for probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="inkcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/calendar", s.handleCalendar)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG from disk. http.ServeFile
// maps missing files and permission problems to sensible status codes.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.PreviewPath)
}

// EventsResponse is the JSON response shape for /api/events. The fields
// mirror what the calendar template consumes.
type EventsResponse struct {
	View      string                 `json:"view"`
	Events    []model.CanonicalEvent `json:"events"`
	CurrentDt string                 `json:"currentDt"`
	Timezone  string                 `json:"timezone"`
	WeekStart int                    `json:"weekStart"`
	Start     string                 `json:"rangeStart"`
	End       string                 `json:"rangeEnd"`
}

// eventsCache holds a cached /api/events response and its timestamp.
type eventsCache struct {
	resp      EventsResponse
	updatedAt time.Time
}

// BuildEvents resolves the configured view window for now and aggregates
// all configured feeds into it. Shared by /api/events, /calendar and the
// once-mode pipeline in cmd/inkcal.
func (s *Server) BuildEvents(ctx context.Context, now time.Time) (EventsResponse, error) {
	window := view.Resolve(s.viewKind, now, view.Config{
		WeekStartDay:       s.cfg.WeekStartDay,
		IncludeLeadingDays: s.cfg.IncludeLeadingDays,
	})

	sources := make([]agg.Source, 0, len(s.cfg.Calendars))
	for _, c := range s.cfg.Calendars {
		sources = append(sources, agg.Source{Ref: c.URL, Color: c.Color})
	}

	events, err := s.aggregator.Aggregate(ctx, sources, window, s.loc)
	if err != nil {
		return EventsResponse{}, err
	}
	if len(events) == 0 {
		appLog.Warn("no events found for configured feeds",
			"range_start", window.Start.Format(time.RFC3339),
			"range_end", window.End.Format(time.RFC3339),
		)
	}

	if s.cfg.SkipCompleted {
		events = agg.SkipCompleted(events, now, s.loc)
	}

	// The week view degrades to a plain forward grid when leading days
	// are suppressed; the template keys off the view name.
	viewName := string(s.viewKind)
	if s.viewKind == view.WeekGrid && !s.cfg.IncludeLeadingDays {
		viewName = "timeGrid"
	}

	// Current time rounded down to the hour, in the display zone.
	currentDt := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())

	return EventsResponse{
		View:      viewName,
		Events:    events,
		CurrentDt: currentDt.Format(time.RFC3339),
		Timezone:  s.loc.String(),
		WeekStart: s.cfg.WeekStartDay,
		Start:     window.Start.Format(time.RFC3339),
		End:       window.End.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	resp, err := s.cachedEvents(r.Context())
	if err != nil {
		appLog.Error("api events failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// cachedEvents returns the events response, reusing a recent one when
// available. The cache is a performance shortcut for the web UI; the
// refresh cycle is driven by cron in cmd/inkcal.
func (s *Server) cachedEvents(ctx context.Context) (EventsResponse, error) {
	const eventsCacheTTL = 30 * time.Second

	s.eventsMu.RLock()
	ec := s.eventsCache
	s.eventsMu.RUnlock()
	if ec != nil && time.Since(ec.updatedAt) < eventsCacheTTL {
		return ec.resp, nil
	}

	resp, err := s.BuildEvents(ctx, time.Now().In(s.loc))
	if err != nil {
		return EventsResponse{}, err
	}

	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{resp: resp, updatedAt: time.Now()}
	s.eventsMu.Unlock()

	return resp, nil
}

// handleCalendar renders the event list as HTML for the capture pipeline.
// The root element carries data-ready="true" once rendered so chromedp
// knows when to take the screenshot.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	resp, err := s.cachedEvents(r.Context())
	if err != nil {
		appLog.Error("calendar render failed", err)
		http.Error(w, "failed to build events", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := calendarTmpl.Execute(w, resp); err != nil {
		appLog.Error("calendar template failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
