// Package api exposes the season and booking operations over HTTP/JSON.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"bookaway/internal/allocation"
	"bookaway/internal/config"
	"bookaway/internal/ledger"
	"bookaway/internal/metrics"
	"bookaway/internal/models"
	"bookaway/internal/season"
)

// SeasonService is the lifecycle surface used by the handlers.
type SeasonService interface {
	Create(ctx context.Context, in season.CreateSeason) (*models.Season, error)
	Open(ctx context.Context, id int64) error
	Close(ctx context.Context, id int64) (ledger.FinalizeResult, error)
	Delete(ctx context.Context, id int64) (ledger.PurgeResult, error)
	ChangeSeasonStatus(ctx context.Context, id int64, status models.SeasonStatus) error
	GetSeason(ctx context.Context, id int64) (*models.Season, error)
	GetSeasonStatus(ctx context.Context, id int64) (models.SeasonStatus, error)
	ListSeasons(ctx context.Context, statuses ...models.SeasonStatus) ([]models.Season, error)
	ListWeeks(ctx context.Context, seasonID int64, viewer string) ([]models.WeekWithBookings, error)
	SetWeekBookability(ctx context.Context, weekID int64, b models.Bookability, days []time.Time) (*models.Week, error)
	UsedPoints(ctx context.Context, userID string) (int, error)
	NextBookedWeek(ctx context.Context, userID string, now time.Time) (*models.BookedWeek, error)
	ListUserBookings(ctx context.Context, userID string, seasonID int64) ([]models.Booking, error)
}

// BookingService accepts booking requests.
type BookingService interface {
	RequestBooking(ctx context.Context, req allocation.Request) (*models.Booking, error)
}

var (
	_ SeasonService  = (*season.Controller)(nil)
	_ BookingService = (*allocation.Engine)(nil)
)

// HTTPServer serves the JSON API.
type HTTPServer struct {
	seasons  SeasonService
	bookings BookingService
	apiKey   string
	limiter  *userLimiter
	metrics  *metrics.Metrics
	log      *zerolog.Logger
	now      func() time.Time
	server   *http.Server
}

// NewHTTPServer builds the server and its routes.
func NewHTTPServer(cfg config.ServerConfig, seasons SeasonService, bookings BookingService, m *metrics.Metrics, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "api").Logger()
	s := &HTTPServer{
		seasons:  seasons,
		bookings: bookings,
		apiKey:   cfg.APIKey,
		limiter:  newUserLimiter(cfg.RateLimit, cfg.RateBurst),
		metrics:  m,
		log:      &l,
		now:      time.Now,
	}

	mux := http.NewServeMux()
	s.handle(mux, "POST /api/seasons", "create_season", s.adminOnly(s.handleCreateSeason))
	s.handle(mux, "GET /api/seasons", "list_seasons", s.adminOnly(s.handleListSeasons))
	s.handle(mux, "GET /api/seasons/{id}/status", "season_status", s.handleSeasonStatus)
	s.handle(mux, "PUT /api/seasons/{id}/status", "change_season_status", s.adminOnly(s.handleChangeSeasonStatus))
	s.handle(mux, "POST /api/seasons/{id}/open", "open_season", s.adminOnly(s.handleOpenSeason))
	s.handle(mux, "POST /api/seasons/{id}/close", "close_season", s.adminOnly(s.handleCloseSeason))
	s.handle(mux, "POST /api/seasons/{id}/delete", "delete_season", s.adminOnly(s.handleDeleteSeason))
	s.handle(mux, "GET /api/seasons/{id}/weeks", "list_weeks", s.handleListWeeks)
	s.handle(mux, "GET /api/seasons/{id}/export", "export_season", s.adminOnly(s.handleExportSeason))
	s.handle(mux, "PUT /api/weeks/{id}/bookability", "week_bookability", s.adminOnly(s.handleWeekBookability))
	s.handle(mux, "POST /api/bookings", "request_booking", s.rateLimited(s.handleRequestBooking))
	s.handle(mux, "GET /api/me/points", "used_points", s.handleUsedPoints)
	s.handle(mux, "GET /api/me/next-week", "next_week", s.handleNextWeek)
	s.handle(mux, "GET /api/me/bookings", "user_bookings", s.handleUserBookings)

	handler := s.withRequestID(s.withAPIKey(s.withIdentity(mux)))
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handle registers h under pattern and counts its responses as route.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.IncHTTP(route, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
