package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bookaway/internal/allocation"
	"bookaway/internal/export"
	"bookaway/internal/models"
	"bookaway/internal/season"
)

const dateLayout = "2006-01-02"

// CreateSeasonRequest is the body of POST /api/seasons.
type CreateSeasonRequest struct {
	Name string `json:"name"`
	From string `json:"from"` // Format: YYYY-MM-DD
	To   string `json:"to"`   // Format: YYYY-MM-DD
	Cost int    `json:"cost"`
}

// ChangeStatusRequest is the body of PUT /api/seasons/{id}/status.
type ChangeStatusRequest struct {
	Status models.SeasonStatus `json:"status"`
}

// BookabilityRequest is the body of PUT /api/weeks/{id}/bookability.
type BookabilityRequest struct {
	WeekStatus      models.Bookability `json:"week_status"`
	NotBookableDays []string           `json:"not_bookable_days,omitempty"`
}

// BookingRequest is the body of POST /api/bookings.
type BookingRequest struct {
	WeekID      int64           `json:"week_id"`
	Priority    models.Priority `json:"priority"`
	PointsSpent int             `json:"points_spent"`
}

// SeasonStatusResponse reports the status of a season.
type SeasonStatusResponse struct {
	SeasonID int64               `json:"season_id"`
	Status   models.SeasonStatus `json:"status"`
}

// CloseResponse summarises a season close.
type CloseResponse struct {
	SeasonID  int64   `json:"season_id"`
	Status    string  `json:"status"`
	Weeks     int     `json:"weeks"`
	Awarded   []int64 `json:"awarded"`
	Cancelled []int64 `json:"cancelled"`
}

// DeleteResponse summarises a season deletion.
type DeleteResponse struct {
	SeasonID int64  `json:"season_id"`
	Status   string `json:"status"`
	Weeks    int64  `json:"weeks"`
	Bookings int64  `json:"bookings"`
}

// BookingResponse is returned for an accepted booking request.
type BookingResponse struct {
	BookingID   int64                `json:"booking_id"`
	WeekID      int64                `json:"week_id"`
	SeasonID    int64                `json:"season_id"`
	Priority    models.Priority      `json:"priority"`
	Status      models.BookingStatus `json:"status"`
	RequestedAt time.Time            `json:"requested_at"`
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", models.ErrInvalidArgument)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", r.PathValue("id"), models.ErrInvalidArgument)
	}
	return id, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required: %w", field, models.ErrInvalidRange)
	}
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format; expected YYYY-MM-DD: %w", field, models.ErrInvalidRange)
	}
	return d, nil
}

// handleCreateSeason creates a DRAFT season with its weeks.
// POST /api/seasons
func (s *HTTPServer) handleCreateSeason(w http.ResponseWriter, r *http.Request) {
	var req CreateSeasonRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	from, err := parseDate("from", req.From)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	to, err := parseDate("to", req.To)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	created, err := s.seasons.Create(r.Context(), season.CreateSeason{
		Name:      req.Name,
		From:      from,
		To:        to,
		Cost:      req.Cost,
		CreatedBy: identityFrom(r.Context()).UserID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"season_id": created.ID, "season": created})
}

// handleListSeasons lists seasons, optionally filtered by status.
// GET /api/seasons?status=DRAFT&status=OPEN
func (s *HTTPServer) handleListSeasons(w http.ResponseWriter, r *http.Request) {
	var statuses []models.SeasonStatus
	for _, st := range r.URL.Query()["status"] {
		statuses = append(statuses, models.SeasonStatus(st))
	}
	seasons, err := s.seasons.ListSeasons(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if seasons == nil {
		seasons = []models.Season{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"seasons": seasons})
}

// GET /api/seasons/{id}/status
func (s *HTTPServer) handleSeasonStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status, err := s.seasons.GetSeasonStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SeasonStatusResponse{SeasonID: id, Status: status})
}

// PUT /api/seasons/{id}/status
func (s *HTTPServer) handleChangeSeasonStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req ChangeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.seasons.ChangeSeasonStatus(r.Context(), id, req.Status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SeasonStatusResponse{SeasonID: id, Status: req.Status})
}

// POST /api/seasons/{id}/open
func (s *HTTPServer) handleOpenSeason(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.seasons.Open(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SeasonStatusResponse{SeasonID: id, Status: models.SeasonOpen})
}

// POST /api/seasons/{id}/close
func (s *HTTPServer) handleCloseSeason(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	result, err := s.seasons.Close(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := CloseResponse{
		SeasonID:  id,
		Status:    string(models.SeasonClosed),
		Weeks:     result.Weeks,
		Awarded:   result.Awarded,
		Cancelled: result.Cancelled,
	}
	if resp.Awarded == nil {
		resp.Awarded = []int64{}
	}
	if resp.Cancelled == nil {
		resp.Cancelled = []int64{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/seasons/{id}/delete
func (s *HTTPServer) handleDeleteSeason(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	result, err := s.seasons.Delete(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{
		SeasonID: id,
		Status:   string(models.SeasonDeleted),
		Weeks:    result.Weeks,
		Bookings: result.Bookings,
	})
}

// handleListWeeks returns the weeks of a season with their bookings, marking
// the caller's own.
// GET /api/seasons/{id}/weeks
func (s *HTTPServer) handleListWeeks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	weeks, err := s.seasons.ListWeeks(r.Context(), id, identityFrom(r.Context()).UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"season_id": id, "weeks": weeks})
}

// GET /api/seasons/{id}/export
func (s *HTTPServer) handleExportSeason(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	ss, err := s.seasons.GetSeason(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	weeks, err := s.seasons.ListWeeks(r.Context(), id, "")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteSeason(&buf, ss, weeks); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(ss)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// PUT /api/weeks/{id}/bookability
func (s *HTTPServer) handleWeekBookability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req BookabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	days := make([]time.Time, 0, len(req.NotBookableDays))
	for _, v := range req.NotBookableDays {
		d, err := parseDate("not_bookable_days", v)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		days = append(days, d)
	}

	week, err := s.seasons.SetWeekBookability(r.Context(), id, req.WeekStatus, days)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

// handleRequestBooking places a booking for the caller.
// POST /api/bookings
func (s *HTTPServer) handleRequestBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	b, err := s.bookings.RequestBooking(r.Context(), allocation.Request{
		UserID:      identityFrom(r.Context()).UserID,
		WeekID:      req.WeekID,
		Priority:    req.Priority,
		PointsSpent: req.PointsSpent,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, BookingResponse{
		BookingID:   b.ID,
		WeekID:      b.WeekID,
		SeasonID:    b.SeasonID,
		Priority:    b.Priority,
		Status:      b.Status,
		RequestedAt: b.RequestedAt,
	})
}

// GET /api/me/points
func (s *HTTPServer) handleUsedPoints(w http.ResponseWriter, r *http.Request) {
	userID := identityFrom(r.Context()).UserID
	points, err := s.seasons.UsedPoints(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "used_points": points})
}

// GET /api/me/next-week
func (s *HTTPServer) handleNextWeek(w http.ResponseWriter, r *http.Request) {
	next, err := s.seasons.NextBookedWeek(r.Context(), identityFrom(r.Context()).UserID, s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"week": next})
}

// GET /api/me/bookings?season_id=
func (s *HTTPServer) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	var seasonID int64
	if v := r.URL.Query().Get("season_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			s.writeServiceError(w, r, fmt.Errorf("invalid season_id %q: %w", v, models.ErrInvalidArgument))
			return
		}
		seasonID = id
	}
	bookings, err := s.seasons.ListUserBookings(r.Context(), identityFrom(r.Context()).UserID, seasonID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}
