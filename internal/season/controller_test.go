package season

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bookaway/internal/allocation"
	"bookaway/internal/database"
	"bookaway/internal/events"
	"bookaway/internal/models"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(e events.Event) { m.Called(e) }

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type memCache struct {
	mu    sync.Mutex
	data  map[int64][]models.WeekWithBookings
	gens  map[int64]int64
	hits  int
	reads int
}

func (c *memCache) Get(_ context.Context, id int64) ([]models.WeekWithBookings, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	w, ok := c.data[id]
	if ok {
		c.hits++
	}
	return w, c.gens[id], ok
}

func (c *memCache) Set(_ context.Context, id, gen int64, weeks []models.WeekWithBookings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] != gen {
		return
	}
	if c.data == nil {
		c.data = map[int64][]models.WeekWithBookings{}
	}
	c.data[id] = weeks
}

func (c *memCache) invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens == nil {
		c.gens = map[int64]int64{}
	}
	c.gens[id]++
	delete(c.data, id)
}

type env struct {
	db         *database.DB
	controller *Controller
	engine     *allocation.Engine
}

func newEnv(t *testing.T, cache WeekCache, pub events.Publisher) *env {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "season.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}

	return &env{
		db:         db,
		controller: NewController(db, cache, pub, &logger),
		engine:     allocation.NewEngine(db, pub, &logger, allocation.WithClock(tick)),
	}
}

func winter() CreateSeason {
	return CreateSeason{
		Name:      "Winter 2025",
		From:      time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC),
		Cost:      10,
		CreatedBy: "admin",
	}
}

func TestCreate(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	assert.Equal(t, models.SeasonDraft, s.Status)

	weeks, err := e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)
	require.Len(t, weeks, 4)
	for i, w := range weeks {
		assert.Equal(t, 2+i, w.WeekNumber)
		assert.Equal(t, time.Monday, w.From.Weekday())
		assert.Equal(t, time.Sunday, w.To.Weekday())
		assert.Equal(t, models.FullyBookable, w.Bookability)
		assert.Empty(t, w.Bookings)
		if i > 0 {
			assert.True(t, w.From.Equal(weeks[i-1].To.AddDate(0, 0, 1)))
		}
	}
}

func TestCreate_Invalid(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	in := winter()
	in.From, in.To = in.To, in.From
	_, err := e.controller.Create(ctx, in)
	assert.ErrorIs(t, err, models.ErrInvalidRange)

	in = winter()
	in.Name = "  "
	_, err = e.controller.Create(ctx, in)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	seasons, err := e.controller.ListSeasons(ctx)
	require.NoError(t, err)
	assert.Empty(t, seasons)
}

func TestOpen_Idempotent(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.MatchedBy(func(e events.Event) bool { return e.Type == events.SeasonCreated })).Once()
	pub.On("Publish", mock.MatchedBy(func(e events.Event) bool { return e.Type == events.SeasonOpened })).Once()

	e := newEnv(t, nil, pub)
	ctx := context.Background()
	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)

	require.NoError(t, e.controller.Open(ctx, s.ID))
	require.NoError(t, e.controller.Open(ctx, s.ID))

	status, err := e.controller.GetSeasonStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeasonOpen, status)
	pub.AssertExpectations(t)
}

func TestClose_FirstAppliedWins(t *testing.T) {
	rec := &recorder{}
	e := newEnv(t, nil, rec)
	ctx := context.Background()
	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	require.NoError(t, e.controller.Open(ctx, s.ID))

	weeks, err := e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)
	target := weeks[0].ID

	first, err := e.engine.RequestBooking(ctx, allocation.Request{UserID: "alice", WeekID: target, Priority: models.Priority1, PointsSpent: 5})
	require.NoError(t, err)
	second, err := e.engine.RequestBooking(ctx, allocation.Request{UserID: "bob", WeekID: target, Priority: models.Priority1, PointsSpent: 5})
	require.NoError(t, err)

	result, err := e.controller.Close(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Weeks)
	assert.Equal(t, []int64{first.ID}, result.Awarded)
	assert.Equal(t, []int64{second.ID}, result.Cancelled)
	require.Equal(t, 1, rec.count(events.SeasonClosed))

	weeks, err = e.controller.ListWeeks(ctx, s.ID, "bob")
	require.NoError(t, err)
	require.Len(t, weeks[0].Bookings, 2)
	for _, b := range weeks[0].Bookings {
		switch b.ID {
		case first.ID:
			assert.Equal(t, models.BookingBooked, b.Status)
			assert.False(t, b.BookedByUser)
		case second.ID:
			assert.Equal(t, models.BookingCancelled, b.Status)
			assert.True(t, b.BookedByUser)
		}
	}

	points, err := e.controller.UsedPoints(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, points)

	// Re-running the close never awards twice.
	again, err := e.controller.Close(ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Weeks)
	assert.Empty(t, again.Awarded)
	assert.Equal(t, 1, rec.count(events.SeasonClosed), "a repeated close publishes nothing")
	assert.Zero(t, rec.count(events.WeekUpdated))

	status, err := e.controller.GetSeasonStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeasonClosed, status)

	_, err = e.engine.RequestBooking(ctx, allocation.Request{UserID: "carol", WeekID: weeks[1].ID, Priority: models.Priority1})
	assert.ErrorIs(t, err, models.ErrSeasonNotOpen)
}

func TestClose_OneWinnerPerWeek(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	require.NoError(t, e.controller.Open(ctx, s.ID))
	weeks, err := e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)

	users := []string{"alice", "bob", "carol", "dave", "erin"}
	for i, u := range users {
		_, err := e.engine.RequestBooking(ctx, allocation.Request{UserID: u, WeekID: weeks[i%2].ID, Priority: models.Priority1})
		require.NoError(t, err)
		_, err = e.engine.RequestBooking(ctx, allocation.Request{UserID: u, WeekID: weeks[2+i%2].ID, Priority: models.Priority2})
		require.NoError(t, err)
	}

	_, err = e.controller.Close(ctx, s.ID)
	require.NoError(t, err)

	weeks, err = e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)
	for _, w := range weeks {
		booked := 0
		for _, b := range w.Bookings {
			assert.NotEqual(t, models.BookingApplied, b.Status)
			if b.Status == models.BookingBooked {
				booked++
			}
		}
		assert.Equal(t, 1, booked, "week %d", w.WeekNumber)
	}
}

func TestClose_RacesBookingRequests(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	require.NoError(t, e.controller.Open(ctx, s.ID))
	weeks, err := e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)

	_, err = e.engine.RequestBooking(ctx, allocation.Request{UserID: "early", WeekID: weeks[0].ID, Priority: models.Priority1})
	require.NoError(t, err)

	const requests = 24
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []int64
		rejected []error
	)
	start := make(chan struct{})

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			b, err := e.engine.RequestBooking(ctx, allocation.Request{
				UserID:   fmt.Sprintf("user-%d", i),
				WeekID:   weeks[i%len(weeks)].ID,
				Priority: models.Priority1,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected = append(rejected, err)
				return
			}
			accepted = append(accepted, b.ID)
		}(i)
	}

	var closeErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, closeErr = e.controller.Close(ctx, s.ID)
	}()

	close(start)
	wg.Wait()
	require.NoError(t, closeErr)
	assert.Equal(t, requests, len(accepted)+len(rejected))

	for _, err := range rejected {
		assert.ErrorIs(t, err, models.ErrSeasonNotOpen)
	}

	weeks, err = e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)
	status := make(map[int64]models.BookingStatus)
	for _, w := range weeks {
		booked := 0
		for _, b := range w.Bookings {
			status[b.ID] = b.Status
			assert.NotEqual(t, models.BookingApplied, b.Status, "booking %d left applied", b.ID)
			if b.Status == models.BookingBooked {
				booked++
			}
		}
		assert.LessOrEqual(t, booked, 1, "week %d", w.WeekNumber)
	}
	for _, id := range accepted {
		assert.Contains(t, []models.BookingStatus{models.BookingBooked, models.BookingCancelled}, status[id], "booking %d", id)
	}
}

func TestDelete(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	require.NoError(t, e.controller.Open(ctx, s.ID))
	weeks, err := e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)
	_, err = e.engine.RequestBooking(ctx, allocation.Request{UserID: "alice", WeekID: weeks[0].ID, Priority: models.Priority1})
	require.NoError(t, err)

	purged, err := e.controller.Delete(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), purged.Weeks)
	assert.Equal(t, int64(1), purged.Bookings)

	_, err = e.controller.ListWeeks(ctx, s.ID, "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	status, err := e.controller.GetSeasonStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeasonDeleted, status)

	assert.ErrorIs(t, e.controller.Open(ctx, s.ID), models.ErrNotFound)
	_, err = e.controller.Close(ctx, s.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = e.controller.Delete(ctx, s.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = e.engine.RequestBooking(ctx, allocation.Request{UserID: "alice", WeekID: weeks[1].ID, Priority: models.Priority1})
	assert.ErrorIs(t, err, models.ErrNotFound)

	bookings, err := e.controller.ListUserBookings(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestTransitions(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	closed, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	_, err = e.controller.Close(ctx, closed.ID)
	require.NoError(t, err, "a draft season can be closed")

	assert.ErrorIs(t, e.controller.Open(ctx, closed.ID), models.ErrInvalidTransition)
	assert.ErrorIs(t, e.controller.ChangeSeasonStatus(ctx, closed.ID, models.SeasonDraft), models.ErrInvalidTransition)

	open, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	require.NoError(t, e.controller.ChangeSeasonStatus(ctx, open.ID, models.SeasonOpen))
	assert.ErrorIs(t, e.controller.ChangeSeasonStatus(ctx, open.ID, models.SeasonDraft), models.ErrInvalidTransition)
	assert.ErrorIs(t, e.controller.ChangeSeasonStatus(ctx, open.ID, "ARCHIVED"), models.ErrInvalidArgument)

	draft, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	assert.NoError(t, e.controller.ChangeSeasonStatus(ctx, draft.ID, models.SeasonDraft))

	require.NoError(t, e.controller.ChangeSeasonStatus(ctx, closed.ID, models.SeasonDeleted))
	assert.ErrorIs(t, e.controller.ChangeSeasonStatus(ctx, closed.ID, models.SeasonOpen), models.ErrNotFound)

	assert.ErrorIs(t, e.controller.Open(ctx, 999), models.ErrNotFound)
	_, err = e.controller.GetSeasonStatus(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	active, err := e.controller.ListSeasons(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	drafts, err := e.controller.ListSeasons(ctx, models.SeasonDraft, models.SeasonOpen)
	require.NoError(t, err)
	assert.Len(t, drafts, 2)

	_, err = e.controller.ListSeasons(ctx, "ARCHIVED")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.SeasonStatus
		want     bool
	}{
		{models.SeasonDraft, models.SeasonOpen, true},
		{models.SeasonDraft, models.SeasonClosed, true},
		{models.SeasonOpen, models.SeasonOpen, true},
		{models.SeasonOpen, models.SeasonDraft, false},
		{models.SeasonClosed, models.SeasonOpen, false},
		{models.SeasonClosed, models.SeasonClosed, true},
		{models.SeasonClosed, models.SeasonDeleted, true},
		{models.SeasonDeleted, models.SeasonOpen, false},
		{models.SeasonDeleted, models.SeasonDeleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSetWeekBookability(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	weeks, err := e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)
	w := weeks[0]

	wed := w.From.AddDate(0, 0, 2)
	updated, err := e.controller.SetWeekBookability(ctx, w.ID, models.PartiallyBookable,
		[]time.Time{wed.Add(15 * time.Hour), wed})
	require.NoError(t, err)
	require.Len(t, updated.NotBookableDays, 1)
	assert.True(t, updated.NotBookableDays[0].Equal(wed))

	_, err = e.controller.SetWeekBookability(ctx, w.ID, models.PartiallyBookable, []time.Time{w.To.AddDate(0, 0, 1)})
	assert.ErrorIs(t, err, models.ErrInvalidRange)

	_, err = e.controller.SetWeekBookability(ctx, w.ID, "HALF", nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = e.controller.SetWeekBookability(ctx, 999, models.NotBookable, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)

	cleared, err := e.controller.SetWeekBookability(ctx, w.ID, models.FullyBookable, []time.Time{wed})
	require.NoError(t, err)
	assert.Empty(t, cleared.NotBookableDays)

	weeks, err = e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.FullyBookable, weeks[0].Bookability)
}

func TestListWeeks_UsesCache(t *testing.T) {
	cache := &memCache{}
	e := newEnv(t, cache, nil)
	ctx := context.Background()
	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	require.NoError(t, e.controller.Open(ctx, s.ID))

	weeks, err := e.controller.ListWeeks(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)

	_, err = e.engine.RequestBooking(ctx, allocation.Request{UserID: "alice", WeekID: weeks[0].ID, Priority: models.Priority1})
	require.NoError(t, err)

	// Stale until something invalidates the cache.
	cached, err := e.controller.ListWeeks(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Empty(t, cached[0].Bookings)

	cache.invalidate(s.ID)
	fresh, err := e.controller.ListWeeks(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.Len(t, fresh[0].Bookings, 1)
	assert.True(t, fresh[0].Bookings[0].BookedByUser)

	forBob, err := e.controller.ListWeeks(ctx, s.ID, "bob")
	require.NoError(t, err)
	assert.False(t, forBob[0].Bookings[0].BookedByUser)
	assert.True(t, fresh[0].Bookings[0].BookedByUser, "annotating for bob must not touch alice's copy")
}

func TestNextBookedWeek(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	s, err := e.controller.Create(ctx, winter())
	require.NoError(t, err)
	require.NoError(t, e.controller.Open(ctx, s.ID))
	weeks, err := e.controller.ListWeeks(ctx, s.ID, "")
	require.NoError(t, err)

	_, err = e.engine.RequestBooking(ctx, allocation.Request{UserID: "alice", WeekID: weeks[2].ID, Priority: models.Priority1, PointsSpent: 2})
	require.NoError(t, err)

	next, err := e.controller.NextBookedWeek(ctx, "alice", weeks[0].From)
	require.NoError(t, err)
	assert.Nil(t, next, "applied bookings are not won yet")

	_, err = e.controller.Close(ctx, s.ID)
	require.NoError(t, err)

	next, err = e.controller.NextBookedWeek(ctx, "alice", weeks[0].From)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, weeks[2].WeekNumber, next.WeekNumber)
	assert.Equal(t, s.ID, next.SeasonID)
}
