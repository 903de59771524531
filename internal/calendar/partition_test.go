package calendar

import (
	"testing"
	"time"

	"bookaway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestStartOfISOWeek(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday", date(2025, 1, 6), date(2025, 1, 6)},
		{"wednesday", date(2025, 1, 8), date(2025, 1, 6)},
		{"sunday", date(2025, 1, 12), date(2025, 1, 6)},
		{"sunday across year", date(2025, 1, 5), date(2024, 12, 30)},
		{"time of day dropped", time.Date(2025, 1, 9, 18, 45, 0, 0, time.UTC), date(2025, 1, 6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StartOfISOWeek(tt.in))
		})
	}
}

func TestPartition_CoversRange(t *testing.T) {
	from := date(2025, 1, 6)
	to := date(2025, 2, 2)

	weeks, err := Partition(42, from, to)
	require.NoError(t, err)
	require.Len(t, weeks, 4)

	assert.Equal(t, from, weeks[0].From)
	assert.Equal(t, to, weeks[len(weeks)-1].To)

	for i, w := range weeks {
		assert.Equal(t, int64(42), w.SeasonID)
		assert.Equal(t, models.FullyBookable, w.Bookability)
		assert.Empty(t, w.NotBookableDays)
		assert.Equal(t, time.Monday, w.From.Weekday())
		assert.Equal(t, time.Sunday, w.To.Weekday())
		assert.Equal(t, w.From.AddDate(0, 0, 6), w.To)

		_, iso := w.From.ISOWeek()
		assert.Equal(t, iso, w.WeekNumber)

		if i > 0 {
			prev := weeks[i-1]
			assert.Equal(t, prev.To.AddDate(0, 0, 1), w.From, "gap or overlap before week %d", w.WeekNumber)
			assert.Equal(t, prev.WeekNumber+1, w.WeekNumber)
		}
	}
	assert.Equal(t, 2, weeks[0].WeekNumber)
	assert.Equal(t, 5, weeks[3].WeekNumber)
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name        string
		from        time.Time
		to          time.Time
		wantCount   int
		wantFirst   time.Time
		wantNumbers []int
		wantLastTo  time.Time
		wantErr     bool
	}{
		{
			name:        "mid-week bounds are widened to whole weeks",
			from:        date(2025, 1, 8),
			to:          date(2025, 1, 16),
			wantCount:   2,
			wantFirst:   date(2025, 1, 6),
			wantNumbers: []int{2, 3},
		},
		{
			name:        "single day",
			from:        date(2025, 3, 12),
			to:          date(2025, 3, 12),
			wantCount:   1,
			wantFirst:   date(2025, 3, 10),
			wantNumbers: []int{11},
		},
		{
			name:        "across year boundary",
			from:        date(2024, 12, 23),
			to:          date(2025, 1, 12),
			wantCount:   3,
			wantFirst:   date(2024, 12, 23),
			wantNumbers: []int{52, 1, 2},
		},
		{
			name:        "sunday start belongs to previous iso week",
			from:        date(2025, 1, 5),
			to:          date(2025, 1, 5),
			wantCount:   1,
			wantFirst:   date(2024, 12, 30),
			wantNumbers: []int{1},
		},
		{
			// 400 Gregorian years are exactly 20871 weeks.
			name:       "range longer than time.Duration",
			from:       date(2000, 1, 3),
			to:         date(2400, 1, 3),
			wantCount:  20872,
			wantFirst:  date(2000, 1, 3),
			wantLastTo: date(2400, 1, 9),
		},
		{
			name:    "to before from",
			from:    date(2025, 2, 2),
			to:      date(2025, 1, 6),
			wantErr: true,
		},
		{
			name:    "zero to",
			from:    date(2025, 2, 2),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weeks, err := Partition(1, tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidRange)
				assert.Nil(t, weeks)
				return
			}
			require.NoError(t, err)
			require.Len(t, weeks, tt.wantCount)
			assert.Equal(t, tt.wantFirst, weeks[0].From)
			if !tt.wantLastTo.IsZero() {
				assert.Equal(t, tt.wantLastTo, weeks[len(weeks)-1].To)
				assert.True(t, weeks[len(weeks)-1].ContainsDate(tt.to))
			}
			if tt.wantNumbers == nil {
				return
			}

			numbers := make([]int, len(weeks))
			for i, w := range weeks {
				numbers[i] = w.WeekNumber
			}
			assert.Equal(t, tt.wantNumbers, numbers)
		})
	}
}

func TestNormalizeNotBookableDays(t *testing.T) {
	w := models.Week{WeekNumber: 2, From: date(2025, 1, 6), To: date(2025, 1, 12)}

	days, err := NormalizeNotBookableDays(w, []time.Time{
		date(2025, 1, 10),
		time.Date(2025, 1, 7, 13, 0, 0, 0, time.UTC),
		date(2025, 1, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2025, 1, 7), date(2025, 1, 10)}, days)

	_, err = NormalizeNotBookableDays(w, []time.Time{date(2025, 1, 13)})
	assert.ErrorIs(t, err, models.ErrInvalidRange)
}

func TestBookableDays(t *testing.T) {
	w := models.Week{From: date(2025, 1, 6), To: date(2025, 1, 12), Bookability: models.FullyBookable}
	assert.Len(t, Days(w), 7)
	assert.Len(t, BookableDays(w), 7)

	w.Bookability = models.PartiallyBookable
	w.NotBookableDays = []time.Time{date(2025, 1, 11), date(2025, 1, 12)}
	days := BookableDays(w)
	assert.Len(t, days, 5)
	assert.Equal(t, date(2025, 1, 10), days[len(days)-1])

	w.Bookability = models.NotBookable
	assert.Empty(t, BookableDays(w))
}
