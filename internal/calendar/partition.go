// Package calendar splits a season's date range into ISO-aligned weeks.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"bookaway/internal/models"
)

const secondsPerWeek = 7 * 24 * 60 * 60

// StartOfISOWeek returns the Monday (midnight UTC) of the ISO week containing t.
func StartOfISOWeek(t time.Time) time.Time {
	d := models.DateOf(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0 ... Sunday = 6
	return d.AddDate(0, 0, -offset)
}

// Partition generates one week per ISO week from the week of from to the week
// of to, inclusive. The weeks are anchored on the boundary preceding the ISO
// week of from: week i starts one day after boundary + i weeks and ends seven
// days after it, so every generated week runs Monday..Sunday.
func Partition(seasonID int64, from, to time.Time) ([]models.Week, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: from and to are required", models.ErrInvalidRange)
	}
	if models.DateOf(to).Before(models.DateOf(from)) {
		return nil, fmt.Errorf("%w: to %s is before from %s", models.ErrInvalidRange,
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	boundary := StartOfISOWeek(from).AddDate(0, 0, -1)
	count := weeksBetween(StartOfISOWeek(from), StartOfISOWeek(to)) + 1

	weeks := make([]models.Week, 0, count)
	for i := 0; i < count; i++ {
		anchor := boundary.AddDate(0, 0, 7*i)
		weekFrom := anchor.AddDate(0, 0, 1)
		_, isoWeek := weekFrom.ISOWeek()
		weeks = append(weeks, models.Week{
			SeasonID:        seasonID,
			WeekNumber:      isoWeek,
			From:            weekFrom,
			To:              anchor.AddDate(0, 0, 7),
			Bookability:     models.FullyBookable,
			NotBookableDays: []time.Time{},
		})
	}
	return weeks, nil
}

// weeksBetween counts whole weeks between two Mondays. Both values are UTC
// midnights so the division is exact. Seconds are used instead of
// time.Duration, which saturates after about 292 years.
func weeksBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / secondsPerWeek)
}

// Days lists every calendar day of w in order.
func Days(w models.Week) []time.Time {
	var days []time.Time
	for d := models.DateOf(w.From); !d.After(models.DateOf(w.To)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// NormalizeNotBookableDays truncates the given days to dates, removes
// duplicates and sorts them. Every day must fall inside w.
func NormalizeNotBookableDays(w models.Week, days []time.Time) ([]time.Time, error) {
	seen := make(map[time.Time]bool, len(days))
	result := make([]time.Time, 0, len(days))
	for _, d := range days {
		date := models.DateOf(d)
		if !w.ContainsDate(date) {
			return nil, fmt.Errorf("%w: %s is outside week %d (%s - %s)", models.ErrInvalidRange,
				date.Format("2006-01-02"), w.WeekNumber, w.From.Format("2006-01-02"), w.To.Format("2006-01-02"))
		}
		if seen[date] {
			continue
		}
		seen[date] = true
		result = append(result, date)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// BookableDays returns the days of w that are not carved out.
func BookableDays(w models.Week) []time.Time {
	if w.Bookability == models.NotBookable {
		return nil
	}
	excluded := make(map[time.Time]bool, len(w.NotBookableDays))
	for _, d := range w.NotBookableDays {
		excluded[models.DateOf(d)] = true
	}
	var days []time.Time
	for _, d := range Days(w) {
		if !excluded[d] {
			days = append(days, d)
		}
	}
	return days
}
