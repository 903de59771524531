package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookaway/internal/models"
)

const (
	weekColumns = `id, season_id, week_number, from_date, to_date, week_status, not_bookable_days, created_at, updated_at`
	dayLayout   = "2006-01-02"
)

// InsertWeeks stores weeks in order and fills their IDs.
func (r *repo) InsertWeeks(ctx context.Context, weeks []models.Week) error {
	now := time.Now().UTC()
	for i := range weeks {
		w := &weeks[i]
		days, err := encodeDays(w.NotBookableDays)
		if err != nil {
			return err
		}
		if w.Bookability == "" {
			w.Bookability = models.FullyBookable
		}

		res, err := r.q.ExecContext(ctx, `
			INSERT INTO weeks (season_id, week_number, from_date, to_date, week_status, not_bookable_days, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			w.SeasonID, w.WeekNumber, w.From.UTC(), w.To.UTC(), string(w.Bookability), days, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert week %d of season %d: %w", w.WeekNumber, w.SeasonID, err)
		}
		if w.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("week id: %w", err)
		}
		w.CreatedAt = now
		w.UpdatedAt = now
	}
	return nil
}

// GetWeek returns a week by ID.
func (r *repo) GetWeek(ctx context.Context, id int64) (*models.Week, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+weekColumns+` FROM weeks WHERE id = ?`, id)
	w, err := scanWeek(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("week %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get week %d: %w", id, err)
	}
	return w, nil
}

// ListWeeks returns the weeks of a season ordered by start date.
func (r *repo) ListWeeks(ctx context.Context, seasonID int64) ([]models.Week, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+weekColumns+` FROM weeks WHERE season_id = ? ORDER BY from_date, id`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list weeks of season %d: %w", seasonID, err)
	}
	defer rows.Close()

	var weeks []models.Week
	for rows.Next() {
		w, err := scanWeek(rows)
		if err != nil {
			return nil, err
		}
		weeks = append(weeks, *w)
	}
	return weeks, rows.Err()
}

// UpdateWeekBookability sets the bookability and carved-out days of a week.
func (r *repo) UpdateWeekBookability(ctx context.Context, id int64, b models.Bookability, notBookableDays []time.Time) error {
	days, err := encodeDays(notBookableDays)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE weeks SET week_status = ?, not_bookable_days = ?, updated_at = ? WHERE id = ?`,
		string(b), days, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update week %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("week %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func scanWeek(row scanner) (*models.Week, error) {
	var w models.Week
	var status, days string
	if err := row.Scan(&w.ID, &w.SeasonID, &w.WeekNumber, &w.From, &w.To, &status, &days, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Bookability = models.Bookability(status)

	parsed, err := decodeDays(days)
	if err != nil {
		return nil, fmt.Errorf("week %d not_bookable_days: %w", w.ID, err)
	}
	w.NotBookableDays = parsed
	return &w, nil
}

func encodeDays(days []time.Time) (string, error) {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.UTC().Format(dayLayout)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode days: %w", err)
	}
	return string(data), nil
}

func decodeDays(s string) ([]time.Time, error) {
	if s == "" {
		return []time.Time{}, nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	days := make([]time.Time, 0, len(raw))
	for _, v := range raw {
		d, err := time.Parse(dayLayout, v)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}
