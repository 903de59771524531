package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookaway/internal/ledger"
	"bookaway/internal/models"
)

const seasonColumns = `id, name, from_date, to_date, status, cost, created_by, created_at, updated_at`

// InsertSeason stores s and fills its ID and timestamps.
func (r *repo) InsertSeason(ctx context.Context, s *models.Season) error {
	if s == nil {
		return fmt.Errorf("season is nil")
	}
	now := time.Now().UTC()
	if s.Status == "" {
		s.Status = models.SeasonDraft
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO seasons (name, from_date, to_date, status, cost, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.From.UTC(), s.To.UTC(), string(s.Status), s.Cost, s.CreatedBy, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert season: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("season id: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetSeason returns a season by ID.
func (r *repo) GetSeason(ctx context.Context, id int64) (*models.Season, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE id = ?`, id)
	s, err := scanSeason(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("season %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get season %d: %w", id, err)
	}
	return s, nil
}

// ListSeasons returns seasons with one of the given statuses, or every
// season when none are given.
func (r *repo) ListSeasons(ctx context.Context, statuses ...models.SeasonStatus) ([]models.Season, error) {
	query := `SELECT ` + seasonColumns + ` FROM seasons`
	var args []any
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY from_date, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}
	defer rows.Close()

	var seasons []models.Season
	for rows.Next() {
		s, err := scanSeason(rows)
		if err != nil {
			return nil, err
		}
		seasons = append(seasons, *s)
	}
	return seasons, rows.Err()
}

// SetSeasonStatus writes the status of a season.
func (r *repo) SetSeasonStatus(ctx context.Context, id int64, status models.SeasonStatus) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE seasons SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update season %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("season %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// PurgeSeason deletes the bookings and weeks of a season. The season row
// itself is kept so its DELETED status stays visible.
func (r *repo) PurgeSeason(ctx context.Context, id int64) (ledger.PurgeResult, error) {
	var result ledger.PurgeResult

	res, err := r.q.ExecContext(ctx,
		`DELETE FROM bookings WHERE week_id IN (SELECT id FROM weeks WHERE season_id = ?)`, id)
	if err != nil {
		return result, fmt.Errorf("delete bookings of season %d: %w", id, err)
	}
	if result.Bookings, err = res.RowsAffected(); err != nil {
		return result, err
	}

	res, err = r.q.ExecContext(ctx, `DELETE FROM weeks WHERE season_id = ?`, id)
	if err != nil {
		return result, fmt.Errorf("delete weeks of season %d: %w", id, err)
	}
	if result.Weeks, err = res.RowsAffected(); err != nil {
		return result, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSeason(row scanner) (*models.Season, error) {
	var s models.Season
	var status string
	if err := row.Scan(&s.ID, &s.Name, &s.From, &s.To, &status, &s.Cost, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = models.SeasonStatus(status)
	return &s, nil
}
