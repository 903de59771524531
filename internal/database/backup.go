package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bookaway/internal/config"
)

const backupPrefix = "bookaway_"

// BackupService periodically snapshots the database into a directory and
// prunes old snapshots.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
}

// NewBackupService returns a service that snapshots db according to cfg.
func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	l := logger.With().Str("component", "backup").Logger()
	return &BackupService{
		db:     db,
		config: cfg,
		logger: &l,
	}
}

// Start runs backups until ctx is done. It blocks.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := s.config.Interval()
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	s.logger.Info().Dur("interval", interval).Str("path", s.config.Path).Msg("Backup service started")

	// Run first backup after a short delay
	select {
	case <-time.After(time.Minute):
		s.run(ctx)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *BackupService) run(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled backup failed")
	}
	deleted, err := s.CleanupOldBackups(time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Backup cleanup failed")
	} else if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Msg("Cleaned up old backups")
	}
}

// PerformBackup writes a consistent snapshot and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.Path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(s.config.Path, fmt.Sprintf("%s%s.db", backupPrefix, timestamp))

	s.logger.Info().Str("source", s.db.Path()).Str("path", dest).Msg("Performing database backup")
	if err := s.db.Backup(ctx, dest); err != nil {
		return "", err
	}
	s.logger.Info().Str("path", dest).Msg("Backup completed successfully")
	return dest, nil
}

// CleanupOldBackups removes snapshots older than the retention window and
// returns how many were removed.
func (s *BackupService) CleanupOldBackups(now time.Time) (int, error) {
	retention := s.config.Retention()
	if retention <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(s.config.Path)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := now.Add(-retention)
	deleted := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.Path, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete backup")
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// Backup writes a consistent copy of the database to dest.
func (db *DB) Backup(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup target %s already exists", dest)
	}
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}
