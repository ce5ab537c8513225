package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// History persists the last reported status snapshot per recipient so the
// change-detection job can notify only on newly expiring or expired clients.
type History struct {
	db *sql.DB
}

// NewHistory constructs a History over the manager's database handle.
func NewHistory(manager *Manager) *History {
	var db *sql.DB
	if manager != nil {
		db = manager.DB()
	}

	return &History{db: db}
}

// Save stores the snapshot JSON for the recipient, replacing any previous
// one.
func (h *History) Save(ctx context.Context, telegramID int64, snapshotJSON string, reportedAt time.Time) error {
	if h == nil || h.db == nil {
		return errors.New("history is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if telegramID == 0 {
		return errors.New("telegram id is required")
	}

	if _, err := h.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO `+TableLastReports+` (telegram_id, snapshot_json, reported_at) VALUES (?, ?, ?)`,
		telegramID, snapshotJSON, reportedAt.Unix(),
	); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}

// Last returns the most recent snapshot JSON for the recipient. The second
// return value is false when no snapshot has been stored yet.
func (h *History) Last(ctx context.Context, telegramID int64) (string, bool, error) {
	if h == nil || h.db == nil {
		return "", false, errors.New("history is not initialized")
	}
	if ctx == nil {
		return "", false, errors.New("context is required")
	}

	var snapshotJSON string
	err := h.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM `+TableLastReports+` WHERE telegram_id = ?`,
		telegramID,
	).Scan(&snapshotJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query snapshot: %w", err)
	}

	return snapshotJSON, true, nil
}
