package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"xui_reseller_bot/internal/domain"
	"xui_reseller_bot/internal/logging"
)

// Registry persists the Telegram user roster and inbound assignments.
type Registry struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewRegistry constructs a Registry over the manager's database handle.
func NewRegistry(manager *Manager, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logging.Logger()
	}

	var db *sql.DB
	if manager != nil {
		db = manager.DB()
	}

	return &Registry{
		db:     db,
		logger: logger,
	}
}

// UpsertUser inserts the user with the given role when absent and reports
// whether a new row was created. An existing row is left untouched: the role
// recorded first wins. Promotion to reseller happens only through Assign.
func (r *Registry) UpsertUser(ctx context.Context, telegramID int64, role string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("registry is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if telegramID == 0 {
		return false, errors.New("telegram id is required")
	}
	if !domain.ValidRole(role) {
		return false, fmt.Errorf("unknown role %q", role)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+TableUsers+` (telegram_id, role, created_at) VALUES (?, ?, ?)`,
		telegramID, role, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("upsert user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert user result: %w", err)
	}

	created := affected > 0
	if created {
		r.logger.WithFields(logging.Fields{
			"event":   "user_registered",
			"user_id": telegramID,
			"role":    role,
		}).Info("registered new user")
	}

	return created, nil
}

// Assign records an inbound assignment for the user, promoting them to
// reseller. The user row is created first so an assignment can never exist
// without a user. Re-assigning the same pair is a no-op.
func (r *Registry) Assign(ctx context.Context, telegramID, inboundID int64) error {
	if r == nil || r.db == nil {
		return errors.New("registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if telegramID == 0 {
		return errors.New("telegram id is required")
	}
	if inboundID <= 0 {
		return errors.New("inbound id must be positive")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+TableUsers+` (telegram_id, role, created_at) VALUES (?, ?, ?)`,
		telegramID, domain.RoleReseller, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("assign upsert user: %w", err)
	}

	// Promotion only: with two roles this can never demote.
	if _, err := tx.ExecContext(ctx,
		`UPDATE `+TableUsers+` SET role = ? WHERE telegram_id = ? AND role <> ?`,
		domain.RoleReseller, telegramID, domain.RoleReseller,
	); err != nil {
		return fmt.Errorf("assign promote user: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO `+TableAssignments+` (telegram_id, inbound_id) VALUES (?, ?)`,
		telegramID, inboundID,
	); err != nil {
		return fmt.Errorf("assign inbound: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assign: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":      "inbound_assigned",
		"user_id":    telegramID,
		"inbound_id": inboundID,
	}).Info("assigned inbound to reseller")

	return nil
}

// InboundsFor returns the inbound ids assigned to the user, ordered by id.
func (r *Registry) InboundsFor(ctx context.Context, telegramID int64) ([]int64, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("registry is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT inbound_id FROM `+TableAssignments+` WHERE telegram_id = ? ORDER BY inbound_id`,
		telegramID,
	)
	if err != nil {
		return nil, fmt.Errorf("query inbounds: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan inbound id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbounds: %w", err)
	}

	return ids, nil
}

// AllResellerIDs returns the distinct Telegram ids present in the
// assignment table.
func (r *Registry) AllResellerIDs(ctx context.Context) ([]int64, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("registry is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT telegram_id FROM `+TableAssignments+` ORDER BY telegram_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query resellers: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reseller id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resellers: %w", err)
	}

	return ids, nil
}

// RoleOf returns the stored role for the user, or ErrNotFound.
func (r *Registry) RoleOf(ctx context.Context, telegramID int64) (string, error) {
	if r == nil || r.db == nil {
		return "", errors.New("registry is not initialized")
	}
	if ctx == nil {
		return "", errors.New("context is required")
	}

	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM `+TableUsers+` WHERE telegram_id = ?`,
		telegramID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query role: %w", err)
	}

	return role, nil
}

// Counts returns the number of registered users and distinct resellers, for
// diagnostics.
func (r *Registry) Counts(ctx context.Context) (users, resellers int64, err error) {
	if r == nil || r.db == nil {
		return 0, 0, errors.New("registry is not initialized")
	}
	if ctx == nil {
		return 0, 0, errors.New("context is required")
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+TableUsers,
	).Scan(&users); err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT telegram_id) FROM `+TableAssignments,
	).Scan(&resellers); err != nil {
		return 0, 0, fmt.Errorf("count resellers: %w", err)
	}

	return users, resellers, nil
}
