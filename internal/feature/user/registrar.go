// Package user provides helpers for user registration.
package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"xui_reseller_bot/internal/domain"
	"xui_reseller_bot/internal/logging"
	"xui_reseller_bot/internal/store"
)

type userRegistry interface {
	UpsertUser(ctx context.Context, telegramID int64, role string) (bool, error)
	RoleOf(ctx context.Context, telegramID int64) (string, error)
}

// Registrar ensures users are present in the database the first time they
// interact with the bot.
type Registrar struct {
	registry userRegistry
	logger   *logrus.Entry
}

// NewRegistrar constructs a Registrar backed by the provided registry.
func NewRegistrar(registry userRegistry, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		registry: registry,
		logger:   logger,
	}
}

// EnsureUser inserts the user with the default role if missing. An existing
// record is left untouched, whatever its role.
func (r *Registrar) EnsureUser(ctx context.Context, userID int64) (bool, error) {
	if r == nil || r.registry == nil {
		return false, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if userID == 0 {
		return false, errors.New("user id is required")
	}

	created, err := r.registry.UpsertUser(ctx, userID, domain.RoleUser)
	if err != nil {
		return false, fmt.Errorf("ensure user: %w", err)
	}

	if created {
		r.logger.WithFields(logging.Fields{
			"event":   "user_registered",
			"user_id": userID,
		}).Info("registered new user")
		return true, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "user_seen",
		"user_id": userID,
	}).Debug("user already registered")

	return false, nil
}

// RoleOf reports the stored role for the user, or the default role when the
// user has no record yet.
func (r *Registrar) RoleOf(ctx context.Context, userID int64) (string, error) {
	if r == nil || r.registry == nil {
		return "", errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return "", errors.New("context is required")
	}

	role, err := r.registry.RoleOf(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.RoleUser, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}

	return role, nil
}
