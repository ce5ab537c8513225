// Package reseller provides helpers for assigning panel inbounds to resellers.
package reseller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"xui_reseller_bot/internal/logging"
)

type resellerRegistry interface {
	Assign(ctx context.Context, telegramID, inboundID int64) error
	InboundsFor(ctx context.Context, telegramID int64) ([]int64, error)
	AllResellerIDs(ctx context.Context) ([]int64, error)
}

// Registrar records inbound assignments and answers which inbounds a reseller
// may report on.
type Registrar struct {
	registry resellerRegistry
	logger   *logrus.Entry
}

// NewRegistrar constructs a Registrar backed by the provided registry.
func NewRegistrar(registry resellerRegistry, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		registry: registry,
		logger:   logger,
	}
}

// Assign links the inbound to the user, promoting them to reseller if needed.
// Repeating an assignment is a no-op.
func (r *Registrar) Assign(ctx context.Context, userID, inboundID int64) error {
	if r == nil || r.registry == nil {
		return errors.New("reseller registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}
	if inboundID <= 0 {
		return errors.New("inbound id must be positive")
	}

	if err := r.registry.Assign(ctx, userID, inboundID); err != nil {
		return fmt.Errorf("assign inbound: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":      "inbound_assigned",
		"user_id":    userID,
		"inbound_id": inboundID,
	}).Info("assigned inbound to reseller")

	return nil
}

// InboundsFor returns the sorted inbound ids assigned to the user. An empty
// slice means the user has no assignments.
func (r *Registrar) InboundsFor(ctx context.Context, userID int64) ([]int64, error) {
	if r == nil || r.registry == nil {
		return nil, errors.New("reseller registrar is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	ids, err := r.registry.InboundsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list assigned inbounds: %w", err)
	}

	return ids, nil
}

// AllResellerIDs returns every user id with at least one assignment.
func (r *Registrar) AllResellerIDs(ctx context.Context) ([]int64, error) {
	if r == nil || r.registry == nil {
		return nil, errors.New("reseller registrar is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	ids, err := r.registry.AllResellerIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resellers: %w", err)
	}

	return ids, nil
}
