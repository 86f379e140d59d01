package run

import (
	"context"
	"fmt"
)

// ModelChecker is the capability pre-check consulted once per run before
// any credit is touched.
type ModelChecker interface {
	ValidateModelAvailability(ctx context.Context, modelID string) error
}

// StaticModelChecker validates against a fixed allow-list. An empty list
// allows every model.
type StaticModelChecker struct {
	allowed map[string]bool
}

// NewStaticModelChecker creates a checker for the given model ids.
func NewStaticModelChecker(modelIDs []string) *StaticModelChecker {
	allowed := make(map[string]bool, len(modelIDs))
	for _, id := range modelIDs {
		allowed[id] = true
	}
	return &StaticModelChecker{allowed: allowed}
}

// ValidateModelAvailability implements ModelChecker.
func (c *StaticModelChecker) ValidateModelAvailability(ctx context.Context, modelID string) error {
	if modelID == "" {
		return fmt.Errorf("definition declares no model")
	}
	if len(c.allowed) == 0 || c.allowed[modelID] {
		return nil
	}
	return fmt.Errorf("model %s is not available", modelID)
}
