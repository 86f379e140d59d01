package run

import (
	"context"
	"fmt"

	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/database/repository"
)

// resolveAssets bulk-resolves asset references into canonical file records
// in one tenant-scoped query. If any reference does not resolve, the whole
// request fails naming every missing id. The result preserves the order of
// the requested ids, which becomes the canonical per-file index ordering.
func resolveAssets(ctx context.Context, assets *repository.AssetRepository, inputName string, ids []string, tenantID string) ([]*models.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	resolved, err := assets.BulkGet(ctx, ids, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolving assets for input %q: %w", inputName, err)
	}

	if len(resolved) < len(ids) {
		found := make(map[string]bool, len(resolved))
		for _, a := range resolved {
			found[a.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, &UnresolvedAssetsError{InputName: inputName, AssetIDs: missing}
	}

	return resolved, nil
}

// resolveAllInputs verifies that every supplied asset reference resolves,
// and returns the subject files (if a subject input exists) in request
// order. Context asset inputs are verified but not returned.
func resolveAllInputs(ctx context.Context, assets *repository.AssetRepository, def *Definition, inputs map[string]InputValue, tenantID string) ([]*models.Asset, error) {
	var subjectFiles []*models.Asset

	for _, declared := range def.Inputs {
		value, ok := inputs[declared.Name]
		if !ok || value.Type != InputValueAsset {
			continue
		}

		resolved, err := resolveAssets(ctx, assets, declared.Name, value.AssetIDs, tenantID)
		if err != nil {
			return nil, err
		}
		if declared.Role == RoleSubject {
			subjectFiles = resolved
		}
	}

	return subjectFiles, nil
}
