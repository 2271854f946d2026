package service

import (
	"context"
	"fmt"
	"sort"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// RecipientSelector turns a TargetSpec into an ordered, deduplicated
// recipient list.
type RecipientSelector struct {
	Directory repository.CompanyDirectory
}

func NewRecipientSelector(directory repository.CompanyDirectory) *RecipientSelector {
	return &RecipientSelector{Directory: directory}
}

// ValidateSpec rejects specs that are empty, mix both modes or carry
// non-positive ids.
func ValidateSpec(spec model.TargetSpec) error {
	switch {
	case spec.IsExplicit() && spec.HasFilter():
		return appErrors.NewValidation("target", "company ids and filter are mutually exclusive")
	case !spec.IsExplicit() && !spec.HasFilter():
		return appErrors.NewValidation("target", "either company ids or a filter is required")
	}
	for _, id := range spec.CompanyIDs {
		if id <= 0 {
			return appErrors.NewValidation("target", "invalid company id %d", id)
		}
	}
	return nil
}

// Resolve returns the companies selected by spec in ascending id order.
// The directory result is filtered again here so that every backend applies
// the same matching rules.
func (s *RecipientSelector) Resolve(ctx context.Context, spec model.TargetSpec) ([]model.Company, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	found, err := s.Directory.Lookup(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("lookup recipients: %w", err)
	}

	wanted := map[int64]struct{}{}
	for _, id := range spec.CompanyIDs {
		wanted[id] = struct{}{}
	}
	seen := make(map[int64]struct{}, len(found))
	out := make([]model.Company, 0, len(found))
	for _, c := range found {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		if spec.IsExplicit() {
			if _, ok := wanted[c.ID]; !ok {
				continue
			}
		} else if !repository.MatchesFilter(c, spec) {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ByIDs loads the frozen recipient set of a campaign, keyed by id.
func (s *RecipientSelector) ByIDs(ctx context.Context, ids []int64) (map[int64]model.Company, error) {
	out := make(map[int64]model.Company, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	found, err := s.Directory.Lookup(ctx, model.TargetSpec{CompanyIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("lookup recipients: %w", err)
	}
	for _, c := range found {
		out[c.ID] = c
	}
	return out, nil
}
