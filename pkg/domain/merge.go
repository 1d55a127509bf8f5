package domain

import (
	"fmt"
	"slices"
	"strings"
)

// mergeSeparator joins free text folded in from duplicates.
const mergeSeparator = "\n---\n"

// MergePlan is the asset state after folding duplicates into a primary.
type MergePlan struct {
	Primary Asset
	// Duplicates are disposed and point at the primary, in request order.
	Duplicates []Asset
}

// PlanMerge folds duplicates into primary. Labels are unioned, descriptions
// and notes concatenated, quantities summed, and category or location filled
// in when the primary lacks them. Each duplicate is disposed through the
// lifecycle table. A duplicate equal to the primary or listed twice is
// ignored. Checked out assets and assets already disposed cannot take part.
func PlanMerge(primary Asset, duplicates []Asset, actorID string) (MergePlan, error) {
	if strings.TrimSpace(actorID) == "" {
		return MergePlan{}, InputError{Field: "actor", Reason: "required"}
	}
	if err := mergeable(primary); err != nil {
		return MergePlan{}, err
	}
	seen := map[string]struct{}{primary.ID: {}}
	var dups []Asset
	for _, d := range duplicates {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		if err := mergeable(d); err != nil {
			return MergePlan{}, err
		}
		dups = append(dups, d)
	}
	if len(dups) == 0 {
		return MergePlan{}, InputError{Field: "duplicate_ids", Reason: "at least one asset other than the primary required"}
	}

	next := primary.Clone()
	plan := MergePlan{Duplicates: make([]Asset, 0, len(dups))}
	for _, d := range dups {
		for _, tag := range d.Tags {
			if !slices.Contains(next.Tags, tag) {
				next.Tags = append(next.Tags, tag)
			}
		}
		next.Description = appendText(next.Description, d.Description)
		next.Notes = appendText(next.Notes, d.Notes)
		if next.Category == "" {
			next.Category = d.Category
		}
		if next.LocationID == nil && d.LocationID != nil {
			next.LocationID = cloneStringPtr(d.LocationID)
		}
		if d.Quantity > 0 {
			next.Quantity = max(next.Quantity, 1) + d.Quantity
		}

		disposed, err := PlanTransition(d, AssetDisposed)
		if err != nil {
			return MergePlan{}, err
		}
		disposed.MergedInto = StringPtr(primary.ID)
		disposed.Notes = appendText(disposed.Notes, fmt.Sprintf("Merged into %s by %s", primary.Code, actorID))
		plan.Duplicates = append(plan.Duplicates, disposed)
	}
	plan.Primary = next
	return plan, nil
}

func mergeable(a Asset) error {
	switch {
	case a.CheckedOut():
		return IneligibleError{AssetID: a.ID, Reason: ReasonCheckedOut}
	case a.Status == AssetDisposed:
		return IneligibleError{AssetID: a.ID, Reason: ReasonDisposed}
	}
	return nil
}

func appendText(base, extra string) string {
	switch {
	case extra == "":
		return base
	case base == "":
		return extra
	}
	return base + mergeSeparator + extra
}
