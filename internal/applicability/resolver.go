package applicability

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dubox-platform/production-service/internal/catalog"
	"github.com/dubox-platform/production-service/internal/domain"
)

// Resolution is the resolved activity set for one box type and sub-type
type Resolution struct {
	BoxType    catalog.BoxType
	SubType    string
	Activities []catalog.Activity
}

// PositionedActivity pairs an activity with its 1-based display position
// within a resolved set. Ordering decisions always use OverallSequence.
type PositionedActivity struct {
	catalog.Activity
	Position int `json:"position"`
}

// Resolver filters the catalog to the activities a box type requires.
// Results are cached per catalog version, type and sub-type.
type Resolver struct {
	catalog *catalog.Catalog
	cache   sync.Map
}

// NewResolver creates a resolver over an immutable catalog
func NewResolver(c *catalog.Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Catalog returns the catalog the resolver reads from
func (r *Resolver) Catalog() *catalog.Catalog {
	return r.catalog
}

// ResolveActivities returns the active activities applying to boxType in
// OverallSequence order
func (r *Resolver) ResolveActivities(boxType, subType string) ([]catalog.Activity, error) {
	res, err := r.Resolve(boxType, subType)
	if err != nil {
		return nil, err
	}
	return res.Activities, nil
}

// Resolve validates the type and sub-type and returns the canonical names
// with the activity set. The returned slice is a copy and may be modified.
func (r *Resolver) Resolve(boxType, subType string) (Resolution, error) {
	key := r.catalog.Version + "|" + strings.ToLower(strings.TrimSpace(boxType)) + "|" + strings.ToLower(strings.TrimSpace(subType))
	if cached, ok := r.cache.Load(key); ok {
		return copyResolution(cached.(Resolution)), nil
	}

	bt, ok := r.catalog.BoxType(boxType)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", domain.ErrUnknownBoxType, boxType)
	}

	sub := strings.TrimSpace(subType)
	if sub != "" {
		if len(bt.SubTypes) > 0 && !bt.HasSubType(sub) {
			return Resolution{}, fmt.Errorf("%w: %q has no sub-type %q", domain.ErrUnknownBoxType, bt.Name, sub)
		}
		for _, st := range bt.SubTypes {
			if strings.EqualFold(st.Name, sub) {
				sub = st.Name
			}
		}
	}

	var activities []catalog.Activity
	for _, a := range r.catalog.ActiveActivities() {
		if a.AppliesTo(bt.Name) {
			activities = append(activities, a)
		}
	}

	res := Resolution{BoxType: bt, SubType: sub, Activities: activities}
	r.cache.Store(key, res)
	return copyResolution(res), nil
}

// Positioned numbers a resolved activity list 1..n for display
func Positioned(activities []catalog.Activity) []PositionedActivity {
	out := make([]PositionedActivity, len(activities))
	for i, a := range activities {
		out[i] = PositionedActivity{Activity: a, Position: i + 1}
	}
	return out
}

func copyResolution(res Resolution) Resolution {
	acts := make([]catalog.Activity, len(res.Activities))
	copy(acts, res.Activities)
	res.Activities = acts
	return res
}
