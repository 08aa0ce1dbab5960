package applicability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubox-platform/production-service/internal/catalog"
	"github.com/dubox-platform/production-service/internal/domain"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	c, err := catalog.LoadDefault()
	require.NoError(t, err)
	return NewResolver(c)
}

func codes(acts []catalog.Activity) []string {
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.Code
	}
	return out
}

func TestResolveActivities_KitchenVersusBedrooms(t *testing.T) {
	r := newResolver(t)

	kitchen, err := r.ResolveActivities("Kitchen", "")
	require.NoError(t, err)
	assert.Contains(t, codes(kitchen), "STAGE5-KITCHEN")

	bedrooms, err := r.ResolveActivities("Bedrooms", "Master")
	require.NoError(t, err)
	assert.NotContains(t, codes(bedrooms), "STAGE5-KITCHEN")

	assert.Equal(t, len(kitchen)-1, len(bedrooms))
}

func TestResolveActivities_Ordering(t *testing.T) {
	r := newResolver(t)

	acts, err := r.ResolveActivities("Bedrooms", "")
	require.NoError(t, err)
	require.NotEmpty(t, acts)

	for i := 1; i < len(acts); i++ {
		assert.Less(t, acts[i-1].OverallSequence, acts[i].OverallSequence)
	}

	// Display positions are gapless while OverallSequence keeps its gap
	positioned := Positioned(acts)
	for i, p := range positioned {
		assert.Equal(t, i+1, p.Position)
	}
	var doors PositionedActivity
	for _, p := range positioned {
		if p.Code == "STAGE5-DOORS" {
			doors = p
		}
	}
	assert.Equal(t, 25, doors.OverallSequence)
	assert.Equal(t, 24, doors.Position)
}

func TestResolveActivities_CaseInsensitive(t *testing.T) {
	r := newResolver(t)

	res, err := r.Resolve("  living room ", "")
	require.NoError(t, err)
	assert.Equal(t, "Living Room", res.BoxType.Name)
	assert.Contains(t, codes(res.Activities), "STAGE5-KITCHEN")

	res, err = r.Resolve("bathrooms", "powder room")
	require.NoError(t, err)
	assert.Equal(t, "Powder Room", res.SubType)
}

func TestResolveActivities_UnknownBoxType(t *testing.T) {
	r := newResolver(t)

	tests := []struct {
		name    string
		boxType string
		subType string
	}{
		{"Unknown type", "Spaceship", ""},
		{"Empty type", "", ""},
		{"Sub-type not declared", "Bedrooms", "Powder Room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ResolveActivities(tt.boxType, tt.subType)
			assert.True(t, errors.Is(err, domain.ErrUnknownBoxType))
		})
	}

	// Types without declared sub-types accept any sub-type label
	_, err := r.ResolveActivities("Kitchen", "Galley")
	assert.NoError(t, err)
}

func TestResolveActivities_CachedResultIsNotShared(t *testing.T) {
	r := newResolver(t)

	first, err := r.ResolveActivities("Kitchen", "")
	require.NoError(t, err)
	first[0].Code = "MUTATED"

	second, err := r.ResolveActivities("Kitchen", "")
	require.NoError(t, err)
	assert.Equal(t, "STAGE1-FAB", second[0].Code)
}
