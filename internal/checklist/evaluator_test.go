package checklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubox-platform/production-service/internal/catalog"
)

func loadMaterialVerification(t *testing.T) (*catalog.Catalog, *catalog.Checklist) {
	t.Helper()
	c, err := catalog.LoadDefault()
	require.NoError(t, err)
	cl, ok := c.ChecklistForWIR("WIR-1")
	require.True(t, ok)
	return c, cl
}

func passAll(cl *catalog.Checklist) []Response {
	var out []Response
	for _, s := range cl.OrderedSections() {
		if !s.Active {
			continue
		}
		for _, it := range s.Items {
			if it.Active {
				out = append(out, Response{ItemID: it.ID, Result: ResultPass})
			}
		}
	}
	return out
}

func TestEvaluate_MaterialVerificationMissingOneItem(t *testing.T) {
	c, cl := loadMaterialVerification(t)
	responses := passAll(cl)
	require.Len(t, responses, 14)

	// drop MV-07
	partial := append([]Response{}, responses[:6]...)
	partial = append(partial, responses[7:]...)

	verdict := Evaluate(cl, partial, c)
	assert.False(t, verdict.OK)
	assert.Equal(t, []string{"MV-07"}, verdict.Missing)
	assert.Empty(t, verdict.Invalid)

	verdict = Evaluate(cl, responses, c)
	assert.True(t, verdict.OK)
	assert.Empty(t, verdict.Missing)
}

func TestEvaluate_IsPure(t *testing.T) {
	c, cl := loadMaterialVerification(t)
	responses := passAll(cl)[:10]
	responses = append(responses, Response{ItemID: "MV-01", Result: ResultFail})

	first := Evaluate(cl, responses, c)
	second := Evaluate(cl, responses, c)
	assert.Equal(t, first, second)
	assert.Equal(t, "MV-01", responses[10].ItemID, "responses are not modified")
}

func TestEvaluate_InvalidResponses(t *testing.T) {
	c, cl := loadMaterialVerification(t)

	tests := []struct {
		name    string
		mutate  func([]Response) []Response
		invalid []string
		missing []string
	}{
		{
			name: "Duplicate response",
			mutate: func(r []Response) []Response {
				return append(r, Response{ItemID: "MV-02", Result: ResultPass})
			},
			invalid: []string{"MV-02"},
		},
		{
			name: "Unknown item",
			mutate: func(r []Response) []Response {
				return append(r, Response{ItemID: "XX-99", Result: ResultPass})
			},
			invalid: []string{"XX-99"},
		},
		{
			name: "Unrecognised result",
			mutate: func(r []Response) []Response {
				r[2].Result = "maybe"
				return r
			},
			invalid: []string{"MV-03"},
		},
		{
			name: "n/a on an item citing a controlled document",
			mutate: func(r []Response) []Response {
				r[0].Result = ResultNA // reference MA
				return r
			},
			invalid: []string{"MV-01"},
		},
		{
			name: "n/a on a general item is accepted",
			mutate: func(r []Response) []Response {
				r[5].Result = ResultNA // reference General
				return r
			},
		},
		{
			name: "Failed items still count as covered",
			mutate: func(r []Response) []Response {
				r[3].Result = ResultFail
				return r
			},
		},
		{
			name: "Missing items are listed in checklist order",
			mutate: func(r []Response) []Response {
				return r[2:12]
			},
			missing: []string{"MV-01", "MV-02", "MV-13", "MV-14"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Evaluate(cl, tt.mutate(passAll(cl)), c)

			if tt.invalid == nil {
				tt.invalid = []string{}
			}
			if tt.missing == nil {
				tt.missing = []string{}
			}
			assert.Equal(t, tt.invalid, verdict.Invalid)
			assert.Equal(t, tt.missing, verdict.Missing)
			assert.Equal(t, len(tt.invalid) == 0 && len(tt.missing) == 0, verdict.OK)
		})
	}
}

func TestEvaluate_InactiveSectionsAndItems(t *testing.T) {
	cl := &catalog.Checklist{
		Code:   "T",
		Active: true,
		Sections: []catalog.Section{
			{ID: "S2", Order: 2, Active: false, Items: []catalog.Item{{ID: "B1", Sequence: 1, Active: true}}},
			{ID: "S1", Order: 1, Active: true, Items: []catalog.Item{
				{ID: "A2", Sequence: 2, Active: false},
				{ID: "A1", Sequence: 1, Active: true, Reference: "General"},
			}},
		},
	}

	verdict := Evaluate(cl, []Response{{ItemID: "A1", Result: ResultNA}}, nil)
	assert.True(t, verdict.OK)

	verdict = Evaluate(cl, []Response{
		{ItemID: "A1", Result: ResultPass},
		{ItemID: "A2", Result: ResultPass},
		{ItemID: "B1", Result: ResultPass},
	}, nil)
	assert.False(t, verdict.OK)
	assert.Equal(t, []string{"A2", "B1"}, verdict.Invalid)
	assert.Empty(t, verdict.Missing)
}

func TestEvaluate_MultiSectionOrdering(t *testing.T) {
	c, err := catalog.LoadDefault()
	require.NoError(t, err)
	cl, ok := c.ChecklistForWIR("WIR-4")
	require.True(t, ok)

	verdict := Evaluate(cl, nil, c)
	assert.False(t, verdict.OK)
	assert.Len(t, verdict.Missing, cl.ActiveItemCount())
	assert.Equal(t, cl.OrderedSections()[0].Items[0].ID, verdict.Missing[0])
}
