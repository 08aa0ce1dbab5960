package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalCatalog = `
version: "test-1"
stages:
  - number: 1
    name: "One"
  - number: 2
    name: "Two"
boxTypes:
  - name: "Kitchen"
  - name: "Bedrooms"
    subTypes:
      - name: "Master"
inspections:
  - code: WIR-1
    name: "Check"
activities:
  - code: STAGE1-A
    name: "A"
    stage: 1
    sequenceInStage: 1
    overallSequence: 1
    active: true
  - code: STAGE1-WIR1
    name: "WIR-1"
    stage: 1
    sequenceInStage: 2
    overallSequence: 2
    wirCheckpoint: true
    wirCode: WIR-1
    active: true
  - code: STAGE2-B
    name: "B"
    stage: 2
    sequenceInStage: 1
    overallSequence: 3
    applicableBoxTypes: ["Kitchen"]
    active: true
checklists:
  - id: CL-1
    code: "Check-List"
    name: "Check list"
    wirCode: WIR-1
    active: true
    sections:
      - id: CL-1-S1
        title: "Section"
        order: 1
        active: true
        items:
          - id: I-01
            sequence: 1
            description: "first"
            reference: "General"
            active: true
`

func TestLoadDefault(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	assert.NotEmpty(t, c.Version)
	assert.Len(t, c.Stages, 8)
	assert.Equal(t, 7, c.DispatchStage)
	assert.Len(t, c.Activities, 43)

	cl, ok := c.ChecklistForWIR("WIR-1")
	require.True(t, ok)
	assert.Equal(t, "Material Verification Inspection Checklist", cl.Name)
	assert.Equal(t, 14, cl.ActiveItemCount())

	for _, a := range c.Activities {
		if a.IsWIRCheckpoint {
			_, ok := c.ChecklistForWIR(a.WIRCode)
			assert.True(t, ok, "checkpoint %s has no checklist", a.Code)
		}
	}
}

func TestLoadDefault_Ordering(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	activities := c.ActiveActivities()
	for i := 1; i < len(activities); i++ {
		assert.Less(t, activities[i-1].OverallSequence, activities[i].OverallSequence)
	}

	wir1, ok := c.Activity("STAGE2-WIR1")
	require.True(t, ok)
	assert.Equal(t, 9, wir1.OverallSequence)
	assert.True(t, wir1.IsWIRCheckpoint)

	fcu, ok := c.Activity("STAGE3-FCU")
	require.True(t, ok)
	assert.Equal(t, 10, fcu.OverallSequence)
}

func TestCatalog_Lookups(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	bt, ok := c.BoxType("  kitchen ")
	require.True(t, ok)
	assert.Equal(t, "Kitchen", bt.Name)

	bed, ok := c.BoxType("Bedrooms")
	require.True(t, ok)
	assert.True(t, bed.HasSubType("master"))
	assert.False(t, bed.HasSubType("Powder Room"))

	_, ok = c.BoxType("Spaceship")
	assert.False(t, ok)

	assert.True(t, c.NAPermitted("General"))
	assert.False(t, c.NAPermitted("MSDS"))

	stage, ok := c.Stage(1)
	require.True(t, ok)
	assert.Equal(t, "Precast Production", stage.Name)

	_, ok = c.Checklist("Material-Verification")
	assert.True(t, ok)
	_, ok = c.Activity("STAGE9-NOPE")
	assert.False(t, ok)
}

func TestActivity_AppliesTo(t *testing.T) {
	a := Activity{Code: "STAGE5-KITCHEN", ApplicableBoxTypes: []string{"Kitchen", "Living Room"}}
	assert.True(t, a.AppliesTo("kitchen"))
	assert.True(t, a.AppliesTo("Living Room"))
	assert.False(t, a.AppliesTo("Bedrooms"))

	all := Activity{Code: "STAGE1-FAB"}
	assert.True(t, all.AppliesTo("anything"))
}

func TestChecklist_OrderedSections(t *testing.T) {
	cl := &Checklist{
		Sections: []Section{
			{ID: "S2", Order: 2, Items: []Item{{ID: "b2", Sequence: 2}, {ID: "b1", Sequence: 1}}},
			{ID: "S1", Order: 1, Items: []Item{{ID: "a1", Sequence: 1}}},
		},
	}

	ordered := cl.OrderedSections()
	require.Len(t, ordered, 2)
	assert.Equal(t, "S1", ordered[0].ID)
	assert.Equal(t, "b1", ordered[1].Items[0].ID)

	// Source is left untouched
	assert.Equal(t, "S2", cl.Sections[0].ID)
	assert.Equal(t, "b2", cl.Sections[0].Items[0].ID)
}

func TestLoad_Minimal(t *testing.T) {
	c, err := Load([]byte(minimalCatalog))
	require.NoError(t, err)

	assert.Equal(t, "test-1", c.Version)
	assert.Equal(t, 2, c.DispatchStage, "defaults to the last stage")
	assert.Equal(t, []string{DefaultNAReference}, c.NAReferences)
}

func TestLoad_ReportsEveryViolation(t *testing.T) {
	broken := strings.NewReplacer(
		// duplicate overall sequence and in-stage sequence
		"sequenceInStage: 2\n    overallSequence: 2", "sequenceInStage: 1\n    overallSequence: 1",
		// unknown applicable type
		`applicableBoxTypes: ["Kitchen"]`, `applicableBoxTypes: ["Garage"]`,
	).Replace(minimalCatalog)
	broken += `
  - id: CL-2
    code: "Check-List"
    name: "Second"
    wirCode: WIR-1
    active: true
    sections:
      - id: CL-2-S1
        title: "A"
        order: 1
        active: true
        items:
          - id: I-01
            sequence: 1
            description: "dup id"
            active: true
          - id: I-02
            sequence: 1
            description: "dup sequence"
            active: true
      - id: CL-2-S2
        title: "B"
        order: 1
        active: true
        items: []
`

	_, err := Load([]byte(broken))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCatalog))

	var invalid *InvalidCatalogError
	require.True(t, errors.As(err, &invalid))

	joined := strings.Join(invalid.Violations, "\n")
	for _, want := range []string{
		"overallSequence 1 already used",
		"sequenceInStage 1 of stage 1 already used",
		`unknown applicable box type "Garage"`,
		"checklist Check-List: duplicate code",
		"already bound to active checklist",
		"duplicate item id I-01",
		"duplicate item sequence 1",
		"duplicate section order 1",
	} {
		assert.Contains(t, joined, want)
	}
}

func TestLoad_InconsistentOverallSequence(t *testing.T) {
	// Stage 1 activity ordered after the first stage 2 activity
	broken := strings.Replace(minimalCatalog,
		"stage: 1\n    sequenceInStage: 2\n    overallSequence: 2",
		"stage: 1\n    sequenceInStage: 2\n    overallSequence: 4", 1)

	_, err := Load([]byte(broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STAGE1-WIR1: overallSequence 4 is inconsistent with stage 1 sequence 2 (after STAGE2-B)")
}

func TestLoad_CheckpointWithoutChecklist(t *testing.T) {
	broken := strings.Replace(minimalCatalog, "    wirCode: WIR-1\n    active: true\n    sections:", "    active: false\n    sections:", 1)

	_, err := Load([]byte(broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active checklist bound to WIR-1")
}

func TestLoad_SchemaViolations(t *testing.T) {
	broken := strings.Replace(minimalCatalog, "code: STAGE1-A", "code: bad-code", 1)
	broken = strings.Replace(broken, `version: "test-1"`, "", 1)

	_, err := Load([]byte(broken))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCatalog))

	var invalid *InvalidCatalogError
	require.True(t, errors.As(err, &invalid))
	assert.GreaterOrEqual(t, len(invalid.Violations), 1)
	for _, v := range invalid.Violations {
		assert.True(t, strings.HasPrefix(v, "schema"), v)
	}
}

func TestLoad_Garbage(t *testing.T) {
	_, err := Load([]byte("version: [unterminated"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCatalog))
}
