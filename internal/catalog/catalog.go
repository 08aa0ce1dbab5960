package catalog

import (
	"sort"
	"strings"
)

// DefaultNAReference is the reference tag that permits an n/a response when
// the catalog does not list any.
const DefaultNAReference = "General"

// Catalog is an immutable, versioned snapshot of the production configuration.
// It is built by Load and must not be modified afterwards.
type Catalog struct {
	Version       string       `yaml:"version" json:"version"`
	DispatchStage int          `yaml:"dispatchStage" json:"dispatchStage"`
	NAReferences  []string     `yaml:"naReferences" json:"naReferences"`
	Stages        []Stage      `yaml:"stages" json:"stages"`
	BoxTypes      []BoxType    `yaml:"boxTypes" json:"boxTypes"`
	Inspections   []Inspection `yaml:"inspections" json:"inspections"`
	Activities    []Activity   `yaml:"activities" json:"activities"`
	Checklists    []Checklist  `yaml:"checklists" json:"checklists"`

	activityIdx   map[string]int
	checklistIdx  map[string]int
	wirIdx        map[string]int
	boxTypeIdx    map[string]int
	stageIdx      map[int]int
	inspectionIdx map[string]int
	naRefs        map[string]struct{}
}

// Stage is a top-level production phase
type Stage struct {
	Number int    `yaml:"number" json:"number"`
	Name   string `yaml:"name" json:"name"`
}

// BoxType is a catalog box (room) type
type BoxType struct {
	Name         string    `yaml:"name" json:"name"`
	Abbreviation string    `yaml:"abbreviation" json:"abbreviation,omitempty"`
	Category     string    `yaml:"category" json:"category,omitempty"`
	SubTypes     []SubType `yaml:"subTypes" json:"subTypes,omitempty"`
}

// SubType is a variant of a box type, e.g. a master bedroom
type SubType struct {
	Name         string `yaml:"name" json:"name"`
	Abbreviation string `yaml:"abbreviation" json:"abbreviation,omitempty"`
}

// HasSubType reports whether name is one of the declared sub-types
func (b BoxType) HasSubType(name string) bool {
	key := normalize(name)
	for _, st := range b.SubTypes {
		if normalize(st.Name) == key {
			return true
		}
	}
	return false
}

// Inspection describes a WIR checkpoint kind
type Inspection struct {
	Code        string `yaml:"code" json:"code"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Discipline  string `yaml:"discipline" json:"discipline,omitempty"`
	Phase       string `yaml:"phase" json:"phase,omitempty"`
}

// Activity is a unit of work within a stage
type Activity struct {
	Code                  string   `yaml:"code" json:"code"`
	Name                  string   `yaml:"name" json:"name"`
	Description           string   `yaml:"description" json:"description,omitempty"`
	StageNumber           int      `yaml:"stage" json:"stageNumber"`
	SequenceInStage       int      `yaml:"sequenceInStage" json:"sequenceInStage"`
	OverallSequence       int      `yaml:"overallSequence" json:"overallSequence"`
	EstimatedDurationDays int      `yaml:"estimatedDurationDays" json:"estimatedDurationDays"`
	IsWIRCheckpoint       bool     `yaml:"wirCheckpoint" json:"isWirCheckpoint"`
	WIRCode               string   `yaml:"wirCode" json:"wirCode,omitempty"`
	ApplicableBoxTypes    []string `yaml:"applicableBoxTypes" json:"applicableBoxTypes,omitempty"`
	Active                bool     `yaml:"active" json:"active"`
}

// AppliesTo reports whether the activity is required for the given box type.
// An empty ApplicableBoxTypes list applies to every type.
func (a Activity) AppliesTo(boxType string) bool {
	if len(a.ApplicableBoxTypes) == 0 {
		return true
	}
	key := normalize(boxType)
	for _, t := range a.ApplicableBoxTypes {
		if normalize(t) == key {
			return true
		}
	}
	return false
}

// Checklist is an inspection template bound to at most one WIR code
type Checklist struct {
	ID                 string    `yaml:"id" json:"id"`
	Code               string    `yaml:"code" json:"code"`
	Name               string    `yaml:"name" json:"name"`
	Discipline         string    `yaml:"discipline" json:"discipline,omitempty"`
	SubDiscipline      string    `yaml:"subDiscipline" json:"subDiscipline,omitempty"`
	WIRCode            string    `yaml:"wirCode" json:"wirCode,omitempty"`
	PageNumber         int       `yaml:"pageNumber" json:"pageNumber,omitempty"`
	ReferenceDocuments []string  `yaml:"referenceDocuments" json:"referenceDocuments,omitempty"`
	SignatureRoles     []string  `yaml:"signatureRoles" json:"signatureRoles,omitempty"`
	Active             bool      `yaml:"active" json:"active"`
	Sections           []Section `yaml:"sections" json:"sections"`
}

// Section is an ordered grouping of checklist items
type Section struct {
	ID     string `yaml:"id" json:"id"`
	Title  string `yaml:"title" json:"title"`
	Order  int    `yaml:"order" json:"order"`
	Active bool   `yaml:"active" json:"active"`
	Items  []Item `yaml:"items" json:"items"`
}

// Item is a single checklist question
type Item struct {
	ID          string `yaml:"id" json:"id"`
	Sequence    int    `yaml:"sequence" json:"sequence"`
	Description string `yaml:"description" json:"description"`
	Reference   string `yaml:"reference" json:"reference,omitempty"`
	Active      bool   `yaml:"active" json:"active"`
}

// OrderedSections returns the sections sorted by Order, each with its items
// sorted by Sequence. The checklist itself is not modified.
func (c *Checklist) OrderedSections() []Section {
	sections := make([]Section, len(c.Sections))
	for i, s := range c.Sections {
		items := make([]Item, len(s.Items))
		copy(items, s.Items)
		sort.SliceStable(items, func(a, b int) bool { return items[a].Sequence < items[b].Sequence })
		s.Items = items
		sections[i] = s
	}
	sort.SliceStable(sections, func(a, b int) bool { return sections[a].Order < sections[b].Order })
	return sections
}

// ActiveItemCount counts active items in active sections
func (c *Checklist) ActiveItemCount() int {
	n := 0
	for _, s := range c.Sections {
		if !s.Active {
			continue
		}
		for _, it := range s.Items {
			if it.Active {
				n++
			}
		}
	}
	return n
}

// Activity looks up an activity by code
func (c *Catalog) Activity(code string) (Activity, bool) {
	i, ok := c.activityIdx[code]
	if !ok {
		return Activity{}, false
	}
	return c.Activities[i], true
}

// ActiveActivities returns every active activity ordered by OverallSequence
func (c *Catalog) ActiveActivities() []Activity {
	out := make([]Activity, 0, len(c.Activities))
	for _, a := range c.Activities {
		if a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OverallSequence < out[j].OverallSequence })
	return out
}

// Checklist looks up a checklist by code
func (c *Catalog) Checklist(code string) (*Checklist, bool) {
	i, ok := c.checklistIdx[code]
	if !ok {
		return nil, false
	}
	return &c.Checklists[i], true
}

// ChecklistForWIR returns the active checklist bound to a WIR code
func (c *Catalog) ChecklistForWIR(wirCode string) (*Checklist, bool) {
	i, ok := c.wirIdx[wirCode]
	if !ok {
		return nil, false
	}
	return &c.Checklists[i], true
}

// BoxType looks up a box type by name, ignoring case and surrounding space
func (c *Catalog) BoxType(name string) (BoxType, bool) {
	i, ok := c.boxTypeIdx[normalize(name)]
	if !ok {
		return BoxType{}, false
	}
	return c.BoxTypes[i], true
}

// Stage looks up a stage by number
func (c *Catalog) Stage(number int) (Stage, bool) {
	i, ok := c.stageIdx[number]
	if !ok {
		return Stage{}, false
	}
	return c.Stages[i], true
}

// Inspection looks up a WIR kind by code
func (c *Catalog) Inspection(code string) (Inspection, bool) {
	i, ok := c.inspectionIdx[code]
	if !ok {
		return Inspection{}, false
	}
	return c.Inspections[i], true
}

// NAPermitted reports whether an item with the given reference tag accepts n/a
func (c *Catalog) NAPermitted(reference string) bool {
	_, ok := c.naRefs[normalize(reference)]
	return ok
}

func (c *Catalog) buildIndexes() {
	c.activityIdx = make(map[string]int, len(c.Activities))
	for i, a := range c.Activities {
		c.activityIdx[a.Code] = i
	}

	c.checklistIdx = make(map[string]int, len(c.Checklists))
	c.wirIdx = make(map[string]int)
	for i, cl := range c.Checklists {
		c.checklistIdx[cl.Code] = i
		if cl.Active && cl.WIRCode != "" {
			c.wirIdx[cl.WIRCode] = i
		}
	}

	c.boxTypeIdx = make(map[string]int, len(c.BoxTypes))
	for i, bt := range c.BoxTypes {
		c.boxTypeIdx[normalize(bt.Name)] = i
	}

	c.stageIdx = make(map[int]int, len(c.Stages))
	for i, s := range c.Stages {
		c.stageIdx[s.Number] = i
	}

	c.inspectionIdx = make(map[string]int, len(c.Inspections))
	for i, in := range c.Inspections {
		c.inspectionIdx[in.Code] = i
	}

	if len(c.NAReferences) == 0 {
		c.NAReferences = []string{DefaultNAReference}
	}
	c.naRefs = make(map[string]struct{}, len(c.NAReferences))
	for _, r := range c.NAReferences {
		c.naRefs[normalize(r)] = struct{}{}
	}

	if c.DispatchStage == 0 && len(c.Stages) > 0 {
		c.DispatchStage = c.Stages[len(c.Stages)-1].Number
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
