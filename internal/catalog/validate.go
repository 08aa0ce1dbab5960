package catalog

import (
	"fmt"
	"sort"
)

// checkInvariants returns every violated uniqueness, ordering and reference
// rule. Violations are reported in a stable order.
func (c *Catalog) checkInvariants() []string {
	var v []string
	add := func(format string, args ...interface{}) {
		v = append(v, fmt.Sprintf(format, args...))
	}

	stages := make(map[int]bool, len(c.Stages))
	for _, s := range c.Stages {
		if stages[s.Number] {
			add("stage %d: duplicate stage number", s.Number)
		}
		stages[s.Number] = true
	}
	if c.DispatchStage != 0 && !stages[c.DispatchStage] {
		add("dispatchStage %d: unknown stage", c.DispatchStage)
	}

	boxTypes := make(map[string]bool, len(c.BoxTypes))
	for _, bt := range c.BoxTypes {
		key := normalize(bt.Name)
		if boxTypes[key] {
			add("box type %q: duplicate name", bt.Name)
		}
		boxTypes[key] = true

		subTypes := make(map[string]bool, len(bt.SubTypes))
		for _, st := range bt.SubTypes {
			sk := normalize(st.Name)
			if subTypes[sk] {
				add("box type %q: duplicate sub-type %q", bt.Name, st.Name)
			}
			subTypes[sk] = true
		}
	}

	inspections := make(map[string]bool, len(c.Inspections))
	for _, in := range c.Inspections {
		if inspections[in.Code] {
			add("inspection %s: duplicate code", in.Code)
		}
		inspections[in.Code] = true
	}

	activeChecklistByWIR := make(map[string]string)
	checklistIDs := make(map[string]bool, len(c.Checklists))
	checklistCodes := make(map[string]bool, len(c.Checklists))
	sectionIDs := make(map[string]bool)
	itemIDs := make(map[string]bool)

	for _, cl := range c.Checklists {
		if checklistIDs[cl.ID] {
			add("checklist %s: duplicate id", cl.ID)
		}
		checklistIDs[cl.ID] = true
		if checklistCodes[cl.Code] {
			add("checklist %s: duplicate code", cl.Code)
		}
		checklistCodes[cl.Code] = true

		if cl.WIRCode != "" {
			if len(c.Inspections) > 0 && !inspections[cl.WIRCode] {
				add("checklist %s: unknown wirCode %s", cl.Code, cl.WIRCode)
			}
			if cl.Active {
				if other, ok := activeChecklistByWIR[cl.WIRCode]; ok {
					add("checklist %s: %s already bound to active checklist %s", cl.Code, cl.WIRCode, other)
				} else {
					activeChecklistByWIR[cl.WIRCode] = cl.Code
				}
			}
		}

		orders := make(map[int]bool, len(cl.Sections))
		for _, s := range cl.Sections {
			if sectionIDs[s.ID] {
				add("checklist %s: duplicate section id %s", cl.Code, s.ID)
			}
			sectionIDs[s.ID] = true
			if orders[s.Order] {
				add("checklist %s: duplicate section order %d", cl.Code, s.Order)
			}
			orders[s.Order] = true

			sequences := make(map[int]bool, len(s.Items))
			for _, it := range s.Items {
				if itemIDs[it.ID] {
					add("checklist %s: duplicate item id %s", cl.Code, it.ID)
				}
				itemIDs[it.ID] = true
				if sequences[it.Sequence] {
					add("checklist %s section %s: duplicate item sequence %d", cl.Code, s.ID, it.Sequence)
				}
				sequences[it.Sequence] = true
			}
		}
	}

	codes := make(map[string]bool, len(c.Activities))
	overall := make(map[int]string, len(c.Activities))
	type stageSeq struct{ stage, seq int }
	inStage := make(map[stageSeq]string, len(c.Activities))

	for _, a := range c.Activities {
		if codes[a.Code] {
			add("activity %s: duplicate code", a.Code)
		}
		codes[a.Code] = true

		if !stages[a.StageNumber] {
			add("activity %s: unknown stage %d", a.Code, a.StageNumber)
		}
		if other, ok := overall[a.OverallSequence]; ok {
			add("activity %s: overallSequence %d already used by %s", a.Code, a.OverallSequence, other)
		} else {
			overall[a.OverallSequence] = a.Code
		}
		key := stageSeq{a.StageNumber, a.SequenceInStage}
		if other, ok := inStage[key]; ok {
			add("activity %s: sequenceInStage %d of stage %d already used by %s", a.Code, a.SequenceInStage, a.StageNumber, other)
		} else {
			inStage[key] = a.Code
		}

		for _, t := range a.ApplicableBoxTypes {
			if !boxTypes[normalize(t)] {
				add("activity %s: unknown applicable box type %q", a.Code, t)
			}
		}

		switch {
		case a.IsWIRCheckpoint && a.WIRCode == "":
			add("activity %s: checkpoint without wirCode", a.Code)
		case !a.IsWIRCheckpoint && a.WIRCode != "":
			add("activity %s: wirCode %s set on a non-checkpoint activity", a.Code, a.WIRCode)
		case a.IsWIRCheckpoint && a.Active:
			if _, ok := activeChecklistByWIR[a.WIRCode]; !ok {
				add("activity %s: no active checklist bound to %s", a.Code, a.WIRCode)
			}
		}
	}

	// OverallSequence must agree with (stage, sequenceInStage) order, which
	// also keeps every stage contiguous.
	ordered := make([]Activity, len(c.Activities))
	copy(ordered, c.Activities)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].OverallSequence < ordered[j].OverallSequence })
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if prev.OverallSequence == cur.OverallSequence {
			continue
		}
		if cur.StageNumber < prev.StageNumber ||
			(cur.StageNumber == prev.StageNumber && cur.SequenceInStage < prev.SequenceInStage) {
			add("activity %s: overallSequence %d is inconsistent with stage %d sequence %d (after %s)",
				cur.Code, cur.OverallSequence, cur.StageNumber, cur.SequenceInStage, prev.Code)
		}
	}

	return v
}
