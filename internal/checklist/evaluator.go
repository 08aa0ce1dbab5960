// Package checklist checks inspection responses for completeness against a
// checklist definition. It judges coverage only; whether a failed item is
// acceptable is the inspector's decision.
package checklist

import (
	"fmt"
	"strings"

	"github.com/dubox-platform/production-service/internal/catalog"
)

// Result is the answer recorded for a single checklist item
type Result string

const (
	ResultPass Result = "pass"
	ResultFail Result = "fail"
	ResultNA   Result = "n/a"
)

// IsValid checks if the result is one of the recognised values
func (r Result) IsValid() bool {
	switch r {
	case ResultPass, ResultFail, ResultNA:
		return true
	default:
		return false
	}
}

// Response is an inspector's answer to one item
type Response struct {
	ItemID string `bson:"itemId" json:"itemId"`
	Result Result `bson:"result" json:"result"`
	Note   string `bson:"note,omitempty" json:"note,omitempty"`
}

// Verdict is the outcome of Evaluate. Missing is in checklist order; Invalid
// follows the order of the submitted responses.
type Verdict struct {
	OK      bool     `json:"ok"`
	Missing []string `json:"missing"`
	Invalid []string `json:"invalid"`
}

// NAPolicy reports whether an item's reference tag allows an n/a answer
type NAPolicy interface {
	NAPermitted(reference string) bool
}

// Evaluate checks that every active item of every active section has exactly
// one acceptable response. It has no side effects.
func Evaluate(cl *catalog.Checklist, responses []Response, policy NAPolicy) Verdict {
	type itemState struct {
		item   catalog.Item
		active bool
	}

	items := make(map[string]itemState)
	var required []string
	for _, s := range cl.OrderedSections() {
		for _, it := range s.Items {
			active := s.Active && it.Active
			items[it.ID] = itemState{item: it, active: active}
			if active {
				required = append(required, it.ID)
			}
		}
	}

	verdict := Verdict{Missing: []string{}, Invalid: []string{}}
	seen := make(map[string]bool, len(responses))
	invalid := make(map[string]bool)
	markInvalid := func(id string) {
		if !invalid[id] {
			invalid[id] = true
			verdict.Invalid = append(verdict.Invalid, id)
		}
	}

	for _, r := range responses {
		id := strings.TrimSpace(r.ItemID)
		st, known := items[id]
		switch {
		case !known || !st.active:
			markInvalid(id)
		case seen[id]:
			markInvalid(id)
		case !r.Result.IsValid():
			markInvalid(id)
		case r.Result == ResultNA && !naPermitted(policy, st.item.Reference):
			markInvalid(id)
		}
		seen[id] = true
	}

	for _, id := range required {
		if !seen[id] {
			verdict.Missing = append(verdict.Missing, id)
		}
	}

	verdict.OK = len(verdict.Missing) == 0 && len(verdict.Invalid) == 0
	return verdict
}

func naPermitted(policy NAPolicy, reference string) bool {
	if policy == nil {
		return strings.EqualFold(strings.TrimSpace(reference), catalog.DefaultNAReference)
	}
	return policy.NAPermitted(reference)
}

// String summarises the verdict for logs
func (v Verdict) String() string {
	if v.OK {
		return "complete"
	}
	return fmt.Sprintf("incomplete: %d missing, %d invalid", len(v.Missing), len(v.Invalid))
}
