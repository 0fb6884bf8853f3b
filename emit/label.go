package emit

import (
	"fmt"
	"sort"

	"github.com/chazu/cellemit/isa"
)

// ---------------------------------------------------------------------------
// Label resolver: two-phase backpatching
// ---------------------------------------------------------------------------

// site is an operand cell written before its label was defined.
type site struct {
	offset int
	rule   isa.PatchRule
}

// label is one named position in a stream.
type label struct {
	name     string
	resolved bool
	offset   int    // valid when resolved
	pending  []site // sites waiting for the definition
}

// labelTable holds every label of one context.
type labelTable struct {
	labels map[string]*label
	origin int // added to absolute patch values
}

func newLabelTable(origin int) *labelTable {
	return &labelTable{labels: make(map[string]*label), origin: origin}
}

func (t *labelTable) patch(rule isa.PatchRule, labelOffset, siteOffset int) isa.Cell {
	if rule == isa.PatchAbsolute {
		return rule.Apply(labelOffset+t.origin, siteOffset)
	}
	return rule.Apply(labelOffset, siteOffset)
}

func (t *labelTable) get(name string) *label {
	l, ok := t.labels[name]
	if !ok {
		l = &label{name: name}
		t.labels[name] = l
	}
	return l
}

// reference returns the cell to write at siteOffset for a reference to name.
// A defined label is resolved on the spot; otherwise a placeholder is
// returned and the site is queued.
func (t *labelTable) reference(name string, siteOffset int, rule isa.PatchRule) isa.Cell {
	l := t.get(name)
	if l.resolved {
		return t.patch(rule, l.offset, siteOffset)
	}
	l.pending = append(l.pending, site{offset: siteOffset, rule: rule})
	return 0
}

// define resolves name at offset and patches every queued site through store.
// It returns the number of sites patched.
func (t *labelTable) define(name string, offset int, store func(offset int, v isa.Cell) error) (int, error) {
	l := t.get(name)
	if l.resolved {
		return 0, fmt.Errorf("%w: %q already defined at offset %d", ErrDuplicateLabel, name, l.offset)
	}
	l.resolved = true
	l.offset = offset
	for _, s := range l.pending {
		if err := store(s.offset, t.patch(s.rule, offset, s.offset)); err != nil {
			return 0, err
		}
	}
	n := len(l.pending)
	l.pending = nil
	return n, nil
}

// offset returns the resolved offset of name.
func (t *labelTable) offset(name string) (int, bool) {
	l, ok := t.labels[name]
	if !ok || !l.resolved {
		return 0, false
	}
	return l.offset, true
}

// pending returns the number of unpatched sites for name.
func (t *labelTable) pendingSites(name string) int {
	if l, ok := t.labels[name]; ok {
		return len(l.pending)
	}
	return 0
}

// unresolved returns, sorted, every label with queued sites.
func (t *labelTable) unresolved() []string {
	var names []string
	for name, l := range t.labels {
		if !l.resolved && len(l.pending) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// resolvedOffsets returns a copy of every defined label's offset.
func (t *labelTable) resolvedOffsets() map[string]int {
	out := make(map[string]int, len(t.labels))
	for name, l := range t.labels {
		if l.resolved {
			out[name] = l.offset
		}
	}
	return out
}
