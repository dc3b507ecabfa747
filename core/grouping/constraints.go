package grouping

import "strings"

const pairSep = "|"

// ConstraintSet holds canonical pair keys of students that must not share a group.
// A nil ConstraintSet separates nobody.
type ConstraintSet map[string]struct{}

// PairKey returns the canonical key of an unordered pair of student IDs.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + pairSep + b
}

// Separated reports whether students a and b must not be grouped together.
func (cs ConstraintSet) Separated(a, b string) bool {
	_, ok := cs[PairKey(a, b)]
	return ok
}

// BuildConstraintSet merges explicit separation rows and every student's SeparationList
// into one set of canonical pairs. Self pairs and pairs naming a student
// outside `students` are dropped.
func BuildConstraintSet(students []Student, constraints []SeparationConstraint) ConstraintSet {
	valid := make(map[string]struct{}, len(students))
	for _, s := range students {
		valid[s.ID] = struct{}{}
	}

	set := make(ConstraintSet)
	add := func(a, b string) {
		if a == b {
			return
		}
		if _, ok := valid[a]; !ok {
			return
		}
		if _, ok := valid[b]; !ok {
			return
		}
		set[PairKey(a, b)] = struct{}{}
	}

	for _, c := range constraints {
		add(c.StudentA, c.StudentB)
	}
	for _, s := range students {
		for _, other := range strings.Split(s.SeparationList, ",") {
			if other = strings.TrimSpace(other); other != "" {
				add(s.ID, other)
			}
		}
	}
	return set
}
