package grouping

import (
	"math/rand"
	"sort"
	"strings"
	"time"
)

// Options selects which balancing rules the partitioner applies.
// RespectSeparations is read by callers: when it is false they pass an empty ConstraintSet.
type Options struct {
	BalanceGender       bool `json:"balance_gender"`
	BalanceAbility      bool `json:"balance_ability"`
	PairSupportPartners bool `json:"pair_support_partners"`
	RespectSeparations  bool `json:"respect_separations"`
}

// NeedsAbilityProfiles reports whether the options read the ability map at all.
func (o Options) NeedsAbilityProfiles() bool {
	return o.BalanceAbility || o.PairSupportPartners
}

type poolOrder int

const (
	orderShuffled poolOrder = iota
	orderByAbility
	orderNeedsHelpFirst
)

func (o Options) poolOrder() poolOrder {
	switch {
	case o.BalanceAbility:
		return orderByAbility
	case o.PairSupportPartners:
		return orderNeedsHelpFirst
	default:
		return orderShuffled
	}
}

// RandSource is the randomness used to shuffle the roster. *rand.Rand satisfies it.
type RandSource interface {
	Intn(n int) int
}

// Partitioner builds groups with a greedy single pass heuristic.
// The zero value is ready to use: a time seeded source and DefaultMaxAttempts.
type Partitioner struct {
	Rand        RandSource
	MaxAttempts int
}

// GenerateGroups partitions students with a zero value Partitioner.
func GenerateGroups(
	students []Student,
	size int,
	constraints ConstraintSet,
	opts Options,
	abilities map[string]AbilityProfile,
) [][]Student {
	return Partitioner{}.Generate(students, size, constraints, opts, abilities)
}

// Generate splits students into groups of at most `size` (floored to MinGroupSize).
//
// No returned group contains a separated pair. When separations make it impossible
// to seat a student the student is left out; use Unplaced to find them.
//
// With opts.BalanceGender, ceil(n/size) draft groups are filled one student per sweep
// before the leftovers are grouped the regular way.
func (p Partitioner) Generate(
	students []Student,
	size int,
	constraints ConstraintSet,
	opts Options,
	abilities map[string]AbilityProfile,
) [][]Student {
	if len(students) == 0 {
		return [][]Student{}
	}
	if size < MinGroupSize {
		size = MinGroupSize
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	rnd := p.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	run := &partitionRun{
		constraints: constraints,
		opts:        opts,
		abilities:   abilities,
	}
	run.pool = run.orderPool(students, rnd)

	groupCount := (len(students) + size - 1) / size
	groups := make([][]Student, 0, groupCount)

	if opts.BalanceGender {
		drafts := make([][]Student, groupCount)
		for placed := true; placed && len(run.pool) > 0; {
			placed = false
			for i := range drafts {
				if len(drafts[i]) >= size || len(run.pool) == 0 {
					continue
				}
				if s, ok := run.pickBest(drafts[i]); ok {
					drafts[i] = append(drafts[i], s)
					run.take(s.ID)
					placed = true
				}
			}
		}
		for _, d := range drafts {
			if len(d) > 0 {
				groups = append(groups, d)
			}
		}
	}

	for attempts := 0; len(run.pool) > 0 && attempts < maxAttempts; attempts++ {
		group := run.buildGroup(size, maxAttempts)
		if len(group) == 0 {
			break
		}
		groups = append(groups, group)
	}
	return groups
}

// Unplaced returns the students of `students` that appear in none of `groups`, in roster order.
func Unplaced(students []Student, groups [][]Student) []Student {
	placed := make(map[string]struct{}, len(students))
	for _, g := range groups {
		for _, s := range g {
			placed[s.ID] = struct{}{}
		}
	}
	var left []Student
	for _, s := range students {
		if _, ok := placed[s.ID]; !ok {
			left = append(left, s)
		}
	}
	return left
}

// partitionRun is the scratch state of one Generate call.
type partitionRun struct {
	pool        []Student
	constraints ConstraintSet
	opts        Options
	abilities   map[string]AbilityProfile
}

func (r *partitionRun) profile(id string) AbilityProfile {
	if prof, ok := r.abilities[id]; ok {
		return prof
	}
	return unknownProfile
}

func (r *partitionRun) orderPool(students []Student, rnd RandSource) []Student {
	pool := make([]Student, len(students))
	copy(pool, students)

	switch r.opts.poolOrder() {
	case orderByAbility:
		sort.SliceStable(pool, func(i, j int) bool {
			pi, pj := r.profile(pool[i].ID), r.profile(pool[j].ID)
			if pi.Rank != pj.Rank {
				return pi.Rank < pj.Rank
			}
			return pi.sortAverage() < pj.sortAverage()
		})
	case orderNeedsHelpFirst:
		sort.SliceStable(pool, func(i, j int) bool {
			return pool[i].NeedsHelp && !pool[j].NeedsHelp
		})
	default:
		for i := len(pool) - 1; i > 0; i-- {
			j := rnd.Intn(i + 1)
			pool[i], pool[j] = pool[j], pool[i]
		}
	}
	return pool
}

// take removes the student from the pool.
func (r *partitionRun) take(id string) {
	for i, s := range r.pool {
		if s.ID == id {
			r.pool = append(r.pool[:i], r.pool[i+1:]...)
			return
		}
	}
}

func (r *partitionRun) buildGroup(size, maxAttempts int) []Student {
	group := make([]Student, 0, size)
	for attempts := 0; len(group) < size && len(r.pool) > 0 && attempts < maxAttempts; attempts++ {
		s, ok := r.pickBest(group)
		if !ok {
			break
		}
		group = append(group, s)
		r.take(s.ID)
	}
	return group
}

func (r *partitionRun) fits(cand Student, group []Student) bool {
	for _, member := range group {
		if r.constraints.Separated(cand.ID, member.ID) {
			return false
		}
	}
	return true
}

// pickBest chooses the next student for `group` among the pool students it can take.
// The balancing rules are tried in order: gender, support partners, ability.
// A rule that finds no suitable candidate defers to the next one.
func (r *partitionRun) pickBest(group []Student) (Student, bool) {
	eligible := make([]Student, 0, len(r.pool))
	for _, cand := range r.pool {
		if r.fits(cand, group) {
			eligible = append(eligible, cand)
		}
	}
	if len(eligible) == 0 {
		return Student{}, false
	}
	if len(group) == 0 {
		return eligible[0], true
	}

	if r.opts.BalanceGender {
		if s, ok := pickNewGender(eligible, group); ok {
			return s, true
		}
	}
	if r.opts.PairSupportPartners {
		if s, ok := r.pickSupportMatch(eligible, group); ok {
			return s, true
		}
	}
	if r.opts.BalanceAbility {
		return r.pickAbilitySpread(eligible, group), true
	}
	return eligible[0], true
}

func normalizeGender(g string) string {
	return strings.ToLower(strings.TrimSpace(g))
}

func pickNewGender(eligible, group []Student) (Student, bool) {
	present := make(map[string]struct{}, len(group))
	for _, s := range group {
		present[normalizeGender(s.Gender)] = struct{}{}
	}
	for _, cand := range eligible {
		if _, ok := present[normalizeGender(cand.Gender)]; !ok {
			return cand, true
		}
	}
	return Student{}, false
}

func (r *partitionRun) pickSupportMatch(eligible, group []Student) (Student, bool) {
	var hasNeedsHelp, hasPartner bool
	for _, s := range group {
		if s.NeedsHelp {
			hasNeedsHelp = true
		}
		if r.profile(s.ID).IsSupportPartner {
			hasPartner = true
		}
	}

	switch {
	case hasNeedsHelp && !hasPartner:
		for _, cand := range eligible {
			if !cand.NeedsHelp && r.profile(cand.ID).IsSupportPartner {
				return cand, true
			}
		}
	case hasPartner && !hasNeedsHelp:
		for _, cand := range eligible {
			if cand.NeedsHelp {
				return cand, true
			}
		}
	}
	return Student{}, false
}

// pickAbilitySpread favours the band least present in the group, then lower rank, then lower average.
func (r *partitionRun) pickAbilitySpread(eligible, group []Student) Student {
	bandCount := make(map[Band]int, 4)
	for _, s := range group {
		bandCount[r.profile(s.ID).Band]++
	}

	ranked := make([]Student, len(eligible))
	copy(ranked, eligible)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := r.profile(ranked[i].ID), r.profile(ranked[j].ID)
		if ci, cj := bandCount[pi.Band], bandCount[pj.Band]; ci != cj {
			return ci < cj
		}
		if pi.Rank != pj.Rank {
			return pi.Rank < pj.Rank
		}
		return pi.sortAverage() < pj.sortAverage()
	})
	return ranked[0]
}
