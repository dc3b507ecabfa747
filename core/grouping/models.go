// Package grouping splits a class roster into student groups.
//
// The engine is made of three parts used in this order by callers:
// BuildConstraintSet turns separation rules into canonical pair keys,
// BuildAbilityProfiles bands students by their assessment history, and
// Partitioner.Generate assigns students to groups greedily.
//
// Nothing in this package performs I/O or keeps state between calls.
package grouping

import (
	"math"

	"github.com/volatiletech/null/v8"
)

const (
	// DefaultMaxScore is the max score of an assessment that has none recorded.
	DefaultMaxScore = 10.0
	// MinGroupSize is the smallest group size the partitioner will build towards.
	MinGroupSize = 2
	// DefaultMaxAttempts bounds the group building loops.
	DefaultMaxAttempts = 200
)

// Student is a roster row.
// SeparationList is a comma separated list of student IDs this student must never share a group with.
type Student struct {
	ID             string `json:"id"`
	ClassID        string `json:"class_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Gender         string `json:"gender"`
	NeedsHelp      bool   `json:"needs_help"`
	SeparationList string `json:"separation_list"`
}

type Assessment struct {
	ID       string  `json:"id"`
	ClassID  string  `json:"class_id"`
	Title    string  `json:"title"`
	MaxScore float64 `json:"max_score"`
}

// EffectiveMaxScore returns MaxScore, or DefaultMaxScore when it is missing or invalid.
func (a Assessment) EffectiveMaxScore() float64 {
	return ResolveMaxScore(null.NewFloat64(a.MaxScore, true))
}

// ResolveMaxScore maps a stored max score to the one used in percent computations.
func ResolveMaxScore(max null.Float64) float64 {
	if !max.Valid || !isFinite(max.Float64) || max.Float64 <= 0 {
		return DefaultMaxScore
	}
	return max.Float64
}

// AssessmentEntry is one student's result on an assessment. An invalid Score means ungraded.
type AssessmentEntry struct {
	ID           string       `json:"id"`
	AssessmentID string       `json:"assessment_id"`
	StudentID    string       `json:"student_id"`
	Score        null.Float64 `json:"score"`
}

// SeparationConstraint is an unordered pair of students that must never be grouped together.
type SeparationConstraint struct {
	ID       string `json:"id"`
	StudentA string `json:"student_a"`
	StudentB string `json:"student_b"`
}

type Band string

const (
	BandUnknown    Band = "unknown"
	BandDeveloping Band = "developing"
	BandProficient Band = "proficient"
	BandAdvanced   Band = "advanced"
)

// AbilityProfile is derived per grouping run and never persisted.
type AbilityProfile struct {
	StudentID        string       `json:"student_id"`
	AveragePercent   null.Float64 `json:"average_percent"`
	Band             Band         `json:"band"`
	Rank             int          `json:"rank"`
	IsSupportPartner bool         `json:"is_support_partner"`
}

// unknownProfile stands in for students missing from the ability map.
var unknownProfile = AbilityProfile{Band: BandUnknown, Rank: 1}

// sortAverage returns the average used for ordering; a missing average sorts as -1.
func (ap AbilityProfile) sortAverage() float64 {
	if !ap.AveragePercent.Valid {
		return -1
	}
	return ap.AveragePercent.Float64
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
