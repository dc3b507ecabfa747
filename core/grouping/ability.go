package grouping

import (
	"math"
	"sort"

	"github.com/volatiletech/null/v8"
)

const (
	lowerPercentile = 0.33
	upperPercentile = 0.66

	// supportPartnerPercent is the average from which a student can support a classmate
	// regardless of their band.
	supportPartnerPercent = 75.0
)

// BuildAbilityProfiles bands every student of `classStudents` by the mean percentage they scored
// on the graded assessments of class `classID`.
//
// Bands are relative to the class: the cut points are the ~33rd and ~66th percentile
// of the students' means, so each band holds roughly a third of the graded students
// whatever the grading scale. Students without any graded entry are "unknown".
func BuildAbilityProfiles(
	classID string,
	classStudents []Student,
	assessments []Assessment,
	entries []AssessmentEntry,
) map[string]AbilityProfile {
	byID := make(map[string]Assessment, len(assessments))
	for _, a := range assessments {
		if a.ClassID == classID {
			byID[a.ID] = a
		}
	}

	samples := make(map[string][]float64)
	for _, e := range entries {
		a, ok := byID[e.AssessmentID]
		if !ok || !e.Score.Valid || !isFinite(e.Score.Float64) {
			continue
		}
		samples[e.StudentID] = append(samples[e.StudentID], e.Score.Float64/a.EffectiveMaxScore()*100)
	}

	averages := make(map[string]float64, len(classStudents))
	sorted := make([]float64, 0, len(classStudents))
	for _, s := range classStudents {
		pcts, ok := samples[s.ID]
		if !ok {
			continue
		}
		if _, seen := averages[s.ID]; seen {
			continue
		}
		avg := mean(pcts)
		averages[s.ID] = avg
		sorted = append(sorted, avg)
	}
	sort.Float64s(sorted)

	haveThresholds := len(sorted) > 0
	var lower, upper float64
	if haveThresholds {
		lower = percentileAt(sorted, lowerPercentile)
		upper = percentileAt(sorted, upperPercentile)
	}

	profiles := make(map[string]AbilityProfile, len(classStudents))
	for _, s := range classStudents {
		prof := AbilityProfile{StudentID: s.ID}
		avg, graded := averages[s.ID]
		switch {
		case !graded:
			prof.Band, prof.Rank = BandUnknown, 1
		case !haveThresholds:
			prof.Band, prof.Rank = BandProficient, 1
		case avg <= lower:
			prof.Band, prof.Rank = BandDeveloping, 0
		case avg >= upper:
			prof.Band, prof.Rank = BandAdvanced, 2
		default:
			prof.Band, prof.Rank = BandProficient, 1
		}
		if graded {
			prof.AveragePercent = null.Float64From(avg)
		}
		prof.IsSupportPartner = !s.NeedsHelp && graded && isFinite(avg) &&
			(prof.Band == BandAdvanced || avg >= supportPartnerPercent)
		profiles[s.ID] = prof
	}
	return profiles
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// percentileAt picks the value at index floor((n-1)*p) of an ascending, non empty slice.
func percentileAt(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)-1) * p))
	return sorted[idx]
}
