// Package reading scores running records: a teacher listens to a student read a passage
// and counts the words, the errors and the self-corrections.
package reading

import (
	"fmt"
	"math"
)

type Level string

const (
	LevelIndependent   Level = "independent"
	LevelInstructional Level = "instructional"
	LevelFrustration   Level = "frustration"

	independentAccuracy   = 95.0
	instructionalAccuracy = 90.0
)

type RunningRecord struct {
	TotalWords      int `json:"total_words" validate:"min=1"`
	Errors          int `json:"errors" validate:"min=0"`
	SelfCorrections int `json:"self_corrections" validate:"min=0"`
}

type Result struct {
	Accuracy            float64 `json:"accuracy"`
	Level               Level   `json:"level"`
	SelfCorrectionRatio string  `json:"self_correction_ratio"`
}

// Accuracy returns (totalWords-errors)/totalWords*100 rounded to one decimal.
// Errors are clamped to [0, totalWords]; a record without words scores 0.
func Accuracy(totalWords, errors int) float64 {
	if totalWords <= 0 {
		return 0
	}
	if errors < 0 {
		errors = 0
	} else if errors > totalWords {
		errors = totalWords
	}
	acc := float64(totalWords-errors) / float64(totalWords) * 100
	return math.Round(acc*10) / 10
}

// LevelFor maps an accuracy percentage to a reading level.
func LevelFor(accuracy float64) Level {
	switch {
	case accuracy >= independentAccuracy:
		return LevelIndependent
	case accuracy >= instructionalAccuracy:
		return LevelInstructional
	default:
		return LevelFrustration
	}
}

// SelfCorrectionRatio returns "1:n" with n = round((errors+selfCorrections)/selfCorrections),
// or "" when there was no self-correction.
func SelfCorrectionRatio(errors, selfCorrections int) string {
	if selfCorrections <= 0 {
		return ""
	}
	if errors < 0 {
		errors = 0
	}
	n := math.Round(float64(errors+selfCorrections) / float64(selfCorrections))
	return fmt.Sprintf("1:%d", int(n))
}

func Score(rr RunningRecord) Result {
	acc := Accuracy(rr.TotalWords, rr.Errors)
	return Result{
		Accuracy:            acc,
		Level:               LevelFor(acc),
		SelfCorrectionRatio: SelfCorrectionRatio(rr.Errors, rr.SelfCorrections),
	}
}
