// Package inmemdb keeps classroom data in process memory. It backs tests and the
// API when no database is configured.
package inmemdb

import (
	"sync"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
)

type (
	// DB holds every table behind a single lock so that multi-table writes are atomic.
	DB struct {
		mutex sync.RWMutex

		classes     map[string]classroom.Class
		students    []grouping.Student // insertion order
		constraints []grouping.SeparationConstraint
		assessments []grouping.Assessment
		entries     []grouping.AssessmentEntry
		groups      []classroom.Group
	}
)

func Open() (*DB, error) {
	db := &DB{
		classes: make(map[string]classroom.Class),
	}
	return db, nil
}
