package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
)

type classroomRepository struct {
	db *DB
}

var _ classroom.Repository = (*classroomRepository)(nil)

func NewClassroomRepository(db *DB) classroom.Repository {
	return &classroomRepository{db: db}
}

func (repo *classroomRepository) GetClass(_ context.Context, id string) (classroom.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if class, ok := repo.db.classes[id]; ok {
		return class, nil
	}
	return classroom.Class{}, classroom.ErrNotFound
}

func (repo *classroomRepository) CreateClass(_ context.Context, class classroom.Class) (classroom.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	class.ID = uuid.New().String()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}
	repo.db.classes[class.ID] = class
	return class, nil
}

func (repo *classroomRepository) CreateStudent(_ context.Context, s grouping.Student) (grouping.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[s.ClassID]; !ok {
		return grouping.Student{}, classroom.ErrNotFound
	}
	s.ID = uuid.New().String()
	repo.db.students = append(repo.db.students, s)
	return s, nil
}

func (repo *classroomRepository) QueryStudents(_ context.Context, classID string) ([]grouping.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]grouping.Student, 0)
	for _, s := range repo.db.students {
		if s.ClassID == classID {
			students = append(students, s)
		}
	}
	sort.SliceStable(students, func(i, j int) bool {
		if students[i].LastName != students[j].LastName {
			return students[i].LastName < students[j].LastName
		}
		return students[i].FirstName < students[j].FirstName
	})
	return students, nil
}

func (repo *classroomRepository) CreateSeparationConstraint(_ context.Context, sc grouping.SeparationConstraint) (grouping.SeparationConstraint, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sc.ID = uuid.New().String()
	repo.db.constraints = append(repo.db.constraints, sc)
	return sc, nil
}

func (repo *classroomRepository) QuerySeparationConstraints(_ context.Context) ([]grouping.SeparationConstraint, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return append([]grouping.SeparationConstraint{}, repo.db.constraints...), nil
}

// CreateAssessment keeps the max score as given; it is resolved when read.
func (repo *classroomRepository) CreateAssessment(_ context.Context, a grouping.Assessment) (grouping.Assessment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a.ID = uuid.New().String()
	repo.db.assessments = append(repo.db.assessments, a)
	a.MaxScore = a.EffectiveMaxScore()
	return a, nil
}

func (repo *classroomRepository) QueryAssessments(_ context.Context, classID string) ([]grouping.Assessment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	assessments := make([]grouping.Assessment, 0)
	for _, a := range repo.db.assessments {
		if a.ClassID == classID {
			a.MaxScore = a.EffectiveMaxScore()
			assessments = append(assessments, a)
		}
	}
	return assessments, nil
}

func (repo *classroomRepository) CreateAssessmentEntry(_ context.Context, e grouping.AssessmentEntry) (grouping.AssessmentEntry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	e.ID = uuid.New().String()
	repo.db.entries = append(repo.db.entries, e)
	return e, nil
}

func (repo *classroomRepository) QueryAssessmentEntries(_ context.Context, assessmentIDs ...string) ([]grouping.AssessmentEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	wanted := make(map[string]struct{}, len(assessmentIDs))
	for _, id := range assessmentIDs {
		wanted[id] = struct{}{}
	}
	entries := make([]grouping.AssessmentEntry, 0)
	for _, e := range repo.db.entries {
		if _, ok := wanted[e.AssessmentID]; ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (repo *classroomRepository) QueryGroups(_ context.Context, classID string) ([]classroom.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]classroom.Group, 0)
	for _, g := range repo.db.groups {
		if g.ClassID == classID {
			g.Members = append([]grouping.Student{}, g.Members...)
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// SaveGroups checks every membership before touching the table, so a rejected run changes nothing.
func (repo *classroomRepository) SaveGroups(_ context.Context, classID string, groups []classroom.Group, clearExisting bool) ([]classroom.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[classID]; !ok {
		return nil, classroom.ErrNotFound
	}
	roster := make(map[string]struct{})
	for _, s := range repo.db.students {
		if s.ClassID == classID {
			roster[s.ID] = struct{}{}
		}
	}

	now := time.Now().UTC()
	saved := make([]classroom.Group, 0, len(groups))
	for _, g := range groups {
		for _, s := range g.Members {
			if _, ok := roster[s.ID]; !ok {
				return nil, errors.Errorf("saving group %q: student %s is not in class %s", g.Name, s.ID, classID)
			}
		}
		g.ID = uuid.New().String()
		g.ClassID = classID
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		g.Members = append([]grouping.Student{}, g.Members...)
		saved = append(saved, g)
	}

	if clearExisting {
		repo.db.groups = withoutClass(repo.db.groups, classID)
	}
	repo.db.groups = append(repo.db.groups, saved...)
	return saved, nil
}

func (repo *classroomRepository) DeleteGroupsByClass(_ context.Context, classID string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	before := len(repo.db.groups)
	repo.db.groups = withoutClass(repo.db.groups, classID)
	return before - len(repo.db.groups), nil
}

func withoutClass(groups []classroom.Group, classID string) []classroom.Group {
	kept := make([]classroom.Group, 0, len(groups))
	for _, g := range groups {
		if g.ClassID != classID {
			kept = append(kept, g)
		}
	}
	return kept
}
