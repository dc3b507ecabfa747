package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
)

func NewConfig() *core.Config {
	return &core.Config{
		Env:      "TEST",
		TestMode: true,
		AppName:  "Teacher Assistant",
		Grouping: core.GroupingConfig{MaxAttempts: grouping.DefaultMaxAttempts, DefaultPrefix: "Group"},
	}
}

// NewValidator returns a validator with the core and classroom validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	classroom.InitValidators(validate, translator)
	return validate, translator
}

func CreateClass(t *testing.T, repo classroom.Repository, name string) classroom.Class {
	t.Helper()
	class, err := repo.CreateClass(context.Background(), classroom.Class{Name: name, OwnerName: "Ms. Test"})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return class
}

func CreateStudent(t *testing.T, repo classroom.Repository, student grouping.Student) grouping.Student {
	t.Helper()
	student, err := repo.CreateStudent(context.Background(), student)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return student
}

// CreateRoster creates n students named "Student 01".. in class `classID`, with genders cycling over `genders`.
func CreateRoster(t *testing.T, repo classroom.Repository, classID string, n int, genders ...string) []grouping.Student {
	t.Helper()
	roster := make([]grouping.Student, 0, n)
	for i := 0; i < n; i++ {
		s := grouping.Student{ClassID: classID, FirstName: "Student", LastName: fmt.Sprintf("%02d", i+1)}
		if len(genders) > 0 {
			s.Gender = genders[i%len(genders)]
		}
		roster = append(roster, CreateStudent(t, repo, s))
	}
	return roster
}

func CreateSeparation(t *testing.T, repo classroom.Repository, a, b string) {
	t.Helper()
	if _, err := repo.CreateSeparationConstraint(context.Background(), grouping.SeparationConstraint{StudentA: a, StudentB: b}); err != nil {
		t.Fatalf("CreateSeparationConstraint() failed: %v", err)
	}
}

// CreateGradedAssessment creates an assessment of the class and one entry per score.
func CreateGradedAssessment(t *testing.T, repo classroom.Repository, classID string, maxScore float64, scores map[string]float64) grouping.Assessment {
	t.Helper()
	ctx := context.Background()
	a, err := repo.CreateAssessment(ctx, grouping.Assessment{ClassID: classID, Title: "Quiz", MaxScore: maxScore})
	if err != nil {
		t.Fatalf("CreateAssessment() failed: %v", err)
	}
	for studentID, score := range scores {
		entry := grouping.AssessmentEntry{AssessmentID: a.ID, StudentID: studentID, Score: null.Float64From(score)}
		if _, err = repo.CreateAssessmentEntry(ctx, entry); err != nil {
			t.Fatalf("CreateAssessmentEntry() failed: %v", err)
		}
	}
	return a
}

// Logger records what it is asked to log.
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, level+": "+msg)
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("INFO", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("WARN", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("ERROR", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("FATAL", msg) }

func (l *Logger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Messages)
}
