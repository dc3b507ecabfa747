// Package classroom runs grouping on stored class rosters and keeps the resulting groups.
package classroom

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
)

var (
	// errors
	ErrNotFound             = errors.New("class not found")
	ErrGenerationInProgress = errors.New("groups are already being generated for this class")

	errNoStudents    = errors.New("this class has no students")
	errUnsatisfiable = errors.New("Could not satisfy the grouping rules; adjust constraints or size")
)

type (
	Repository interface {
		GetClass(ctx context.Context, id string) (Class, error)
		CreateClass(ctx context.Context, class Class) (Class, error)
		CreateStudent(ctx context.Context, student grouping.Student) (grouping.Student, error)
		// QueryStudents returns the roster of the class, ordered by last then first name.
		QueryStudents(ctx context.Context, classID string) ([]grouping.Student, error)
		CreateSeparationConstraint(ctx context.Context, sc grouping.SeparationConstraint) (grouping.SeparationConstraint, error)
		QuerySeparationConstraints(ctx context.Context) ([]grouping.SeparationConstraint, error)
		CreateAssessment(ctx context.Context, a grouping.Assessment) (grouping.Assessment, error)
		// QueryAssessments returns the assessments of the class with their max score resolved.
		QueryAssessments(ctx context.Context, classID string) ([]grouping.Assessment, error)
		CreateAssessmentEntry(ctx context.Context, e grouping.AssessmentEntry) (grouping.AssessmentEntry, error)
		QueryAssessmentEntries(ctx context.Context, assessmentIDs ...string) ([]grouping.AssessmentEntry, error)
		QueryGroups(ctx context.Context, classID string) ([]Group, error)
		// SaveGroups stores every group of a run or none of them.
		// With clearExisting, the previous groups of the class are deleted in the same unit.
		SaveGroups(ctx context.Context, classID string, groups []Group, clearExisting bool) ([]Group, error)
		DeleteGroupsByClass(ctx context.Context, classID string) (int, error)
	}

	// Locker serializes grouping runs per class.
	Locker interface {
		// Lock returns ErrGenerationInProgress when the class is already locked.
		Lock(ctx context.Context, classID string) (unlock func(), err error)
	}

	Service struct {
		repo        Repository
		locker      Locker
		log         core.Logger
		validate    *validator.Validate
		translator  ut.Translator
		maxAttempts int
		prefix      string

		mu  sync.Mutex // guards rnd
		rnd *rand.Rand
	}
)

func NewService(
	repo Repository,
	locker Locker,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(locker, "locker"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	prefix := core.CleanString(conf.Grouping.DefaultPrefix)
	if prefix == "" {
		prefix = "Group"
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		log:         logger,
		validate:    validate,
		translator:  translator,
		maxAttempts: conf.Grouping.MaxAttempts,
		prefix:      prefix,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRandSource replaces the shuffle randomness; used to make runs reproducible.
func (svc *Service) SetRandSource(src rand.Source) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.rnd = rand.New(src)
}

// Intn implements grouping.RandSource; *rand.Rand is not safe for concurrent use.
func (svc *Service) Intn(n int) int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.rnd.Intn(n)
}

func (svc *Service) GenerateGroups(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if err := req.Validate(svc.validate, svc.translator); err != nil {
		return GenerateResult{}, err
	}
	if _, err := svc.repo.GetClass(ctx, req.ClassID); err != nil {
		return GenerateResult{}, err
	}

	unlock, err := svc.locker.Lock(ctx, req.ClassID)
	if err != nil {
		return GenerateResult{}, err
	}
	defer unlock()

	students, err := svc.repo.QueryStudents(ctx, req.ClassID)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "query students")
	}
	if len(students) == 0 {
		return GenerateResult{}, core.NewValidationError(errNoStudents, core.FieldError{Field: "classId", Error: errNoStudents.Error()})
	}

	opts := req.Options()
	constraints := grouping.ConstraintSet{}
	if opts.RespectSeparations {
		rows, err := svc.repo.QuerySeparationConstraints(ctx)
		if err != nil {
			return GenerateResult{}, errors.Wrap(err, "query separation constraints")
		}
		constraints = grouping.BuildConstraintSet(students, rows)
	}

	var abilities map[string]grouping.AbilityProfile
	if opts.NeedsAbilityProfiles() {
		if abilities, err = svc.abilityProfiles(ctx, req.ClassID, students); err != nil {
			return GenerateResult{}, err
		}
	}

	partitioner := grouping.Partitioner{Rand: svc, MaxAttempts: svc.maxAttempts}
	partition := partitioner.Generate(students, req.Size, constraints, opts, abilities)
	if len(partition) == 0 {
		return GenerateResult{}, core.NewValidationError(errUnsatisfiable)
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = svc.prefix
	}
	now := time.Now().UTC()
	groups := make([]Group, 0, len(partition))
	for i, members := range partition {
		groups = append(groups, Group{
			ClassID:   req.ClassID,
			Name:      fmt.Sprintf("%s %d", prefix, i+1),
			CreatedAt: now,
			Members:   members,
		})
	}

	saved, err := svc.repo.SaveGroups(ctx, req.ClassID, groups, req.ClearExisting)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "save groups")
	}

	unplaced := grouping.Unplaced(students, partition)
	if len(unplaced) > 0 {
		svc.log.Warn(
			fmt.Sprintf("%d student(s) could not be placed in a group", len(unplaced)),
			map[string]interface{}{"classId": req.ClassID, "unplaced": len(unplaced)},
		)
	}
	if unplaced == nil {
		unplaced = []grouping.Student{}
	}
	return GenerateResult{Groups: saved, Unplaced: unplaced}, nil
}

func (svc *Service) abilityProfiles(ctx context.Context, classID string, students []grouping.Student) (map[string]grouping.AbilityProfile, error) {
	assessments, err := svc.repo.QueryAssessments(ctx, classID)
	if err != nil {
		return nil, errors.Wrap(err, "query assessments")
	}
	ids := make([]string, 0, len(assessments))
	for _, a := range assessments {
		ids = append(ids, a.ID)
	}
	var entries []grouping.AssessmentEntry
	if len(ids) > 0 {
		if entries, err = svc.repo.QueryAssessmentEntries(ctx, ids...); err != nil {
			return nil, errors.Wrap(err, "query assessment entries")
		}
	}
	return grouping.BuildAbilityProfiles(classID, students, assessments, entries), nil
}

func (svc *Service) QueryGroups(ctx context.Context, classID string) ([]Group, error) {
	if _, err := svc.repo.GetClass(ctx, core.CleanString(classID)); err != nil {
		return nil, err
	}
	return svc.repo.QueryGroups(ctx, core.CleanString(classID))
}

// ClearGroups deletes every group of the class and returns how many were deleted.
func (svc *Service) ClearGroups(ctx context.Context, classID string) (int, error) {
	classID = core.CleanString(classID)
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return 0, err
	}

	unlock, err := svc.locker.Lock(ctx, classID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return svc.repo.DeleteGroupsByClass(ctx, classID)
}
