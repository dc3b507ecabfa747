package classroom_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
	inmemdb "github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database/inmem"
	testutil "github.com/fredmonaquezi/teacher-assistant-web-sub001/tests"
)

type fixture struct {
	repo   classroom.Repository
	locker *classroom.LocalLocker
	log    *testutil.Logger
	svc    *classroom.Service
}

func newFixture(t *testing.T, conf ...*core.Config) fixture {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)

	cfg := testutil.NewConfig()
	if len(conf) > 0 {
		cfg = conf[0]
	}
	f := fixture{
		repo:   inmemdb.NewClassroomRepository(db),
		locker: classroom.NewLocalLocker(),
		log:    &testutil.Logger{},
	}
	validate, translator := testutil.NewValidator()
	f.svc = classroom.NewService(f.repo, f.locker, f.log, validate, translator, cfg)
	f.svc.SetRandSource(rand.NewSource(1))
	return f
}

func boolPtr(b bool) *bool { return &b }

func placedIDs(groups []classroom.Group) map[string]int {
	placed := make(map[string]int)
	for _, g := range groups {
		for _, s := range g.Members {
			placed[s.ID]++
		}
	}
	return placed
}

func TestNewService_panicsOnMissingDeps(t *testing.T) {
	validate, translator := testutil.NewValidator()
	assert.Panics(t, func() {
		classroom.NewService(nil, classroom.NewLocalLocker(), &testutil.Logger{}, validate, translator, testutil.NewConfig())
	})
}

func TestService_GenerateGroups_validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	class := testutil.CreateClass(t, f.repo, "5A")

	tests := []struct {
		name   string
		req    classroom.GenerateRequest
		fields map[string]string
	}{
		{
			name:   "size below minimum",
			req:    classroom.GenerateRequest{ClassID: class.ID, Size: 1},
			fields: map[string]string{"size": "size must be 2 or greater"},
		},
		{
			name:   "missing class",
			req:    classroom.GenerateRequest{ClassID: "  ", Size: 3},
			fields: map[string]string{"classId": "this field is required"},
		},
		{
			name: "missing everything",
			req:  classroom.GenerateRequest{},
			fields: map[string]string{
				"classId": "this field is required",
				"size":    "this field is required",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GenerateGroups(ctx, tt.req)
			require.True(t, core.IsValidationError(err), "got %v, want a validation error", err)

			verr := err.(*core.ValidationError)
			got := make(map[string]string, len(verr.Fields))
			for _, fe := range verr.Fields {
				got[fe.Field] = fe.Error
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestService_GenerateGroups_classErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: "nope", Size: 2})
	assert.Equal(t, classroom.ErrNotFound, err)

	class := testutil.CreateClass(t, f.repo, "empty")
	_, err = f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 2})
	assert.True(t, core.IsValidationError(err), "empty roster: got %v, want a validation error", err)
}

func TestService_GenerateGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	class := testutil.CreateClass(t, f.repo, "5A")
	roster := testutil.CreateRoster(t, f.repo, class.ID, 10, "f", "m")

	res, err := f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 3, BalanceGender: true})
	require.NoError(t, err)

	require.Len(t, res.Groups, 4)
	for i, g := range res.Groups {
		assert.Equal(t, "Group "+string(rune('1'+i)), g.Name)
		assert.Equal(t, class.ID, g.ClassID)
		assert.NotEmpty(t, g.ID)
		assert.LessOrEqual(t, len(g.Members), 3)
	}
	assert.Empty(t, res.Unplaced)

	placed := placedIDs(res.Groups)
	assert.Len(t, placed, len(roster))
	for _, s := range roster {
		assert.Equal(t, 1, placed[s.ID], "student %s", s.ID)
	}

	stored, err := f.svc.QueryGroups(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Groups, stored)
}

func TestService_GenerateGroups_prefixAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	class := testutil.CreateClass(t, f.repo, "5A")
	testutil.CreateRoster(t, f.repo, class.ID, 6)

	_, err := f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 3})
	require.NoError(t, err)
	res, err := f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 3, Prefix: " Team "})
	require.NoError(t, err)
	assert.Equal(t, "Team 1", res.Groups[0].Name)

	stored, err := f.svc.QueryGroups(ctx, class.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	_, err = f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 2, ClearExisting: true})
	require.NoError(t, err)
	stored, err = f.svc.QueryGroups(ctx, class.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	n, err := f.svc.ClearGroups(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	stored, err = f.svc.QueryGroups(ctx, class.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_GenerateGroups_separations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	class := testutil.CreateClass(t, f.repo, "5A")
	roster := testutil.CreateRoster(t, f.repo, class.ID, 2)
	testutil.CreateSeparation(t, f.repo, roster[0].ID, roster[1].ID)

	res, err := f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 2})
	require.NoError(t, err)
	assert.Len(t, res.Groups, 2, "separated students must not share a group")

	res, err = f.svc.GenerateGroups(ctx, classroom.GenerateRequest{
		ClassID: class.ID, Size: 2, RespectSeparations: boolPtr(false), ClearExisting: true,
	})
	require.NoError(t, err)
	assert.Len(t, res.Groups, 1, "separations are ignored when not respected")
}

func TestService_GenerateGroups_ability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	class := testutil.CreateClass(t, f.repo, "5A")
	roster := testutil.CreateRoster(t, f.repo, class.ID, 6)

	scores := make(map[string]float64, len(roster))
	for i, s := range roster {
		scores[s.ID] = float64(i + 4) // 40%..90% out of the default 10
	}
	testutil.CreateGradedAssessment(t, f.repo, class.ID, 0, scores)

	res, err := f.svc.GenerateGroups(ctx, classroom.GenerateRequest{
		ClassID: class.ID, Size: 3, BalanceAbility: true, PairSupportPartners: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)

	// scores rise with the roster index, so the two lowest scorers open the groups
	assert.Equal(t, roster[0].ID, res.Groups[0].Members[0].ID)
	assert.Equal(t, roster[1].ID, res.Groups[1].Members[0].ID)
	for _, g := range res.Groups {
		assert.Len(t, g.Members, 3)
	}
}

func TestService_GenerateGroups_unplaced(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Grouping.MaxAttempts = 1
	f := newFixture(t, conf)
	ctx := context.Background()
	class := testutil.CreateClass(t, f.repo, "5A")
	testutil.CreateRoster(t, f.repo, class.ID, 4)

	res, err := f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 2})
	require.NoError(t, err)
	assert.Len(t, res.Groups, 1)
	assert.Len(t, res.Unplaced, 3)
	assert.Contains(t, f.log.Messages, "WARN: 3 student(s) could not be placed in a group")
}

func TestService_GenerateGroups_inProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	class := testutil.CreateClass(t, f.repo, "5A")
	testutil.CreateRoster(t, f.repo, class.ID, 4)

	unlock, err := f.locker.Lock(ctx, class.ID)
	require.NoError(t, err)

	_, err = f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 2})
	assert.Equal(t, classroom.ErrGenerationInProgress, err)
	_, err = f.svc.ClearGroups(ctx, class.ID)
	assert.Equal(t, classroom.ErrGenerationInProgress, err)

	unlock()
	_, err = f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 2})
	assert.NoError(t, err)
}

func TestService_GenerateGroups_reproducible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	class := testutil.CreateClass(t, f.repo, "5A")
	testutil.CreateRoster(t, f.repo, class.ID, 9)

	run := func() [][]string {
		f.svc.SetRandSource(rand.NewSource(99))
		res, err := f.svc.GenerateGroups(ctx, classroom.GenerateRequest{ClassID: class.ID, Size: 4, ClearExisting: true})
		require.NoError(t, err)
		var out [][]string
		for _, g := range res.Groups {
			var ids []string
			for _, s := range g.Members {
				ids = append(ids, s.ID)
			}
			out = append(out, ids)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestGenerateRequest_Options(t *testing.T) {
	req := classroom.GenerateRequest{BalanceGender: true, PairSupportPartners: true}
	assert.Equal(t, grouping.Options{BalanceGender: true, PairSupportPartners: true, RespectSeparations: true}, req.Options())

	req.RespectSeparations = boolPtr(false)
	assert.False(t, req.Options().RespectSeparations)
}
