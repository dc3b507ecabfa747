package sqlxrepos

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
	appfs "github.com/fredmonaquezi/teacher-assistant-web-sub001/fs"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database"
	testutil "github.com/fredmonaquezi/teacher-assistant-web-sub001/tests"
)

// openTestDB connects to TEST_DATABASE_URL, a disposable Postgres database, and migrates it.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB, appfs.FS, "up"))
	return db
}

func TestClassroomRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewClassroomRepository(db)
	ctx := context.Background()

	class := testutil.CreateClass(t, repo, "5A")
	got, err := repo.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, class.Name, got.Name)

	_, err = repo.GetClass(ctx, "not-a-uuid")
	assert.Equal(t, classroom.ErrNotFound, err)

	roster := []grouping.Student{
		testutil.CreateStudent(t, repo, grouping.Student{ClassID: class.ID, FirstName: "Bo", LastName: "B", Gender: "m"}),
		testutil.CreateStudent(t, repo, grouping.Student{ClassID: class.ID, FirstName: "Al", LastName: "A", NeedsHelp: true}),
		testutil.CreateStudent(t, repo, grouping.Student{ClassID: class.ID, FirstName: "Cy", LastName: "C"}),
	}
	students, err := repo.QueryStudents(ctx, class.ID)
	require.NoError(t, err)
	require.Len(t, students, 3)
	assert.Equal(t, []string{roster[1].ID, roster[0].ID, roster[2].ID},
		[]string{students[0].ID, students[1].ID, students[2].ID})
	assert.True(t, students[0].NeedsHelp)

	testutil.CreateSeparation(t, repo, roster[0].ID, roster[1].ID)
	constraints, err := repo.QuerySeparationConstraints(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, constraints)

	t.Run("assessments", func(t *testing.T) {
		a := testutil.CreateGradedAssessment(t, repo, class.ID, 0, map[string]float64{roster[0].ID: 7})
		assert.Equal(t, grouping.DefaultMaxScore, a.MaxScore)
		_, err := repo.CreateAssessmentEntry(ctx, grouping.AssessmentEntry{AssessmentID: a.ID, StudentID: roster[1].ID, Score: null.Float64{}})
		require.NoError(t, err)

		assessments, err := repo.QueryAssessments(ctx, class.ID)
		require.NoError(t, err)
		require.Len(t, assessments, 1)
		assert.Equal(t, grouping.DefaultMaxScore, assessments[0].MaxScore)

		entries, err := repo.QueryAssessmentEntries(ctx, a.ID, "not-a-uuid")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("groups", func(t *testing.T) {
		first, err := repo.SaveGroups(ctx, class.ID, []classroom.Group{
			{Name: "Group 1", Members: []grouping.Student{roster[2], roster[0]}},
			{Name: "Group 2", Members: roster[1:2]},
		}, true)
		require.NoError(t, err)

		stored, err := repo.QueryGroups(ctx, class.ID)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, "Group 1", stored[0].Name)
		assert.Equal(t, []string{roster[2].ID, roster[0].ID},
			[]string{stored[0].Members[0].ID, stored[0].Members[1].ID})

		// a student of no class breaks the foreign key: nothing of the run is kept
		stranger := grouping.Student{ID: "00000000-0000-0000-0000-000000000000"}
		_, err = repo.SaveGroups(ctx, class.ID, []classroom.Group{{Name: "Bad", Members: []grouping.Student{stranger}}}, true)
		require.Error(t, err)

		stored, err = repo.QueryGroups(ctx, class.ID)
		require.NoError(t, err)
		require.Len(t, stored, len(first))
		assert.Equal(t, first[0].ID, stored[0].ID)

		// a student of another class is refused as well
		other := testutil.CreateClass(t, repo, "5B")
		outsider := testutil.CreateStudent(t, repo, grouping.Student{ClassID: other.ID, FirstName: "Di", LastName: "D"})
		_, err = repo.SaveGroups(ctx, class.ID, []classroom.Group{{Name: "Mixed", Members: []grouping.Student{roster[0], outsider}}}, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not in class")

		stored, err = repo.QueryGroups(ctx, class.ID)
		require.NoError(t, err)
		require.Len(t, stored, len(first))

		n, err := repo.DeleteGroupsByClass(ctx, class.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestDBError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantShutdown bool
	}{
		{name: "plain error", err: errors.New("boom")},
		{name: "unique violation", err: &pq.Error{Code: "23505", Message: "duplicate key"}},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"}, wantShutdown: true},
		{name: "cannot connect now", err: &pq.Error{Code: "57P03", Message: "the database system is starting up"}, wantShutdown: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dbError(tt.err, "querying students")
			assert.Equal(t, tt.wantShutdown, core.IsShutdown(err))
			assert.Contains(t, err.Error(), "querying students: ")
		})
	}
}
