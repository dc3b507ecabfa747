package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
)

// operatorIntervention is the SQLSTATE class of admin_shutdown, crash_shutdown and cannot_connect_now.
const operatorIntervention pq.ErrorClass = "57"

const studentColumns = "s.id, s.class_id, s.first_name, s.last_name, s.gender, s.needs_help, s.separation_list"

type (
	classRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		OwnerName string    `db:"owner_name"`
		CreatedAt time.Time `db:"created_at"`
	}

	studentRow struct {
		ID             string `db:"id"`
		ClassID        string `db:"class_id"`
		FirstName      string `db:"first_name"`
		LastName       string `db:"last_name"`
		Gender         string `db:"gender"`
		NeedsHelp      bool   `db:"needs_help"`
		SeparationList string `db:"separation_list"`
	}

	assessmentRow struct {
		ID       string       `db:"id"`
		ClassID  string       `db:"class_id"`
		Title    string       `db:"title"`
		MaxScore null.Float64 `db:"max_score"`
	}

	entryRow struct {
		ID           string       `db:"id"`
		AssessmentID string       `db:"assessment_id"`
		StudentID    string       `db:"student_id"`
		Score        null.Float64 `db:"score"`
	}

	groupRow struct {
		ID        string    `db:"id"`
		ClassID   string    `db:"class_id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}

	memberRow struct {
		GroupID string `db:"group_id"`
		studentRow
	}
)

func (r studentRow) student() grouping.Student {
	return grouping.Student{
		ID:             r.ID,
		ClassID:        r.ClassID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Gender:         r.Gender,
		NeedsHelp:      r.NeedsHelp,
		SeparationList: r.SeparationList,
	}
}

// assessment resolves the stored max score: NULL, non-positive or non-finite becomes grouping.DefaultMaxScore.
func (r assessmentRow) assessment() grouping.Assessment {
	return grouping.Assessment{
		ID:       r.ID,
		ClassID:  r.ClassID,
		Title:    r.Title,
		MaxScore: grouping.ResolveMaxScore(r.MaxScore),
	}
}

type classroomRepository struct {
	db core.DB
}

var _ classroom.Repository = (*classroomRepository)(nil) // interface compliance check

func NewClassroomRepository(db core.DB) *classroomRepository {
	return &classroomRepository{db: db}
}

// validID reports whether id can be compared to a UUID column; anything else cannot match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo classroomRepository) GetClass(ctx context.Context, id string) (classroom.Class, error) {
	if !validID(id) {
		return classroom.Class{}, classroom.ErrNotFound
	}
	var row classRow
	err := repo.db.GetContext(ctx, &row, `SELECT id, name, owner_name, created_at FROM class WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return classroom.Class{}, classroom.ErrNotFound
	}
	if err != nil {
		return classroom.Class{}, dbError(err, "getting class")
	}
	return classroom.Class{ID: row.ID, Name: row.Name, OwnerName: row.OwnerName, CreatedAt: row.CreatedAt.UTC()}, nil
}

func (repo classroomRepository) CreateClass(ctx context.Context, class classroom.Class) (classroom.Class, error) {
	class.ID = uuid.New().String()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO class (id, name, owner_name, created_at) VALUES ($1, $2, $3, $4)`,
		class.ID, class.Name, class.OwnerName, class.CreatedAt)
	if err != nil {
		return classroom.Class{}, dbError(err, "inserting class")
	}
	return class, nil
}

func (repo classroomRepository) CreateStudent(ctx context.Context, s grouping.Student) (grouping.Student, error) {
	s.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO student (id, class_id, first_name, last_name, gender, needs_help, separation_list)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.ClassID, s.FirstName, s.LastName, s.Gender, s.NeedsHelp, s.SeparationList)
	if err != nil {
		return grouping.Student{}, dbError(err, "inserting student")
	}
	return s, nil
}

func (repo classroomRepository) QueryStudents(ctx context.Context, classID string) ([]grouping.Student, error) {
	if !validID(classID) {
		return []grouping.Student{}, nil
	}
	order := core.OrderBy(
		core.DBOrdering{Field: "s.last_name", Ascending: true},
		core.DBOrdering{Field: "s.first_name", Ascending: true},
		core.DBOrdering{Field: "s.id", Ascending: true},
	)
	var rows []studentRow
	q := `SELECT ` + studentColumns + ` FROM student s WHERE s.class_id = $1 ORDER BY ` + order
	if err := repo.db.SelectContext(ctx, &rows, q, classID); err != nil {
		return nil, dbError(err, "querying students")
	}
	students := make([]grouping.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo classroomRepository) CreateSeparationConstraint(ctx context.Context, sc grouping.SeparationConstraint) (grouping.SeparationConstraint, error) {
	sc.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO separation_constraint (id, student_a, student_b) VALUES ($1, $2, $3)`,
		sc.ID, sc.StudentA, sc.StudentB)
	if err != nil {
		return grouping.SeparationConstraint{}, dbError(err, "inserting separation constraint")
	}
	return sc, nil
}

func (repo classroomRepository) QuerySeparationConstraints(ctx context.Context) ([]grouping.SeparationConstraint, error) {
	var rows []struct {
		ID       string `db:"id"`
		StudentA string `db:"student_a"`
		StudentB string `db:"student_b"`
	}
	if err := repo.db.SelectContext(ctx, &rows, `SELECT id, student_a, student_b FROM separation_constraint`); err != nil {
		return nil, dbError(err, "querying separation constraints")
	}
	constraints := make([]grouping.SeparationConstraint, 0, len(rows))
	for _, r := range rows {
		constraints = append(constraints, grouping.SeparationConstraint{ID: r.ID, StudentA: r.StudentA, StudentB: r.StudentB})
	}
	return constraints, nil
}

func (repo classroomRepository) CreateAssessment(ctx context.Context, a grouping.Assessment) (grouping.Assessment, error) {
	a.ID = uuid.New().String()
	// a zero max score is stored as NULL: "not set"
	maxScore := null.NewFloat64(a.MaxScore, a.MaxScore != 0)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO assessment (id, class_id, title, max_score) VALUES ($1, $2, $3, $4)`,
		a.ID, a.ClassID, a.Title, maxScore)
	if err != nil {
		return grouping.Assessment{}, dbError(err, "inserting assessment")
	}
	a.MaxScore = grouping.ResolveMaxScore(maxScore)
	return a, nil
}

func (repo classroomRepository) QueryAssessments(ctx context.Context, classID string) ([]grouping.Assessment, error) {
	if !validID(classID) {
		return []grouping.Assessment{}, nil
	}
	var rows []assessmentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT id, class_id, title, max_score FROM assessment WHERE class_id = $1 ORDER BY created_at ASC`, classID)
	if err != nil {
		return nil, dbError(err, "querying assessments")
	}
	assessments := make([]grouping.Assessment, 0, len(rows))
	for _, r := range rows {
		assessments = append(assessments, r.assessment())
	}
	return assessments, nil
}

func (repo classroomRepository) CreateAssessmentEntry(ctx context.Context, e grouping.AssessmentEntry) (grouping.AssessmentEntry, error) {
	e.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO assessment_entry (id, assessment_id, student_id, score) VALUES ($1, $2, $3, $4)`,
		e.ID, e.AssessmentID, e.StudentID, e.Score)
	if err != nil {
		return grouping.AssessmentEntry{}, dbError(err, "inserting assessment entry")
	}
	return e, nil
}

func (repo classroomRepository) QueryAssessmentEntries(ctx context.Context, assessmentIDs ...string) ([]grouping.AssessmentEntry, error) {
	ids := make([]string, 0, len(assessmentIDs))
	for _, id := range assessmentIDs {
		if validID(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []grouping.AssessmentEntry{}, nil
	}

	var rows []entryRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT id, assessment_id, student_id, score FROM assessment_entry WHERE assessment_id = ANY($1::uuid[])`,
		pq.Array(ids))
	if err != nil {
		return nil, dbError(err, "querying assessment entries")
	}
	entries := make([]grouping.AssessmentEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, grouping.AssessmentEntry{
			ID:           r.ID,
			AssessmentID: r.AssessmentID,
			StudentID:    r.StudentID,
			Score:        r.Score,
		})
	}
	return entries, nil
}

func (repo classroomRepository) QueryGroups(ctx context.Context, classID string) ([]classroom.Group, error) {
	if !validID(classID) {
		return []classroom.Group{}, nil
	}

	var rows []groupRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT id, class_id, name, created_at FROM student_group WHERE class_id = $1 ORDER BY created_at ASC, position ASC`,
		classID)
	if err != nil {
		return nil, dbError(err, "querying groups")
	}

	var members []memberRow
	err = repo.db.SelectContext(ctx, &members,
		`SELECT gm.group_id, `+studentColumns+`
		FROM group_member gm
		JOIN student_group g ON g.id = gm.group_id
		JOIN student s ON s.id = gm.student_id
		WHERE g.class_id = $1
		ORDER BY gm.position ASC`,
		classID)
	if err != nil {
		return nil, dbError(err, "querying group members")
	}
	byGroup := make(map[string][]grouping.Student, len(rows))
	for _, m := range members {
		byGroup[m.GroupID] = append(byGroup[m.GroupID], m.student())
	}

	groups := make([]classroom.Group, 0, len(rows))
	for _, r := range rows {
		mbrs := byGroup[r.ID]
		if mbrs == nil {
			mbrs = []grouping.Student{}
		}
		groups = append(groups, classroom.Group{
			ID:        r.ID,
			ClassID:   r.ClassID,
			Name:      r.Name,
			CreatedAt: r.CreatedAt.UTC(),
			Members:   mbrs,
		})
	}
	return groups, nil
}

// SaveGroups runs in one transaction: a failure rolls back the deletion of the previous groups too.
func (repo classroomRepository) SaveGroups(ctx context.Context, classID string, groups []classroom.Group, clearExisting bool) (saved []classroom.Group, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, dbError(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = checkRoster(ctx, tx, classID, groups); err != nil {
		return nil, err
	}

	if clearExisting {
		if _, err = tx.ExecContext(ctx, `DELETE FROM student_group WHERE class_id = $1`, classID); err != nil {
			return nil, dbError(err, "deleting previous groups")
		}
	}

	saved = make([]classroom.Group, 0, len(groups))
	for i, g := range groups {
		g.ID = uuid.New().String()
		g.ClassID = classID
		if g.CreatedAt.IsZero() {
			g.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO student_group (id, class_id, name, position, created_at) VALUES ($1, $2, $3, $4, $5)`,
			g.ID, g.ClassID, g.Name, i, g.CreatedAt)
		if err != nil {
			return nil, dbError(err, "inserting group")
		}
		if err = insertMembers(ctx, tx, g); err != nil {
			return nil, err
		}
		saved = append(saved, g)
	}

	if err = tx.Commit(); err != nil {
		return nil, dbError(err, "committing groups")
	}
	return saved, nil
}

// checkRoster fails unless every member of groups is a student of the class.
func checkRoster(ctx context.Context, tx *sqlx.Tx, classID string, groups []classroom.Group) error {
	var ids []string
	for _, g := range groups {
		for _, s := range g.Members {
			if !validID(s.ID) {
				return errors.Errorf("saving group %q: student %s is not in class %s", g.Name, s.ID, classID)
			}
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var found []string
	err := tx.SelectContext(ctx, &found,
		`SELECT id FROM student WHERE class_id = $1 AND id = ANY($2::uuid[])`, classID, pq.Array(ids))
	if err != nil {
		return dbError(err, "checking group members")
	}
	roster := make(map[string]struct{}, len(found))
	for _, id := range found {
		roster[id] = struct{}{}
	}
	for _, g := range groups {
		for _, s := range g.Members {
			if _, ok := roster[s.ID]; !ok {
				return errors.Errorf("saving group %q: student %s is not in class %s", g.Name, s.ID, classID)
			}
		}
	}
	return nil
}

// insertMembers stores every membership of g with a single multi-row INSERT.
func insertMembers(ctx context.Context, tx *sqlx.Tx, g classroom.Group) error {
	if len(g.Members) == 0 {
		return nil
	}
	const cols = 3
	args := make([]interface{}, 0, len(g.Members)*cols)
	for pos, s := range g.Members {
		args = append(args, g.ID, s.ID, pos)
	}
	var q strings.Builder
	q.WriteString(`INSERT INTO group_member (group_id, student_id, position) VALUES `)
	q.WriteString(strmangle.Placeholders(true, len(args), 1, cols))
	if _, err := tx.ExecContext(ctx, q.String(), args...); err != nil {
		return dbError(err, "inserting group members")
	}
	return nil
}

func (repo classroomRepository) DeleteGroupsByClass(ctx context.Context, classID string) (int, error) {
	if !validID(classID) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM student_group WHERE class_id = $1`, classID)
	if err != nil {
		return 0, dbError(err, "deleting groups")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError(err, "deleting groups")
	}
	return int(n), nil
}

// dbError wraps err with msg. When Postgres reports it is going away (admin or crash shutdown),
// the cause becomes a core shutdown error so the API can stop gracefully.
func dbError(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code.Class() == operatorIntervention {
		return errors.Wrap(core.NewShutdownError(pqErr.Message), msg)
	}
	return errors.Wrap(err, msg)
}
