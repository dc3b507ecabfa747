package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/apps"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	inmemdb "github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database/inmem"
	testutil "github.com/fredmonaquezi/teacher-assistant-web-sub001/tests"
)

var repo classroom.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo = inmemdb.NewClassroomRepository(db)

	validate, translator := testutil.NewValidator()
	svc := classroom.NewService(repo, classroom.NewLocalLocker(), &testutil.Logger{}, validate, translator, testutil.NewConfig())
	svc.SetRandSource(rand.NewSource(1))

	out := new(bytes.Buffer)
	return &commandLine{groupSvc: svc, out: out}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	migrateFunc = func(db *sql.DB, migrations fs.FS, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "rubric", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_generate(t *testing.T) {
	cli, out := setup(t)
	class := testutil.CreateClass(t, repo, "5A")
	testutil.CreateRoster(t, repo, class.ID, 4, "f", "m")

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no groups command", args: []string{"groups"}, wantErr: errHelp},
		{name: "unknown groups command", args: []string{"groups", "lol"}, wantErr: errHelp},
		{name: "no class", args: []string{"groups", "generate", "-size", "2"}, wantErr: apps.NewArgumentError("class", "is required")},
		{name: "bad size", args: []string{"groups", "generate", "-class", class.ID, "-size", "two"}, wantErrStr: "invalid value \"two\" for flag -size: parse error"},
		{name: "size too small", args: []string{"groups", "generate", "-class", class.ID, "-size", "1"}, wantErrStr: "size: size must be 2 or greater"},
		{name: "class not found", args: []string{"groups", "generate", "-class", "nope", "-size", "2"}, wantErr: classroom.ErrNotFound},
		{name: "generate", args: []string{"groups", "generate", "-class", class.ID, "-size", "2", "-prefix", "Pod", "-gender", "-clear"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines, "Pod 1: "+lineFor(t, class.ID, 0))
	assert.Contains(t, out.String(), "Pod 2: ")
}

// lineFor renders the members of the class's i-th stored group the way generate prints them.
func lineFor(t *testing.T, classID string, i int) string {
	t.Helper()
	groups, err := repo.QueryGroups(context.Background(), classID)
	require.NoError(t, err)
	require.Greater(t, len(groups), i)
	names := make([]string, 0, len(groups[i].Members))
	for _, s := range groups[i].Members {
		names = append(names, s.FirstName+" "+s.LastName)
	}
	return strings.Join(names, ", ")
}

func Test_commandLine_clear(t *testing.T) {
	cli, out := setup(t)
	class := testutil.CreateClass(t, repo, "5A")
	testutil.CreateRoster(t, repo, class.ID, 6)
	require.NoError(t, cli.run([]string{"admin", "groups", "generate", "-class", class.ID, "-size", "3"}))
	out.Reset()

	tests := []cliTest{
		{name: "no class", args: []string{"groups", "clear"}, wantErr: apps.NewArgumentError("class", "is required")},
		{name: "class not found", args: []string{"groups", "clear", "-class", "nope"}, wantErr: classroom.ErrNotFound},
		{name: "clear", args: []string{"groups", "clear", "-class", class.ID}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Contains(t, out.String(), "deleted 2 group(s)\n")
}
