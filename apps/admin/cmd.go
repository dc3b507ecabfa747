package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/apps"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
	appfs "github.com/fredmonaquezi/teacher-assistant-web-sub001/fs"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/storage/database"
)

var (
	migrateFunc = database.Migrate // mockable

	errHelp = errors.New("help provided")
)

type groupService interface {
	GenerateGroups(ctx context.Context, req classroom.GenerateRequest) (classroom.GenerateResult, error)
	ClearGroups(ctx context.Context, classID string) (int, error)
}

type commandLine struct {
	db       *sql.DB
	groupSvc groupService
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) against the database")
	fmt.Fprintln(cli.out, "  groups generate -class ID -size N [-prefix P] [-clear] [-gender] [-ability] [-support] [-no-separations] - generate groups for a class")
	fmt.Fprintln(cli.out, "  groups clear -class ID - delete every group of a class")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "groups":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.runGroups(args[2], args[3:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) runGroups(command string, args []string) error {
	generateCmd := flag.NewFlagSet("groups generate", flag.ContinueOnError)
	generateCmd.SetOutput(cli.out)
	genClass := generateCmd.String("class", "", "The class ID.")
	genSize := generateCmd.Int("size", 0, "The target group size (2 or more).")
	genPrefix := generateCmd.String("prefix", "", "The group name prefix.")
	genClear := generateCmd.Bool("clear", false, "Delete the class's existing groups first.")
	genGender := generateCmd.Bool("gender", false, "Spread genders across groups.")
	genAbility := generateCmd.Bool("ability", false, "Spread ability bands across groups.")
	genSupport := generateCmd.Bool("support", false, "Pair students needing help with strong partners.")
	genNoSeparations := generateCmd.Bool("no-separations", false, "Ignore separation constraints.")

	clearCmd := flag.NewFlagSet("groups clear", flag.ContinueOnError)
	clearCmd.SetOutput(cli.out)
	clearClass := clearCmd.String("class", "", "The class ID.")

	switch command {
	case "generate":
		if err := generateCmd.Parse(args); err != nil {
			return flagError(err)
		}
		if strings.TrimSpace(*genClass) == "" {
			generateCmd.Usage()
			return apps.NewArgumentError("class", "is required")
		}
		respect := !*genNoSeparations
		return cli.generate(classroom.GenerateRequest{
			ClassID:             *genClass,
			Size:                *genSize,
			Prefix:              *genPrefix,
			ClearExisting:       *genClear,
			BalanceGender:       *genGender,
			BalanceAbility:      *genAbility,
			PairSupportPartners: *genSupport,
			RespectSeparations:  &respect,
		})
	case "clear":
		if err := clearCmd.Parse(args); err != nil {
			return flagError(err)
		}
		if strings.TrimSpace(*clearClass) == "" {
			clearCmd.Usage()
			return apps.NewArgumentError("class", "is required")
		}
		return cli.clear(*clearClass)
	default:
		cli.printUsage()
		return errHelp
	}
}

func flagError(err error) error {
	if err == flag.ErrHelp {
		return errHelp
	}
	return err
}

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(cli.db, appfs.FS, args[0], args[1:]...)
}

func (cli *commandLine) generate(req classroom.GenerateRequest) error {
	res, err := cli.groupSvc.GenerateGroups(context.Background(), req)
	if err != nil {
		return err
	}
	for _, g := range res.Groups {
		names := make([]string, 0, len(g.Members))
		for _, s := range g.Members {
			names = append(names, strings.TrimSpace(s.FirstName+" "+s.LastName))
		}
		fmt.Fprintf(cli.out, "%s: %s\n", g.Name, strings.Join(names, ", "))
	}
	if len(res.Unplaced) > 0 {
		fmt.Fprintf(cli.out, "unplaced: %d\n", len(res.Unplaced))
	}
	return nil
}

func (cli *commandLine) clear(classID string) error {
	n, err := cli.groupSvc.ClearGroups(context.Background(), classID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted %d group(s)\n", n)
	return nil
}
