package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"

	"kompetisi/internal/access"
	"kompetisi/internal/auth"
	"kompetisi/internal/competition"
	"kompetisi/internal/config"
	"kompetisi/internal/store"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db    *sqlx.DB
	comps *competition.Service
	cfg   config.App
	out   io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate                                   - create tables and indexes")
	fmt.Fprintln(cli.out, "  token -sub ID -role ROLE [-ttl DURATION]  - issue an access token")
	fmt.Fprintln(cli.out, "  reconcile                                 - recompute participant counters")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenSub := tokenCmd.String("sub", "", "The user id the token is issued for.")
	tokenRole := tokenCmd.String("role", "", "One of admin, instructor, student.")
	tokenTTL := tokenCmd.Duration("ttl", cli.cfg.AccessTTL, "Token lifetime.")

	switch args[1] {
	case "migrate":
		if err := store.Migrate(ctx, cli.db); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "migrations applied")
		return nil
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		role := access.ParseRole(*tokenRole)
		if *tokenSub == "" || role == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*tokenSub, role, *tokenTTL)
	case "reconcile":
		n, err := cli.comps.ReconcileParticipants(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d competition(s) corrected\n", n)
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) issueToken(sub string, role access.Role, ttl time.Duration) error {
	tok, err := auth.Issue(sub, role, cli.cfg.JWTIssuer, cli.cfg.JWTSigningKey, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, tok.AccessToken)
	return nil
}
