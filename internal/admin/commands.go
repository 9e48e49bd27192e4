// Package admin implements the blogctl maintenance commands: account
// creation, authenticator enrolment, media sweeps and schema migration.
package admin

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/flagx"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
)

type Accounts interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Verify(ctx context.Context, email, password string) (*models.User, error)
	BeginTOTPSetup(ctx context.Context, userID string) (*services.TOTPSetup, error)
	EnableTOTP(ctx context.Context, userID, secret, code string) error
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*services.SweepResult, error)
}

type Migrator interface {
	Migrate(ctx context.Context) error
}

// ErrUnknownCommand is returned for a command name Run does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Usage lists the commands.
const Usage = `usage: blogctl <command> [flags]

commands:
  create-user          create an account (prompts for email and password)
  totp-setup -o FILE   enrol an authenticator app, writing the QR code PNG to FILE
  sweep                purge orphaned and expired media now
  migrate              apply pending database migrations
`

type App struct {
	accounts Accounts
	sweeper  Sweeper
	migrator Migrator
	in       *bufio.Reader
	out      io.Writer
	nowFn    func() time.Time
}

func New(accounts Accounts, sweeper Sweeper, migrator Migrator, in io.Reader, out io.Writer) *App {
	return &App{
		accounts: accounts,
		sweeper:  sweeper,
		migrator: migrator,
		in:       bufio.NewReader(in),
		out:      out,
		nowFn:    time.Now,
	}
}

// Run executes command with its args.
func (a *App) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "create-user":
		return a.createUser(ctx)
	case "totp-setup":
		return a.totpSetup(ctx, args)
	case "sweep":
		return a.sweep(ctx)
	case "migrate":
		if err := a.migrator.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Migrations applied.")
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func (a *App) credentials() (string, string, error) {
	email, err := GetSimpleText(a.in, "Enter email", a.out)
	if err != nil {
		return "", "", err
	}
	password, err := GetPassword(a.out, "Enter password")
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

func (a *App) createUser(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}

	u, err := a.accounts.Register(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created user %s (%s)\n", u.Email, u.ID)
	return nil
}

// totpSetup signs the user in with their password, writes the provisioning
// QR code and enables the second factor once a current code is entered.
func (a *App) totpSetup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("totp-setup", flag.ContinueOnError)
	fs.SetOutput(a.out)
	qrPath := fs.String("o", "totp.png", "where to write the QR code PNG")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-o"})); err != nil {
		return err
	}

	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	u, err := a.accounts.Verify(ctx, email, password)
	if err != nil {
		return err
	}

	setup, err := a.accounts.BeginTOTPSetup(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*qrPath, setup.QRPNG, 0o600); err != nil {
		return fmt.Errorf("error writing qr code: %w", err)
	}
	fmt.Fprintf(a.out, "Scan %s, or enter the secret %s in your authenticator app.\n", *qrPath, setup.Secret)

	code, err := GetSimpleText(a.in, "Enter the 6-digit code shown by the app", a.out)
	if err != nil {
		return err
	}
	if err := a.accounts.EnableTOTP(ctx, u.ID, setup.Secret, code); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Two-factor authentication enabled.")
	return nil
}

func (a *App) sweep(ctx context.Context) error {
	res, err := a.sweeper.Sweep(ctx, a.nowFn())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %d, skipped %d, failed %d\n", res.Deleted, res.Skipped, res.Failed)
	return res.Err
}
