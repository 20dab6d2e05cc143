package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wolfman30/museumbook/internal/session"
)

const passwordEnv = "MUSEUMBOOK_PASSWORD"

func loginCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("login")
	email := flagSet.String("email", "", "account email")
	password := flagSet.String("password", "", "account password (or $"+passwordEnv+", or read from stdin)")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("login: --email is required")
	}
	pw, err := a.password(*password)
	if err != nil {
		return err
	}

	rt, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	user, err := rt.Session.Login(ctx, strings.TrimSpace(*email), pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Signed in as %s (%s)\n", user.Email, user.Role)
	return nil
}

func logoutCmd(ctx context.Context, a *app, args []string) error {
	if ok, err := parseFlags(a.newFlagSet("logout"), args); !ok {
		return err
	}
	// The stored token is removed without contacting the API.
	if err := session.NewFileStore(a.cfg.TokenFile).Delete(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Fprintln(a.stdout, "Signed out")
	return nil
}

func whoamiCmd(ctx context.Context, a *app, args []string) error {
	if ok, err := parseFlags(a.newFlagSet("whoami"), args); !ok {
		return err
	}
	rt, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	user := rt.Session.User()
	if user == nil {
		return session.ErrNotSignedIn
	}
	fmt.Fprintf(a.stdout, "Email: %s\nRole:  %s\nID:    %s\n", user.Email, user.Role, user.Identifier())
	return nil
}

func registerCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("register")
	email := flagSet.String("email", "", "account email")
	password := flagSet.String("password", "", "account password (or $"+passwordEnv+", or read from stdin)")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("register: --email is required")
	}
	pw, err := a.password(*password)
	if err != nil {
		return err
	}

	rt, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	if _, err := rt.API.Register(ctx, strings.TrimSpace(*email), pw); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Registered %s, run `museumbook login --email %s` to sign in\n", *email, *email)
	return nil
}

// password resolves the flag value, then the environment, then one line of stdin.
func (a *app) password(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(passwordEnv); v != "" {
		return v, nil
	}
	fmt.Fprint(a.stderr, "Password: ")
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("password is required")
	}
	return line, nil
}
