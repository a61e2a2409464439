package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dernekportal/portal-api/internal/adapters/authroles"
	redisadapter "github.com/dernekportal/portal-api/internal/adapters/redis"
	"github.com/dernekportal/portal-api/internal/data"
	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
)

type createUserOptions struct {
	Name     string
	Email    string
	Password string
	Role     string
	Labels   []string
}

// request builds the create request. An explicit -role wins; otherwise the role is
// derived from -labels the same way SSO logins derive it from groups.
func (o createUserOptions) request() (domainauth.CreateUserRequest, error) {
	req := domainauth.CreateUserRequest{
		Name:     o.Name,
		Email:    o.Email,
		Password: o.Password,
		Labels:   o.Labels,
	}
	switch {
	case o.Role != "":
		role, ok := domainauth.ParseRole(o.Role)
		if !ok {
			return domainauth.CreateUserRequest{}, fmt.Errorf("unknown role %q", o.Role)
		}
		req.Role = role
	case len(o.Labels) > 0:
		req.Role = authroles.LabelRoleMapper{}.Map(o.Labels)
	}
	return req, nil
}

func parseCreateUserFlags(args []string, stdin io.Reader) (createUserOptions, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts   createUserOptions
		labels string
	)
	fs.StringVar(&opts.Name, "name", "", "Display name")
	fs.StringVar(&opts.Email, "email", "", "Login email (required)")
	fs.StringVar(&opts.Password, "password", "", "Password; read from stdin when omitted")
	fs.StringVar(&opts.Role, "role", "", "Role name, e.g. ADMIN or member")
	fs.StringVar(&labels, "labels", "", "Comma-separated labels; picks the role when -role is empty")

	if err := fs.Parse(args); err != nil {
		return createUserOptions{}, err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return createUserOptions{}, errors.New("--email is required")
	}
	opts.Labels = splitList(labels)

	if opts.Password == "" {
		pw, err := readLine(stdin)
		if err != nil {
			return createUserOptions{}, fmt.Errorf("read password from stdin: %w", err)
		}
		opts.Password = pw
	}
	return opts, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runCreateUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateUserFlags(args, cmdCtx.Stdin)
	if err != nil {
		return err
	}
	req, err := opts.request()
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		user, createErr := newUserService(cmdCtx, db).Create(ctx, req)
		if createErr != nil {
			return fmt.Errorf("create user: %w", createErr)
		}
		return writef(cmdCtx.Stdout, "created %s (%s) role=%s\n", user.Email, user.ID, user.Role)
	})
}

type listUsersOptions struct {
	Role   string
	Search string
	Limit  int
}

func parseListUsersFlags(args []string) (domainauth.ListUsersOptions, error) {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var raw listUsersOptions
	fs.StringVar(&raw.Role, "role", "", "Only list accounts with this role")
	fs.StringVar(&raw.Search, "search", "", "Match name or email")
	fs.IntVar(&raw.Limit, "limit", 50, "Maximum rows to print")

	if err := fs.Parse(args); err != nil {
		return domainauth.ListUsersOptions{}, err
	}

	opts := domainauth.ListUsersOptions{Limit: raw.Limit, Search: strings.TrimSpace(raw.Search)}
	if raw.Role != "" {
		role, ok := domainauth.ParseRole(raw.Role)
		if !ok {
			return domainauth.ListUsersOptions{}, fmt.Errorf("unknown role %q", raw.Role)
		}
		opts.Role = &role
	}
	return opts, nil
}

func runListUsers(cmdCtx *commandContext, args []string) error {
	opts, err := parseListUsersFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		users, listErr := newUserService(cmdCtx, db).List(ctx, opts)
		if listErr != nil {
			return fmt.Errorf("list users: %w", listErr)
		}
		return renderUsers(cmdCtx.Stdout, users)
	})
}

func renderUsers(w io.Writer, users []domainauth.User) error {
	if len(users) == 0 {
		return writeln(w, "(no users found)")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "EMAIL\tNAME\tROLE\tACTIVE\tLAST LOGIN\n"); err != nil {
		return err
	}
	for _, u := range users {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\t%s\t%t\t%s\n", u.Email, u.Name, u.Role, u.IsActive, lastLogin); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runRevokeSessions(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("revoke-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	email := fs.String("email", "", "Account email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, redisClient, err := connectInfra(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeInfra(db, redisClient); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()
	if redisClient == nil {
		return errors.New("redis is not configured; sessions live in redis")
	}

	user, err := data.NewUserRepo(db).GetUserByEmail(ctx, domainauth.NormalizeEmail(*email))
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	store := redisadapter.NewSessionStoreWithPrefix(redisClient, cmdCtx.Config.Auth.SessionKeyPrefix)
	n, err := store.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return writef(cmdCtx.Stdout, "revoked %d session(s) for %s\n", n, user.Email)
}
