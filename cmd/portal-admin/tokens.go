package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dernekportal/portal-api/internal/service"
)

const defaultMonitorTokenTTL = time.Hour

type monitorTokenOptions struct {
	Subject string
	TTL     time.Duration
}

func parseMonitorTokenFlags(args []string) (monitorTokenOptions, error) {
	fs := flag.NewFlagSet("issue-monitor-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := monitorTokenOptions{}
	fs.StringVar(&opts.Subject, "subject", "", "Operator the token is issued to (required)")
	fs.DurationVar(&opts.TTL, "ttl", defaultMonitorTokenTTL, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return monitorTokenOptions{}, err
	}
	if strings.TrimSpace(opts.Subject) == "" {
		return monitorTokenOptions{}, errors.New("--subject is required")
	}
	if opts.TTL <= 0 {
		return monitorTokenOptions{}, errors.New("--ttl must be greater than zero")
	}
	return opts, nil
}

func runIssueMonitorToken(cmdCtx *commandContext, args []string) error {
	opts, err := parseMonitorTokenFlags(args)
	if err != nil {
		return err
	}

	tokens := service.NewMonitorTokens(cmdCtx.Config.Monitoring.TokenSecret)
	if !tokens.Enabled() {
		return errors.New("MONITORING_TOKEN_SECRET is not set")
	}

	token, err := tokens.Issue(opts.Subject, []string{service.ScopeMonitoringReset}, opts.TTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	cmdCtx.Logger.Info("monitor token issued", "subject", opts.Subject, "ttl", opts.TTL)
	return writeln(cmdCtx.Stdout, token)
}

func runHashPassword(cmdCtx *commandContext, _ []string) error {
	pw, err := readLine(cmdCtx.Stdin)
	if err != nil {
		return fmt.Errorf("read password from stdin: %w", err)
	}
	if pw == "" {
		return errors.New("password is empty")
	}
	hash, err := service.HashPassword(pw)
	if err != nil {
		return err
	}
	return writeln(cmdCtx.Stdout, hash)
}
