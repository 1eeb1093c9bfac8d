package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/tidalhook/shelfctl/internal/catalog"
	"github.com/tidalhook/shelfctl/internal/engine"
	"github.com/tidalhook/shelfctl/internal/formatter"
	"github.com/tidalhook/shelfctl/internal/shared"
)

// policyFromFlags builds the run policy from config defaults overridden by flags.
func (r *Runner) policyFromFlags(cmd *cli.Command) (engine.Policy, error) {
	desired, err := engine.ParseDesired(cmd.String("desired"))
	if err != nil {
		return engine.Policy{}, err
	}

	var categories []catalog.Category
	for _, label := range cmd.StringSlice("category") {
		c := catalog.ParseCategory(label)
		if c == catalog.CategoryUnknown {
			return engine.Policy{}, fmt.Errorf("%w: unknown category %q", shared.ErrInvalidFlag, label)
		}
		categories = append(categories, c)
	}

	rc := r.config.Run
	policy := engine.Policy{
		Desired:        desired,
		Categories:     categories,
		Include:        cmd.StringSlice("include"),
		Exclude:        cmd.StringSlice("exclude"),
		CaseSensitive:  cmd.Bool("case-sensitive"),
		DryRun:         cmd.Bool("dry-run"),
		Concurrency:    rc.Concurrency,
		MaxRetries:     rc.MaxRetries,
		RateLimit:      rc.RateLimit,
		ActuateDelay:   time.Duration(rc.ActuateDelayMs) * time.Millisecond,
		PageDelay:      time.Duration(rc.PageDelayMs) * time.Millisecond,
		BackoffBase:    time.Duration(rc.BackoffBaseMs) * time.Millisecond,
		VerifyTimeout:  time.Duration(rc.VerifyTimeoutMs) * time.Millisecond,
		VerifyInterval: time.Duration(rc.VerifyIntervalMs) * time.Millisecond,
		LoadTimeout:    time.Duration(rc.LoadTimeoutMs) * time.Millisecond,
		PollInterval:   time.Duration(rc.PollIntervalMs) * time.Millisecond,
	}

	if cmd.IsSet("concurrency") {
		policy.Concurrency = int(cmd.Int("concurrency"))
	}
	if cmd.IsSet("max-retries") {
		policy.MaxRetries = int(cmd.Int("max-retries"))
	}

	if err := policy.Validate(); err != nil {
		return engine.Policy{}, err
	}
	return policy, nil
}

// resolveActuator returns the configured actuator, probing the shelf's
// capabilities when none was selected up front.
func (r *Runner) resolveActuator(ctx context.Context) (catalog.Actuator, error) {
	if r.actuator != nil {
		return r.actuator, nil
	}

	r.logger.Debug("probing shelf actuation capabilities")
	actuator, err := catalog.ProbeActuator(ctx, r.config.Shelf.BaseURL, r.sessionHeaders(), r.httpClient)
	if err != nil {
		return nil, err
	}
	r.actuator = actuator
	return actuator, nil
}

// sessionHeaders loads the captured browser session, if one is configured.
func (r *Runner) sessionHeaders() *shared.SessionHeaders {
	if r.config.Shelf.HeadersPath == "" {
		return nil
	}
	session, err := shared.ParseSessionFile(r.config.Shelf.HeadersPath)
	if err != nil {
		r.logger.Warn("failed to load session headers", "path", r.config.Shelf.HeadersPath, "error", err)
		return nil
	}
	return session
}

// Run reconciles every visible shelf item toward the desired state.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	return r.reconcile(ctx, cmd, false)
}

// Scan previews a run: discovery and filtering only, no actuation.
func (r *Runner) Scan(ctx context.Context, cmd *cli.Command) error {
	return r.reconcile(ctx, cmd, true)
}

func (r *Runner) reconcile(ctx context.Context, cmd *cli.Command, forceDry bool) error {
	if cmd.IsSet("config") {
		config, err := shared.LoadConfig(cmd.String("config"))
		if err != nil {
			return err
		}
		r.config = config
	}

	policy, err := r.policyFromFlags(cmd)
	if err != nil {
		return err
	}
	if forceDry {
		policy.DryRun = true
	}

	quiet := cmd.Bool("quiet")
	switch {
	case quiet:
		shared.SetLogLevel(r.logger, log.ErrorLevel)
	case cmd.Bool("verbose"):
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	actuator := r.actuator
	if !policy.DryRun {
		if actuator, err = r.resolveActuator(ctx); err != nil {
			return err
		}
	}
	if actuator == nil {
		// Dry runs never actuate; a probe-less placeholder keeps wiring uniform.
		actuator = noopActuator{}
	}

	rec := engine.NewReconciler(r.source, actuator, policy, r.logger)

	// A cancelled context (SIGINT via cli) becomes a cooperative stop. The
	// watcher exits once the run finishes on its own.
	runDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			rec.Controller().Stop()
		case <-runDone:
		}
	}()

	progressCh := make(chan engine.ProgressUpdate, 100)
	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		for update := range progressCh {
			if quiet {
				continue
			}
			switch update.Phase {
			case engine.ScanPage:
				r.writePlain("%s\n", update.Message)
			case engine.PageDone:
				r.writePlain("%s\n", formatter.PageLine(update.Page, update.Delta))
			case engine.DryRunNotice:
				r.writePlain("  %s\n", update.Message)
			case engine.ItemToggled, engine.ItemSkipped, engine.ItemFailed:
				r.writePlain("  %s\n", update.Message)
			case engine.WaitTimeout, engine.StragglerPass:
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	result, err := rec.Run(ctx, progressCh)
	close(runDone)
	close(progressCh)
	<-renderDone

	if err != nil {
		return err
	}

	if j, jerr := r.openJournal(); jerr != nil {
		r.logger.Warn("run not journaled", "error", jerr)
	} else if jerr := j.Record(result); jerr != nil {
		r.logger.Warn("run not journaled", "error", jerr)
	}

	if cmd.String("format") == "json" {
		data, err := formatter.SummaryJSON(result)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", data)
	}
	return r.writePlain("\n%s", formatter.SummaryText(result))
}

// noopActuator backs dry runs, which must never reach an actuation channel.
type noopActuator struct{}

func (noopActuator) Actuate(ctx context.Context, item catalog.Item, enable bool) error {
	return &catalog.PermanentError{Reason: "dry run"}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "desired",
			Aliases:  []string{"d"},
			Usage:    "Target state: enable or disable",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:    "category",
			Aliases: []string{"t"},
			Usage:   "Restrict to categories (APP, EBOOK, VIDEO, AUDIBLE, SKILL); repeatable",
		},
		&cli.StringSliceFlag{
			Name:  "include",
			Usage: "Only process items whose title contains a keyword; repeatable",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "Skip items whose title contains a keyword; repeatable",
		},
		&cli.BoolFlag{
			Name:  "case-sensitive",
			Usage: "Match keywords case-sensitively",
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Aliases: []string{"n"},
			Usage:   "In-flight actuations per batch",
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Retry ceiling for transient failures",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Simulate and count without actuating",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Summary format: text or json",
			Value: "text",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log every failure, retry, and skip",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Show only the final summary",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
	}
}

// runCommand reconciles the shelf toward the desired state.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Drive all visible shelf items to the desired state",
		Flags:  runFlags(),
		Action: r.Run,
	}
}

// scanCommand previews which items a run would touch.
func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "scan",
		Usage:  "List the items a run would toggle, without actuating",
		Flags:  runFlags(),
		Action: r.Scan,
	}
}
