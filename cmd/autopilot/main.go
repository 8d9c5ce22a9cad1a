// Command autopilot runs one-shot operations against the configured storage:
// a cloud sync, a single poll tick, a single deployment, or kv migrations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/app"
	"github.com/teknowguy/autopilot-backend/internal/config"
	"github.com/teknowguy/autopilot-backend/internal/log"
	"github.com/teknowguy/autopilot-backend/pkg/kv/postgres"
)

const usage = `Usage: autopilot [-timeout 2m] COMMAND

Commands:
  sync               merge the cloud repository into local storage
  tick               deploy every post that is due now
  deploy POST_ID     deploy one post
  migrate up|down|status
`

var (
	flags   = flag.NewFlagSet("autopilot", flag.ExitOnError)
	timeout = flags.Duration("timeout", 2*time.Minute, "overall deadline for the command")
)

func main() {
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flags.Parse(os.Args[1:])
	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, args); err != nil {
		logger.Errorw("Command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger, args []string) error {
	if args[0] == "migrate" {
		if len(args) < 2 {
			return fmt.Errorf("migrate needs one of up, down, status")
		}
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("TKG_STORAGE_POSTGRES_DSN is required for migrations")
		}
		return postgres.Migrate(cfg.Storage.PostgresDSN, args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "sync":
		posts, err := a.Reconciler.Sync(ctx)
		if err != nil {
			return err
		}
		logger.Infow("Cloud sync complete", "posts", len(posts))
		return nil

	case "tick":
		report := a.Poller.Tick(ctx)
		return printJSON(report)

	case "deploy":
		if len(args) < 2 {
			return fmt.Errorf("deploy needs a post id")
		}
		post, ok := a.Store.Find(args[1])
		if !ok {
			return fmt.Errorf("post %s not found", args[1])
		}
		deployed, err := a.Sequencer.Deploy(ctx, post)
		if err != nil {
			return err
		}
		return printJSON(deployed)

	default:
		flags.Usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
