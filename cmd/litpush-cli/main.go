// litpush-cli runs one-shot maintenance operations: migrate and evict work on
// the configured database; run <subscription-id> asks the running server to
// queue a run, or runs in process with -offline while the server is down.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/vrsandeep/litpush/internal/config"
	"github.com/vrsandeep/litpush/internal/core"
	"github.com/vrsandeep/litpush/internal/logging"
	"github.com/vrsandeep/litpush/internal/models"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <command> [args]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  migrate           apply database migrations")
	fmt.Fprintln(os.Stderr, "  run <sub-id>      queue an immediate run on the server")
	fmt.Fprintln(os.Stderr, "  evict             run one retention pass")
	fmt.Fprintln(os.Stderr, "\nflags:")
	flag.PrintDefaults()
}

var (
	serverURL = flag.String("server", "", "base URL of the running server (default http://localhost:<port>)")
	offline   = flag.Bool("offline", false, "run in this process; only while the server is stopped")
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	if flag.Arg(0) == "run" && !*offline {
		base := *serverURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d", cfg.Port)
		}
		if err := runRemote(ctx, base, flag.Args()); err != nil {
			logger.Error("command failed", "command", "run", "server", base, "error", err)
			os.Exit(1)
		}
		return
	}

	// core.New applies migrations, so migrate only has to open the app.
	app, err := core.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, app, flag.Args()); err != nil {
		logger.Error("command failed", "command", flag.Arg(0), "error", err)
		app.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, app *core.App, args []string) error {
	switch args[0] {
	case "migrate":
		fmt.Println("Migrations applied successfully.")
		return nil

	case "run":
		id, err := subscriptionArg(args)
		if err != nil {
			return err
		}
		// The job row written by the re-arm is picked up by the next server start.
		outcome := app.Scheduler().OnJobFired(ctx, models.ScheduledJob{
			Key:            fmt.Sprintf("cli:%d", id),
			SubscriptionID: id,
			Priority:       models.PriorityImmediate,
		})
		fmt.Printf("status=%s new_articles=%d delivered=%t\n", outcome.Status, outcome.NewArticles, outcome.Delivered)
		if outcome.NextRunAt != nil {
			fmt.Printf("next run at %s\n", outcome.NextRunAt.Format("2006-01-02 15:04 MST"))
		}
		if outcome.Status == models.JobFailed {
			return fmt.Errorf("run failed: %s", outcome.Error)
		}
		return nil

	case "evict":
		removed, err := app.Evictor().Evict(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Evicted %d articles.\n", removed)
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runRemote(ctx context.Context, baseURL string, args []string) error {
	id, err := subscriptionArg(args)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	key, err := triggerRun(ctx, client, baseURL, id)
	if err != nil {
		return err
	}
	fmt.Printf("Run queued as %s; see GET /api/jobs/runs for the outcome.\n", key)
	return nil
}

func subscriptionArg(args []string) (int64, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("run needs a subscription id")
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subscription id %q: %w", args[1], err)
	}
	return id, nil
}
