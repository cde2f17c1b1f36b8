package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mineops/walletback/internal/backup"
	"github.com/mineops/walletback/internal/config"
	"github.com/mineops/walletback/internal/history"
	"github.com/mineops/walletback/internal/logging"
	"github.com/mineops/walletback/internal/ssh"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	return runWith(args, nil)
}

// runWith is run with an orchestrator option seam; tests use it to swap
// the dialer out for an in-memory one.
func runWith(args []string, opts []backup.Option) int {
	flags := flag.NewFlagSet("walletback", flag.ExitOnError)
	configPath := flags.String("config", "", "config file location (YAML or JSON)")
	username := flags.String("username", "", "remote server username, applied to all hosts")
	password := flags.String("password", "", "remote server password")
	keyPath := flags.String("key", "", "path to an SSH private key file")
	schedule := flags.String("schedule", "", "cron expression; run on a schedule instead of once")
	list := flags.Bool("list", false, "list remote backups per host and exit")
	showHistory := flags.Int("history", 0, "show the N most recent recorded runs and exit")
	flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "walletback: %v\n", err)
		return 2
	}

	logger := logging.Init(cfg.Logging)
	defer logging.Close()

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "walletback: %v\n", err)
			return 2
		}
		defer store.Close()
	}

	if *showHistory > 0 {
		return printHistory(store, *showHistory)
	}

	cred := ssh.Credential{
		Password:      *password,
		KeyPath:       config.ExpandHome(*keyPath),
		KeyPassphrase: os.Getenv("WALLETBACK_KEY_PASSPHRASE"),
	}

	orch, err := backup.New(cfg, *username, cred, logger, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "walletback: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *list {
		return printListings(orch.ListRemote(ctx))
	}

	record := func(report *backup.Report) {
		if store == nil {
			return
		}
		if err := store.RecordRun(report); err != nil {
			logger.Error("history_record_failed", "run_id", report.RunID, "error", err)
		}
	}

	if *schedule != "" {
		runner := &backup.ScheduleRunner{
			Orchestrator: orch,
			Spec:         *schedule,
			Logger:       logger,
			OnReport: func(report *backup.Report) {
				record(report)
				printSummary(report)
			},
		}
		if err := runner.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "walletback: %v\n", err)
			return 2
		}
		return 0
	}

	report := orch.Run(ctx)
	record(report)
	printSummary(report)

	if !report.Succeeded() {
		return 1
	}
	return 0
}

func printSummary(report *backup.Report) {
	fmt.Printf("run %s:\n", report.RunID)
	results := report.Results
	if report.Mirror != nil {
		results = append(append([]backup.HostResult{}, results...), *report.Mirror)
	}

	for _, result := range results {
		if result.Succeeded {
			fmt.Printf("  %-24s ok     (%s)\n", result.Host, result.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Printf("  %-24s FAILED %v\n", result.Host, result.Err)
	}
}

func printListings(listings []backup.HostListing) int {
	code := 0
	for _, listing := range listings {
		if listing.Err != nil {
			fmt.Printf("%s: error: %v\n", listing.Host, listing.Err)
			code = 1
			continue
		}

		fmt.Printf("%s: %d backup(s)\n", listing.Host, len(listing.Files))
		for _, file := range listing.Files {
			fmt.Printf("  %-48s %12d  %s\n",
				file.Filename, file.SizeBytes, time.Unix(file.CreatedAt, 0).Format(time.RFC3339))
		}
	}
	return code
}

func printHistory(store *history.Store, limit int) int {
	if store == nil {
		fmt.Fprintln(os.Stderr, "walletback: history_db is not configured")
		return 2
	}

	runs, err := store.ListRuns(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "walletback: %v\n", err)
		return 2
	}

	for _, run := range runs {
		status := "ok"
		if !run.Succeeded {
			status = "FAILED"
		}
		fmt.Printf("%s  %s  %-6s %s (%d bytes)\n",
			run.ID, time.Unix(run.StartedAt, 0).Format(time.RFC3339), status, run.Archive, run.ArchiveBytes)

		outcomes, err := store.RunResults(run.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "walletback: %v\n", err)
			return 2
		}
		for _, outcome := range outcomes {
			if outcome.Succeeded {
				fmt.Printf("  %-24s ok\n", outcome.Host)
			} else {
				fmt.Printf("  %-24s FAILED %s\n", outcome.Host, outcome.Error)
			}
		}
	}

	return 0
}
