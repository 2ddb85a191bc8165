package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/odyssey-erp/stockledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/recorder"
	"github.com/odyssey-erp/stockledger/jobs"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  migrate                                   apply the embedded schema
  seed-chart    -tenant N                   create the standard chart of accounts
  trial-balance -tenant N [-as-of DATE]     print the trial balance (exit 10 when unbalanced)
  balance       -tenant N -account REF      print one account balance
  stock         -tenant N [-item N]         print remaining stock split by GST backing
  record        -tenant N -event NAME [-file PATH]
                                            record one business event read as JSON (stdin by default)
  jobs trigger  integrity|reconcile [-tenants 1,2] [-as-of DATE]
  jobs stats                                print the job queue state
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping ledgerctl")
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	cmd, rest := args[0], args[1:]
	if cmd == "jobs" {
		return runJobs(ctx, cfg, rest, stdout, stderr)
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenant := fs.Int64("tenant", 0, "tenant id")
	actor := fs.Int64("actor", 0, "acting user id recorded in the audit trail")
	asOf := fs.String("as-of", "", "cut-off date YYYY-MM-DD (default: everything)")
	account := fs.String("account", "", "account code or id")
	item := fs.Int64("item", 0, "item id (default: every item)")
	event := fs.String("event", "", "event name: "+strings.Join(cli.Events(), ", "))
	file := fs.String("file", "-", "event JSON file, - for stdin")
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	date, err := cli.ParseDate(*asOf)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 2
	}
	out := cli.Output{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr}

	pool, err := db.NewPool(ctx, cfg.PGDSN, db.WithMaxConns(4))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "connect database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if cmd == "migrate" {
		if err := db.Migrate(ctx, pool); err != nil {
			_, _ = fmt.Fprintf(stderr, "migrate: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, "schema up to date")
		return 0
	}

	var opts []recorder.Option
	if cmd == "record" {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("stock locker disabled", slog.Any("error", err))
		} else {
			defer redisClient.Close()
			lockCfg := cache.DefaultLockerConfig()
			lockCfg.TTL = cfg.StockLockTTL
			opts = append(opts, recorder.WithLocker(cache.NewStockLocker(redisClient, lockCfg, logger)))
		}
	}
	ledgerCLI := cli.NewLedgerCLI(app.NewServices(cfg, app.PostgresStores(pool), logger, opts...))

	switch cmd {
	case "seed-chart":
		return ledgerCLI.SeedChartCommand(ctx, *tenant, out)
	case "trial-balance":
		return ledgerCLI.TrialBalanceCommand(ctx, cli.TrialBalanceOptions{TenantID: *tenant, AsOf: date, Output: out})
	case "balance":
		return ledgerCLI.BalanceCommand(ctx, cli.BalanceOptions{TenantID: *tenant, Account: *account, AsOf: date, Output: out})
	case "stock":
		return ledgerCLI.StockCommand(ctx, cli.StockOptions{TenantID: *tenant, ItemID: *item, Output: out})
	case "record":
		input := stdin
		if *file != "-" {
			f, err := os.Open(*file)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "record: %v\n", err)
				return 1
			}
			defer f.Close()
			input = f
		}
		return ledgerCLI.RecordCommand(ctx, cli.RecordOptions{TenantID: *tenant, ActorID: *actor, Event: *event, Input: input, Output: out})
	}
	_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
	return 2
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	sub, rest := args[0], args[1:]
	var name string
	if sub == "trigger" {
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: job name required")
			return 2
		}
		name, rest = rest[0], rest[1:]
	}

	fs := flag.NewFlagSet("jobs "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenants := fs.String("tenants", "", "comma separated tenant ids (default: every tenant)")
	asOf := fs.String("as-of", "", "cut-off date YYYY-MM-DD (default: run time)")
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	out := cli.Output{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr}

	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	switch sub {
	case "trigger":
		ids, err := parseTenants(*tenants)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 2
		}
		date, err := cli.ParseDate(*asOf)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 2
		}
		return jobsCLI.TriggerCommand(ctx, name, jobs.CheckPayload{TenantIDs: ids, AsOf: date}, out)
	case "stats":
		return jobsCLI.StatsCommand(out)
	}
	_, _ = fmt.Fprintf(stderr, "unknown jobs command %q\n", sub)
	return 2
}

func parseTenants(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid tenant %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
