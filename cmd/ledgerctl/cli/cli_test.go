package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
	"github.com/odyssey-erp/stockledger/jobs"
)

const purchaseJSON = `{
  "Source": {"Type": "purchase_bill", "ID": "1"},
  "Date": "2024-01-10T00:00:00Z",
  "VendorRef": "V-7",
  "PurchasedWithGST": true,
  "Settlement": "credit",
  "Lines": [{"ItemID": 1, "SiteID": 1, "Quantity": "100", "UnitCost": "50", "GSTRate": "18"}]
}`

func newLedgerCLI(t *testing.T) *cli.LedgerCLI {
	t.Helper()
	store := memory.New()
	services := app.NewServices(&app.Config{}, app.Stores{
		Accounts: store.Accounts(),
		Ledger:   store.Ledger(),
		Batches:  store.Batches(),
		Costs:    store.Costs(),
		Recorder: store.Recorder(),
		Audit:    store,
	}, nil)
	return cli.NewLedgerCLI(services)
}

func buffers() (*bytes.Buffer, *bytes.Buffer, cli.Output) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	return stdout, stderr, cli.Output{JSONOutput: true, Stdout: stdout, Stderr: stderr}
}

func TestRecordPurchaseThenReport(t *testing.T) {
	ctx := context.Background()
	c := newLedgerCLI(t)

	stdout, stderr, out := buffers()
	require.Equal(t, 0, c.SeedChartCommand(ctx, 1, out), stderr.String())
	var seeded []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &seeded))
	require.Len(t, seeded, 12)

	stdout, stderr, out = buffers()
	code := c.RecordCommand(ctx, cli.RecordOptions{TenantID: 1, Event: "purchase", Input: strings.NewReader(purchaseJSON), Output: out})
	require.Equal(t, 0, code, stderr.String())
	var summary cli.RecordSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "purchase", summary.Event)
	require.NotZero(t, summary.VoucherID)
	require.Len(t, summary.Batches, 1)

	stdout, stderr, out = buffers()
	require.Equal(t, 0, c.TrialBalanceCommand(ctx, cli.TrialBalanceOptions{TenantID: 1, Output: out}), stderr.String())
	var tb cli.TrialBalanceJSON
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &tb))
	require.True(t, tb.Balanced)
	require.Equal(t, "5900.00", tb.TotalDebit)
	require.Equal(t, "5900.00", tb.TotalCredit)
	require.Len(t, tb.Rows, 3)
	require.Equal(t, cli.TrialBalanceRowJSON{Code: "1200", Name: "Inventory", Type: "ASSET", Debit: "5000.00", Credit: "0.00", Balance: "5000.00"}, tb.Rows[0])
	require.Equal(t, "900.00", tb.Rows[1].Debit)
	require.Equal(t, "5900.00", tb.Rows[2].Balance)

	stdout, stderr, out = buffers()
	require.Equal(t, 0, c.BalanceCommand(ctx, cli.BalanceOptions{TenantID: 1, Account: "2000", Output: out}), stderr.String())
	var balance map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &balance))
	require.Equal(t, "5900.00", balance["balance"])

	stdout, stderr, out = buffers()
	require.Equal(t, 0, c.StockCommand(ctx, cli.StockOptions{TenantID: 1, Output: out}), stderr.String())
	var stock map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stock))
	require.Equal(t, "100", stock["gst_quantity"])
	require.Equal(t, "5000.00", stock["gst_value"])
	require.Equal(t, "900.00", stock["itc_available"])
	require.Equal(t, float64(1), stock["active_batches"])
}

func TestRecordRejectsDuplicateAndBadInput(t *testing.T) {
	ctx := context.Background()
	c := newLedgerCLI(t)
	_, _, out := buffers()
	require.Equal(t, 0, c.SeedChartCommand(ctx, 1, out))

	_, _, out = buffers()
	require.Equal(t, 0, c.RecordCommand(ctx, cli.RecordOptions{TenantID: 1, Event: "purchase", Input: strings.NewReader(purchaseJSON), Output: out}))

	_, stderr, out := buffers()
	require.Equal(t, 1, c.RecordCommand(ctx, cli.RecordOptions{TenantID: 1, Event: "purchase", Input: strings.NewReader(purchaseJSON), Output: out}))
	require.Contains(t, stderr.String(), "source already posted")

	_, stderr, out = buffers()
	require.Equal(t, 1, c.RecordCommand(ctx, cli.RecordOptions{TenantID: 1, Event: "refund", Input: strings.NewReader("{}"), Output: out}))
	require.Contains(t, stderr.String(), "unknown event")

	_, stderr, out = buffers()
	require.Equal(t, 1, c.RecordCommand(ctx, cli.RecordOptions{TenantID: 1, Event: "vendor_payment", Input: strings.NewReader(`{"Payee": "x"}`), Output: out}))
	require.Contains(t, stderr.String(), "decode")
}

func TestBalanceUnknownAccount(t *testing.T) {
	c := newLedgerCLI(t)
	_, stderr, out := buffers()
	require.Equal(t, 1, c.BalanceCommand(context.Background(), cli.BalanceOptions{TenantID: 1, Account: "7777", Output: out}))
	require.Contains(t, stderr.String(), "not found")
}

func TestParseDate(t *testing.T) {
	d, err := cli.ParseDate("")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	d, err = cli.ParseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, 29, d.Day())

	_, err = cli.ParseDate("29/02/2024")
	require.Error(t, err)
}

type stubEnqueuer struct {
	err   error
	names []string
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.names = append(s.names, task.Type())
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestJobsTriggerCommand(t *testing.T) {
	ctx := context.Background()
	enq := &stubEnqueuer{}
	jobsCLI := cli.NewJobsCLIWith(jobs.NewClientWith(enq), nil)

	stdout, _, out := buffers()
	out.JSONOutput = false
	require.Equal(t, 0, jobsCLI.TriggerCommand(ctx, "integrity", jobs.CheckPayload{}, out))
	require.Contains(t, stdout.String(), "queued ledger:integrity as task-1")
	require.Equal(t, 0, jobsCLI.TriggerCommand(ctx, jobs.TaskInventoryReconcile, jobs.CheckPayload{TenantIDs: []int64{2}}, out))
	require.Equal(t, []string{jobs.TaskLedgerIntegrity, jobs.TaskInventoryReconcile}, enq.names)

	_, stderr, out := buffers()
	require.Equal(t, 1, jobsCLI.TriggerCommand(ctx, "vacuum", jobs.CheckPayload{}, out))
	require.Contains(t, stderr.String(), "unsupported job")

	dup := cli.NewJobsCLIWith(jobs.NewClientWith(&stubEnqueuer{err: asynq.ErrTaskIDConflict}), nil)
	stdout, _, out = buffers()
	require.Equal(t, 0, dup.TriggerCommand(ctx, "reconcile", jobs.CheckPayload{}, out))
	require.Contains(t, stdout.String(), "already queued")
}

func TestJobsStatsCommand(t *testing.T) {
	jobsCLI := cli.NewJobsCLIWith(nil, stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1}})
	stdout, _, out := buffers()
	require.Equal(t, 0, jobsCLI.StatsCommand(out))
	var stats cli.QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 1, stats.Scheduled)

	missing := cli.NewJobsCLIWith(nil, stubInspector{err: asynq.ErrQueueNotFound})
	stats, err := missing.InspectQueue()
	require.NoError(t, err)
	require.Zero(t, stats.Pending)

	broken := cli.NewJobsCLIWith(nil, stubInspector{err: errors.New("redis down")})
	_, stderr, out := buffers()
	require.Equal(t, 1, broken.StatsCommand(out))
	require.Contains(t, stderr.String(), "redis down")
}
