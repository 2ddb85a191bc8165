package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/odyssey-erp/stockledger/internal/recorder"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RecordOptions names the event and where its JSON body is read from.
type RecordOptions struct {
	TenantID int64
	ActorID  int64
	Event    string
	Input    io.Reader
	Output
}

// RecordSummary is the JSON outcome of a recorded event.
type RecordSummary struct {
	Event       string  `json:"event"`
	VoucherID   int64   `json:"voucher_id,omitempty"`
	Batches     []int64 `json:"batches,omitempty"`
	Allocations int     `json:"allocations,omitempty"`
	NoteID      int64   `json:"note_id,omitempty"`
	Reversals   int     `json:"reversals,omitempty"`
	PaymentID   int64   `json:"payment_id,omitempty"`
}

type eventRunner func(ctx context.Context, r *recorder.Recorder, tc shared.TenantContext, dec *json.Decoder) (recorder.Result, error)

func decodeAnd[T any](call func(*recorder.Recorder, context.Context, shared.TenantContext, T) (recorder.Result, error)) eventRunner {
	return func(ctx context.Context, r *recorder.Recorder, tc shared.TenantContext, dec *json.Decoder) (recorder.Result, error) {
		var in T
		if err := dec.Decode(&in); err != nil {
			return recorder.Result{}, shared.Invalid("input", "decode: %v", err)
		}
		return call(r, ctx, tc, in)
	}
}

var eventRunners = map[string]eventRunner{
	string(recorder.EventPurchase):           decodeAnd((*recorder.Recorder).RecordPurchase),
	string(recorder.EventSale):               decodeAnd((*recorder.Recorder).RecordSale),
	string(recorder.EventVendorPayment):      decodeAnd((*recorder.Recorder).RecordVendorPayment),
	string(recorder.EventCustomerReceipt):    decodeAnd((*recorder.Recorder).RecordCustomerReceipt),
	string(recorder.EventSalesReturn):        decodeAnd((*recorder.Recorder).RecordSalesReturn),
	string(recorder.EventCommissionEarned):   decodeAnd((*recorder.Recorder).RecordCommissionEarned),
	string(recorder.EventCommissionReversed): decodeAnd((*recorder.Recorder).RecordCommissionReversal),
	string(recorder.EventCommissionPaid):     decodeAnd((*recorder.Recorder).RecordCommissionPaid),
	string(recorder.EventStockWriteOff):      decodeAnd((*recorder.Recorder).WriteOffStock),
}

// Events lists the event names RecordCommand accepts.
func Events() []string {
	names := make([]string, 0, len(eventRunners))
	for name := range eventRunners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecordCommand decodes one event from opts.Input and records it. Retryable conflicts exit 75.
func (c *LedgerCLI) RecordCommand(ctx context.Context, opts RecordOptions) int {
	out := opts.Output.withDefaults()
	run, ok := eventRunners[opts.Event]
	if !ok {
		_, _ = fmt.Fprintf(out.Stderr, "record: unknown event %q (one of %v)\n", opts.Event, Events())
		return 1
	}
	if opts.Input == nil {
		_, _ = fmt.Fprintln(out.Stderr, "record: no input")
		return 1
	}
	dec := json.NewDecoder(opts.Input)
	dec.DisallowUnknownFields()
	res, err := run(ctx, c.services.Recorder, shared.TenantContext{TenantID: opts.TenantID, ActorID: opts.ActorID}, dec)
	if err != nil {
		return out.fail("record", err)
	}
	summary := RecordSummary{Event: opts.Event, VoucherID: res.Voucher.ID, Allocations: len(res.Allocations), Reversals: len(res.Reversals)}
	for _, b := range res.Batches {
		summary.Batches = append(summary.Batches, b.ID)
	}
	if res.Note != nil {
		summary.NoteID = res.Note.ID
	}
	if res.Payment != nil {
		summary.PaymentID = res.Payment.ID
	}
	if out.JSONOutput {
		return out.encode("record", summary)
	}
	_, _ = fmt.Fprintf(out.Stdout, "recorded %s", opts.Event)
	if summary.VoucherID != 0 {
		_, _ = fmt.Fprintf(out.Stdout, " as voucher %d", summary.VoucherID)
	}
	_, _ = fmt.Fprintln(out.Stdout)
	return 0
}
