package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// SourceRef identifies the business document a voucher was posted for, e.g. purchase_bill:42.
type SourceRef struct {
	Type string `validate:"required,max=64"`
	ID   string `validate:"required,max=128"`
}

// Source builds a SourceRef for a numeric document id.
func Source(kind string, id int64) SourceRef {
	return SourceRef{Type: kind, ID: strconv.FormatInt(id, 10)}
}

// ParseSourceRef splits "type:id".
func ParseSourceRef(s string) (SourceRef, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || kind == "" || id == "" {
		return SourceRef{}, shared.Invalid("source", "expected type:id, got %q", s)
	}
	return SourceRef{Type: kind, ID: id}, nil
}

func (r SourceRef) String() string {
	return r.Type + ":" + r.ID
}

// IsZero reports whether the reference is unset.
func (r SourceRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// SourceReversal is the source type of reversing vouchers.
const SourceReversal = "reversal"

// Leg is one posted debit or credit. Seq is the tenant-wide monotonically increasing sequence
// assigned at insert time; legs of one account are ordered by (Date, Seq).
type Leg struct {
	Seq       int64
	VoucherID int64
	LineNo    int
	AccountID int64
	Date      time.Time
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Voucher is an immutable balanced group of legs.
type Voucher struct {
	ID         int64
	TenantID   int64
	Date       time.Time
	Source     SourceRef
	Narration  string
	ReversesID *int64
	PostedBy   int64
	PostedAt   time.Time
	Legs       []Leg
}

// Totals returns the debit and credit sums of the voucher.
func (v Voucher) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, leg := range v.Legs {
		debit = debit.Add(leg.Debit)
		credit = credit.Add(leg.Credit)
	}
	return debit, credit
}

// LegInput describes one leg to post. AccountCode is used when AccountID is zero.
type LegInput struct {
	AccountID   int64
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Dr builds a debit leg against an account code.
func Dr(code string, amount decimal.Decimal) LegInput {
	return LegInput{AccountCode: code, Debit: amount}
}

// Cr builds a credit leg against an account code.
func Cr(code string, amount decimal.Decimal) LegInput {
	return LegInput{AccountCode: code, Credit: amount}
}

func (l LegInput) ref() string {
	if l.AccountID != 0 {
		return strconv.FormatInt(l.AccountID, 10)
	}
	return l.AccountCode
}

// PostingInput carries the payload required to post a voucher.
type PostingInput struct {
	Date      time.Time `validate:"required"`
	Source    SourceRef
	Narration string `validate:"max=512"`
	Legs      []LegInput
}

// ReverseInput configures a reversal. A zero Date reuses the original voucher date.
type ReverseInput struct {
	Date      time.Time
	Narration string
}

// normalizedLegs validates leg shape and rounds amounts to minor units.
func normalizedLegs(legs []LegInput) ([]LegInput, decimal.Decimal, decimal.Decimal, error) {
	if len(legs) < 2 {
		return nil, decimal.Zero, decimal.Zero, shared.Invalid("legs", "at least two legs required, got %d", len(legs))
	}
	out := make([]LegInput, len(legs))
	debit, credit := decimal.Zero, decimal.Zero
	for i, leg := range legs {
		field := fmt.Sprintf("legs[%d]", i)
		if leg.AccountID == 0 && strings.TrimSpace(leg.AccountCode) == "" {
			return nil, debit, credit, shared.Invalid(field, "account reference required")
		}
		if leg.Debit.IsNegative() || leg.Credit.IsNegative() {
			return nil, debit, credit, shared.Invalid(field, "amounts must not be negative")
		}
		leg.Debit = shared.RoundMoney(leg.Debit)
		leg.Credit = shared.RoundMoney(leg.Credit)
		if leg.Debit.IsZero() == leg.Credit.IsZero() {
			return nil, debit, credit, shared.Invalid(field, "exactly one of debit or credit must be non-zero")
		}
		leg.AccountCode = strings.TrimSpace(leg.AccountCode)
		debit = debit.Add(leg.Debit)
		credit = credit.Add(leg.Credit)
		out[i] = leg
	}
	return out, debit, credit, nil
}

// reverseLegs swaps debit and credit on every leg.
func reverseLegs(legs []Leg) []LegInput {
	out := make([]LegInput, 0, len(legs))
	for _, leg := range legs {
		out = append(out, LegInput{AccountID: leg.AccountID, Debit: leg.Credit, Credit: leg.Debit})
	}
	return out
}

func defaultReversalNarration(original Voucher) string {
	if original.Narration == "" {
		return fmt.Sprintf("Reversal of voucher %d", original.ID)
	}
	return fmt.Sprintf("Reversal of voucher %d: %s", original.ID, original.Narration)
}

// normalBalance folds debit and credit sums onto the account's normal side.
func normalBalance(side accounts.Side, debit, credit decimal.Decimal) decimal.Decimal {
	if side == accounts.SideCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// AccountTotal is the debit/credit sum of one account up to a date.
type AccountTotal struct {
	Account accounts.Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// TrialBalanceRow is one account line of the trial balance.
type TrialBalanceRow struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.Type
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Balance   decimal.Decimal
}

// TrialBalance aggregates every account of a tenant up to AsOf.
type TrialBalance struct {
	AsOf        time.Time
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Rows        []TrialBalanceRow
}

// Balanced reports whether total debits equal total credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}
