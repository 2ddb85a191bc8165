package recorder

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Event names a business event the recorder understands.
type Event string

const (
	EventPurchase           Event = "purchase"
	EventSale               Event = "sale"
	EventVendorPayment      Event = "vendor_payment"
	EventCustomerReceipt    Event = "customer_receipt"
	EventSalesReturn        Event = "sales_return"
	EventCommissionEarned   Event = "commission_earned"
	EventCommissionPaid     Event = "commission_paid"
	EventCommissionReversed Event = "commission_reversed"
	EventStockReceipt       Event = "stock_receipt"
	EventStockIssue         Event = "stock_issue"
	EventStockReturn        Event = "stock_return"
	EventStockWriteOff      Event = "stock_write_off"
)

// Settlement picks the counter account of an event.
type Settlement string

const (
	SettleCredit Settlement = "credit"
	SettleCash   Settlement = "cash"
	SettleBank   Settlement = "bank"
)

// Valid reports whether s is a known settlement.
func (s Settlement) Valid() bool {
	switch s {
	case SettleCredit, SettleCash, SettleBank:
		return true
	}
	return false
}

// AccountMap holds the account codes templates post to.
type AccountMap struct {
	Cash              string
	Bank              string
	Receivable        string
	Payable           string
	Inventory         string
	InputTaxCredit    string
	OutputTax         string
	SalesIncome       string
	CostOfGoodsSold   string
	CommissionExpense string
	StockLoss         string
	Rounding          string
}

// DefaultAccountMap matches accounts.StandardChart.
func DefaultAccountMap() AccountMap {
	return AccountMap{
		Cash:              accounts.CodeCash,
		Bank:              accounts.CodeBank,
		Receivable:        accounts.CodeReceivable,
		Payable:           accounts.CodePayable,
		Inventory:         accounts.CodeInventory,
		InputTaxCredit:    accounts.CodeInputTaxCredit,
		OutputTax:         accounts.CodeOutputTax,
		SalesIncome:       accounts.CodeSalesIncome,
		CostOfGoodsSold:   accounts.CodeCostOfGoodsSold,
		CommissionExpense: accounts.CodeCommissionExpense,
		StockLoss:         accounts.CodeStockLoss,
		Rounding:          accounts.CodeRounding,
	}
}

// settle returns the account for s, using onCredit for credit terms.
func (m AccountMap) settle(s Settlement, onCredit string) (string, error) {
	switch s {
	case SettleCredit:
		return onCredit, nil
	case SettleCash:
		return m.Cash, nil
	case SettleBank:
		return m.Bank, nil
	}
	return "", shared.Invalid("settlement", "unknown settlement %q", s)
}

// cashOrBank rejects credit terms for events that move money.
func (m AccountMap) cashOrBank(s Settlement) (string, error) {
	if s == SettleCredit {
		return "", shared.Invalid("settlement", "%s requires cash or bank", s)
	}
	return m.settle(s, "")
}

// PostingTemplate is the closed set of ledger shapes. Each variant builds its legs in one function
// and every debit it emits is matched by an equal credit.
type PostingTemplate interface {
	Event() Event
	Legs(m AccountMap) ([]ledger.LegInput, error)
	sealed()
}

// PurchaseTemplate: Dr Inventory, Dr Input-Tax-Credit, Cr Payable (or Cash/Bank).
type PurchaseTemplate struct {
	Taxable    decimal.Decimal
	Tax        decimal.Decimal
	Settlement Settlement
}

// SaleTemplate: Dr Receivable (or Cash/Bank), Cr Sales-Income, Cr Output-Tax, Dr COGS, Cr Inventory.
// RoundOff is the signed invoice rounding added to the amount due.
type SaleTemplate struct {
	Net        decimal.Decimal
	Tax        decimal.Decimal
	RoundOff   decimal.Decimal
	Cost       decimal.Decimal
	Settlement Settlement
}

// VendorPaymentTemplate: Dr Payable, Cr Cash/Bank.
type VendorPaymentTemplate struct {
	Amount     decimal.Decimal
	Settlement Settlement
}

// CustomerReceiptTemplate: Dr Cash/Bank, Cr Receivable.
type CustomerReceiptTemplate struct {
	Amount     decimal.Decimal
	Settlement Settlement
}

// SalesReturnTemplate mirrors the returned share of a sale. Cost is the value of restocked
// units. LossCost and LossITC belong to returned units that were written off instead: their cost
// moves from COGS to Stock-Loss and their forfeited ITC leaves Input-Tax-Credit.
type SalesReturnTemplate struct {
	Net        decimal.Decimal
	Tax        decimal.Decimal
	Cost       decimal.Decimal
	LossCost   decimal.Decimal
	LossITC    decimal.Decimal
	Settlement Settlement
}

// StockWriteOffTemplate: Dr Stock-Loss, Cr Inventory, Cr Input-Tax-Credit (forfeited credit).
type StockWriteOffTemplate struct {
	Cost decimal.Decimal
	ITC  decimal.Decimal
}

// CommissionEarnedTemplate is informational; it produces no legs.
type CommissionEarnedTemplate struct {
	Amount decimal.Decimal
}

// CommissionPaidTemplate: Dr Commission-Expense, Cr Cash/Bank.
type CommissionPaidTemplate struct {
	Amount     decimal.Decimal
	Settlement Settlement
}

// CommissionReversedTemplate reduces a note; it produces no legs.
type CommissionReversedTemplate struct {
	Amount decimal.Decimal
}

func (PurchaseTemplate) Event() Event           { return EventPurchase }
func (SaleTemplate) Event() Event               { return EventSale }
func (VendorPaymentTemplate) Event() Event      { return EventVendorPayment }
func (CustomerReceiptTemplate) Event() Event    { return EventCustomerReceipt }
func (SalesReturnTemplate) Event() Event        { return EventSalesReturn }
func (CommissionEarnedTemplate) Event() Event   { return EventCommissionEarned }
func (CommissionPaidTemplate) Event() Event     { return EventCommissionPaid }
func (CommissionReversedTemplate) Event() Event { return EventCommissionReversed }
func (StockWriteOffTemplate) Event() Event      { return EventStockWriteOff }

func (PurchaseTemplate) sealed()           {}
func (SaleTemplate) sealed()               {}
func (VendorPaymentTemplate) sealed()      {}
func (CustomerReceiptTemplate) sealed()    {}
func (SalesReturnTemplate) sealed()        {}
func (CommissionEarnedTemplate) sealed()   {}
func (CommissionPaidTemplate) sealed()     {}
func (CommissionReversedTemplate) sealed() {}
func (StockWriteOffTemplate) sealed()      {}

func (t PurchaseTemplate) Legs(m AccountMap) ([]ledger.LegInput, error) {
	if err := shared.RequirePositive("taxable", t.Taxable); err != nil {
		return nil, err
	}
	if err := shared.RequireNonNegative("tax", t.Tax); err != nil {
		return nil, err
	}
	counter, err := m.settle(t.Settlement, m.Payable)
	if err != nil {
		return nil, err
	}
	legs := []ledger.LegInput{ledger.Dr(m.Inventory, t.Taxable)}
	if t.Tax.IsPositive() {
		legs = append(legs, ledger.Dr(m.InputTaxCredit, t.Tax))
	}
	return append(legs, ledger.Cr(counter, t.Taxable.Add(t.Tax))), nil
}

func (t SaleTemplate) Legs(m AccountMap) ([]ledger.LegInput, error) {
	if err := shared.RequirePositive("net", t.Net); err != nil {
		return nil, err
	}
	if err := shared.RequireNonNegative("tax", t.Tax); err != nil {
		return nil, err
	}
	if err := shared.RequireNonNegative("cost", t.Cost); err != nil {
		return nil, err
	}
	due := t.Net.Add(t.Tax).Add(t.RoundOff)
	if !due.IsPositive() {
		return nil, shared.Invalid("round_off", "leaves nothing due")
	}
	counter, err := m.settle(t.Settlement, m.Receivable)
	if err != nil {
		return nil, err
	}
	legs := []ledger.LegInput{
		ledger.Dr(counter, due),
		ledger.Cr(m.SalesIncome, t.Net),
	}
	if t.Tax.IsPositive() {
		legs = append(legs, ledger.Cr(m.OutputTax, t.Tax))
	}
	switch {
	case t.RoundOff.IsPositive():
		legs = append(legs, ledger.Cr(m.Rounding, t.RoundOff))
	case t.RoundOff.IsNegative():
		legs = append(legs, ledger.Dr(m.Rounding, t.RoundOff.Neg()))
	}
	if t.Cost.IsPositive() {
		legs = append(legs, ledger.Dr(m.CostOfGoodsSold, t.Cost), ledger.Cr(m.Inventory, t.Cost))
	}
	return legs, nil
}

func (t VendorPaymentTemplate) Legs(m AccountMap) ([]ledger.LegInput, error) {
	if err := shared.RequirePositive("amount", t.Amount); err != nil {
		return nil, err
	}
	counter, err := m.cashOrBank(t.Settlement)
	if err != nil {
		return nil, err
	}
	return []ledger.LegInput{ledger.Dr(m.Payable, t.Amount), ledger.Cr(counter, t.Amount)}, nil
}

func (t CustomerReceiptTemplate) Legs(m AccountMap) ([]ledger.LegInput, error) {
	if err := shared.RequirePositive("amount", t.Amount); err != nil {
		return nil, err
	}
	counter, err := m.cashOrBank(t.Settlement)
	if err != nil {
		return nil, err
	}
	return []ledger.LegInput{ledger.Dr(counter, t.Amount), ledger.Cr(m.Receivable, t.Amount)}, nil
}

func (t SalesReturnTemplate) Legs(m AccountMap) ([]ledger.LegInput, error) {
	if err := shared.RequirePositive("net", t.Net); err != nil {
		return nil, err
	}
	if err := shared.RequireNonNegative("tax", t.Tax); err != nil {
		return nil, err
	}
	if err := shared.RequireNonNegative("cost", t.Cost); err != nil {
		return nil, err
	}
	if err := shared.RequireNonNegative("loss_cost", t.LossCost); err != nil {
		return nil, err
	}
	if err := shared.RequireNonNegative("loss_itc", t.LossITC); err != nil {
		return nil, err
	}
	counter, err := m.settle(t.Settlement, m.Receivable)
	if err != nil {
		return nil, err
	}
	legs := []ledger.LegInput{ledger.Dr(m.SalesIncome, t.Net)}
	if t.Tax.IsPositive() {
		legs = append(legs, ledger.Dr(m.OutputTax, t.Tax))
	}
	legs = append(legs, ledger.Cr(counter, t.Net.Add(t.Tax)))
	if t.Cost.IsPositive() {
		legs = append(legs, ledger.Dr(m.Inventory, t.Cost), ledger.Cr(m.CostOfGoodsSold, t.Cost))
	}
	if loss := t.LossCost.Add(t.LossITC); loss.IsPositive() {
		legs = append(legs, ledger.Dr(m.StockLoss, loss))
		if t.LossCost.IsPositive() {
			legs = append(legs, ledger.Cr(m.CostOfGoodsSold, t.LossCost))
		}
		if t.LossITC.IsPositive() {
			legs = append(legs, ledger.Cr(m.InputTaxCredit, t.LossITC))
		}
	}
	return legs, nil
}

func (t StockWriteOffTemplate) Legs(m AccountMap) ([]ledger.LegInput, error) {
	if err := shared.RequireNonNegative("cost", t.Cost); err != nil {
		return nil, err
	}
	if err := shared.RequireNonNegative("itc", t.ITC); err != nil {
		return nil, err
	}
	loss := t.Cost.Add(t.ITC)
	if !loss.IsPositive() {
		return nil, shared.Invalid("cost", "write-off carries no value")
	}
	legs := []ledger.LegInput{ledger.Dr(m.StockLoss, loss)}
	if t.Cost.IsPositive() {
		legs = append(legs, ledger.Cr(m.Inventory, t.Cost))
	}
	if t.ITC.IsPositive() {
		legs = append(legs, ledger.Cr(m.InputTaxCredit, t.ITC))
	}
	return legs, nil
}

func (t CommissionEarnedTemplate) Legs(AccountMap) ([]ledger.LegInput, error) {
	return nil, shared.RequireNonNegative("amount", t.Amount)
}

func (t CommissionPaidTemplate) Legs(m AccountMap) ([]ledger.LegInput, error) {
	if err := shared.RequirePositive("amount", t.Amount); err != nil {
		return nil, err
	}
	counter, err := m.cashOrBank(t.Settlement)
	if err != nil {
		return nil, err
	}
	return []ledger.LegInput{ledger.Dr(m.CommissionExpense, t.Amount), ledger.Cr(counter, t.Amount)}, nil
}

func (t CommissionReversedTemplate) Legs(AccountMap) ([]ledger.LegInput, error) {
	return nil, shared.RequirePositive("amount", t.Amount)
}
