package accounts

import (
	"strings"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Type enumerates the supported account categories.
type Type string

const (
	TypeAsset     Type = "ASSET"
	TypeLiability Type = "LIABILITY"
	TypeEquity    Type = "EQUITY"
	TypeIncome    Type = "INCOME"
	TypeExpense   Type = "EXPENSE"
)

// Side is the side of a leg that increases an account.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Valid reports whether t is one of the known categories.
func (t Type) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeIncome, TypeExpense:
		return true
	}
	return false
}

// NormalSide returns the side that increases accounts of this type.
func (t Type) NormalSide() Side {
	switch t {
	case TypeAsset, TypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account is a postable ledger account owned by one tenant.
type Account struct {
	ID         int64
	TenantID   int64
	Code       string
	Name       string
	Type       Type
	NormalSide Side
	IsActive   bool
	CreatedAt  time.Time
}

// CreateInput describes a new account.
type CreateInput struct {
	Code string `validate:"required,max=32"`
	Name string `validate:"required,max=160"`
	Type Type   `validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
}

// Normalize trims surrounding whitespace and upper-cases the type.
func (in CreateInput) Normalize() CreateInput {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Type = Type(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	return in
}

// Validate checks the input shape.
func (in CreateInput) Validate() error {
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return shared.Invalid("type", "unknown account type %q", in.Type)
	}
	return nil
}

// Codes of the accounts the transaction recorder posts to.
const (
	CodeCash              = "1000"
	CodeBank              = "1010"
	CodeReceivable        = "1100"
	CodeInventory         = "1200"
	CodeInputTaxCredit    = "1300"
	CodePayable           = "2000"
	CodeOutputTax         = "2100"
	CodeSalesIncome       = "4000"
	CodeCostOfGoodsSold   = "5000"
	CodeStockLoss         = "5100"
	CodeCommissionExpense = "6100"
	CodeRounding          = "9990"
)

// StandardChart lists the accounts every tenant needs before recording business events.
var StandardChart = []CreateInput{
	{Code: CodeCash, Name: "Cash", Type: TypeAsset},
	{Code: CodeBank, Name: "Bank", Type: TypeAsset},
	{Code: CodeReceivable, Name: "Accounts Receivable", Type: TypeAsset},
	{Code: CodeInventory, Name: "Inventory", Type: TypeAsset},
	{Code: CodeInputTaxCredit, Name: "Input Tax Credit", Type: TypeAsset},
	{Code: CodePayable, Name: "Accounts Payable", Type: TypeLiability},
	{Code: CodeOutputTax, Name: "Output Tax Payable", Type: TypeLiability},
	{Code: CodeSalesIncome, Name: "Sales Income", Type: TypeIncome},
	{Code: CodeCostOfGoodsSold, Name: "Cost of Goods Sold", Type: TypeExpense},
	{Code: CodeStockLoss, Name: "Inventory Write-off", Type: TypeExpense},
	{Code: CodeCommissionExpense, Name: "Commission Expense", Type: TypeExpense},
	{Code: CodeRounding, Name: "Rounding Off", Type: TypeExpense},
}
