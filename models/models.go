package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FlowType says which direction money moves for a category.
type FlowType string

const (
	Income  FlowType = "Income"
	Expense FlowType = "Expense"
)

// ParseFlowType converts the stored text representation.
func ParseFlowType(s string) (FlowType, error) {
	switch s {
	case string(Income):
		return Income, nil
	case string(Expense):
		return Expense, nil
	}
	return "", fmt.Errorf("invalid flow type: %q", s)
}

// TaxDeductionInfo says whether flows in a category may be tax deductible
// and what the default answer is.
type TaxDeductionInfo struct {
	Allowed bool `json:"allowed"`
	Default bool `json:"default"`
}

// CategoryField describes one custom field of a category. Default values are
// stored as text regardless of the logical type; validation happens on write.
type CategoryField struct {
	Name         string    `json:"name"`
	Type         FieldType `json:"field_type"`
	Required     bool      `json:"required"`
	DefaultValue *string   `json:"default_value"`
}

// Category groups flows and defines their custom field schema.
// Identity is ID; everything else is mutable.
type Category struct {
	ID           string
	Name         string
	FlowType     FlowType
	Fields       []CategoryField
	TaxDeduction TaxDeductionInfo
}

// Flow is a single money movement.
type Flow struct {
	ID            string
	Date          time.Time
	Amount        float64
	CategoryID    string
	Description   string
	LinkedFlows   []string          // informational links to other flow ids
	CustomFields  map[string]string // field name -> stored text value
	TaxDeductible *bool
}

// NewFlow creates an empty flow for the given category with a fresh id.
func NewFlow(categoryID string) *Flow {
	return &Flow{
		ID:           uuid.NewString(),
		Date:         time.Now(),
		CategoryID:   categoryID,
		LinkedFlows:  []string{},
		CustomFields: map[string]string{},
	}
}

func strPtr(s string) *string { return &s }

// DefaultCategories is the seed set written into an empty store.
func DefaultCategories() []Category {
	return []Category{
		{
			ID: "salary", Name: "Salary", FlowType: Income,
			Fields: []CategoryField{
				{Name: "employer", Type: TextType(), Required: true},
				{Name: "pay_period", Type: SelectType("Monthly", "Bi-weekly", "Weekly"), Required: true, DefaultValue: strPtr("Monthly")},
			},
		},
		{
			ID: "passive_income", Name: "Passive Income", FlowType: Income,
			Fields: []CategoryField{
				{Name: "source", Type: TextType(), Required: true},
				{Name: "type", Type: SelectType("Investment", "Rental", "Royalty", "Other"), Required: true},
			},
		},
		{
			ID: "taxes_paid", Name: "Taxes Paid", FlowType: Expense,
			Fields: []CategoryField{
				{Name: "tax_type", Type: SelectType("Federal", "State", "Local", "Property", "Other"), Required: true},
				{Name: "tax_year", Type: IntegerType(), Required: true},
			},
		},
		{
			ID: "cash_donations", Name: "Cash Donations", FlowType: Expense,
			Fields: []CategoryField{
				{Name: "recipient", Type: TextType(), Required: true},
			},
			TaxDeduction: TaxDeductionInfo{Allowed: true, Default: true},
		},
		{
			ID: "in_kind_donations", Name: "In-Kind Donations", FlowType: Expense,
			Fields: []CategoryField{
				{Name: "recipient", Type: TextType(), Required: true},
				{Name: "item_description", Type: TextType(), Required: true},
			},
			TaxDeduction: TaxDeductionInfo{Allowed: true, Default: true},
		},
		{
			ID: "medical", Name: "Medical", FlowType: Expense,
			Fields: []CategoryField{
				{Name: "provider", Type: TextType(), Required: true},
				{Name: "type", Type: SelectType("Doctor Visit", "Prescription", "Procedure", "Equipment", "Other"), Required: true},
				{Name: "insurance_covered", Type: BooleanType(), Required: true, DefaultValue: strPtr("false")},
			},
			TaxDeduction: TaxDeductionInfo{Allowed: true, Default: false},
		},
		{
			ID: "dental", Name: "Dental", FlowType: Expense,
			Fields: []CategoryField{
				{Name: "provider", Type: TextType(), Required: true},
				{Name: "type", Type: SelectType("Cleaning", "Checkup", "Procedure", "Orthodontics", "Other"), Required: true},
				{Name: "insurance_covered", Type: BooleanType(), Required: true, DefaultValue: strPtr("false")},
			},
			TaxDeduction: TaxDeductionInfo{Allowed: true, Default: false},
		},
		{
			ID: "other_expense", Name: "Other Expense", FlowType: Expense,
			Fields: []CategoryField{
				{Name: "description", Type: TextType(), Required: true},
				{Name: "recurring", Type: BooleanType(), Required: true, DefaultValue: strPtr("false")},
			},
		},
		{
			ID: "other_income", Name: "Other Income", FlowType: Income,
			Fields: []CategoryField{
				{Name: "source", Type: TextType(), Required: true},
				{Name: "recurring", Type: BooleanType(), Required: true, DefaultValue: strPtr("false")},
			},
		},
	}
}
