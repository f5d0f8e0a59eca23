package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"finledger/models"
)

const dateFormat = "2006-01-02"

// CategoryRow is the raw categories table row. The field schema is kept as a
// JSON text column; the row is the wire format, typed views are built on load.
type CategoryRow struct {
	ID                  string `gorm:"column:id;primaryKey;not null"`
	Name                string `gorm:"column:name;not null"`
	FlowType            string `gorm:"column:flow_type;not null"`
	Fields              string `gorm:"column:fields;not null"`
	TaxDeductionAllowed bool   `gorm:"column:tax_deduction_allowed;not null"`
	TaxDeductionDefault bool   `gorm:"column:tax_deduction_default;not null"`
}

func (CategoryRow) TableName() string { return "categories" }

// FlowRow is the raw flows table row. LinkedFlows and CustomFields are JSON
// text columns. The association declares the referential constraint to
// categories.
type FlowRow struct {
	ID            string  `gorm:"column:id;primaryKey;not null"`
	Date          string  `gorm:"column:date;not null"`
	Amount        float64 `gorm:"column:amount;not null"`
	CategoryID    string  `gorm:"column:category_id;not null;index"`
	Description   string  `gorm:"column:description;not null"`
	LinkedFlows   string  `gorm:"column:linked_flows;not null"`
	CustomFields  string  `gorm:"column:custom_fields;not null"`
	TaxDeductible *bool   `gorm:"column:tax_deductible"`

	Category *CategoryRow `gorm:"foreignKey:CategoryID;references:ID"`
}

func (FlowRow) TableName() string { return "flows" }

// SettingsRow is the singleton user settings row; the payload may be an
// encrypted blob.
type SettingsRow struct {
	ID           int    `gorm:"column:id;primaryKey"`
	SettingsJSON string `gorm:"column:settings_json;not null"`
}

func (SettingsRow) TableName() string { return "user_settings" }

// MigrationRow is one line of the applied-migrations ledger.
type MigrationRow struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Version   int       `gorm:"column:version;not null"`
	AppliedAt time.Time `gorm:"column:applied_at;autoCreateTime"`
}

func (MigrationRow) TableName() string { return "migrations" }

// EnsureSchema creates the tables if they don't exist. Also used by the
// backup engine to initialize portable backup targets.
func EnsureSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&CategoryRow{},
		&FlowRow{},
		&SettingsRow{},
		&MigrationRow{},
	); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func toCategoryRow(c *models.Category) (*CategoryRow, error) {
	fields, err := json.Marshal(c.Fields)
	if err != nil {
		return nil, fmt.Errorf("serialize fields for category %s: %w", c.ID, err)
	}
	return &CategoryRow{
		ID:                  c.ID,
		Name:                c.Name,
		FlowType:            string(c.FlowType),
		Fields:              string(fields),
		TaxDeductionAllowed: c.TaxDeduction.Allowed,
		TaxDeductionDefault: c.TaxDeduction.Default,
	}, nil
}

func categoryFromRow(r *CategoryRow) (*models.Category, error) {
	flowType, err := models.ParseFlowType(r.FlowType)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", r.ID, err)
	}
	var fields []models.CategoryField
	if err := json.Unmarshal([]byte(r.Fields), &fields); err != nil {
		return nil, fmt.Errorf("category %s: malformed fields: %w", r.ID, err)
	}
	return &models.Category{
		ID:       r.ID,
		Name:     r.Name,
		FlowType: flowType,
		Fields:   fields,
		TaxDeduction: models.TaxDeductionInfo{
			Allowed: r.TaxDeductionAllowed,
			Default: r.TaxDeductionDefault,
		},
	}, nil
}

func toFlowRow(f *models.Flow) (*FlowRow, error) {
	linked, err := json.Marshal(f.LinkedFlows)
	if err != nil {
		return nil, fmt.Errorf("serialize linked flows for flow %s: %w", f.ID, err)
	}
	custom, err := json.Marshal(f.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("serialize custom fields for flow %s: %w", f.ID, err)
	}
	return &FlowRow{
		ID:            f.ID,
		Date:          f.Date.Format(dateFormat),
		Amount:        f.Amount,
		CategoryID:    f.CategoryID,
		Description:   f.Description,
		LinkedFlows:   string(linked),
		CustomFields:  string(custom),
		TaxDeductible: f.TaxDeductible,
	}, nil
}

func flowFromRow(r *FlowRow) (*models.Flow, error) {
	date, err := time.Parse(dateFormat, r.Date)
	if err != nil {
		return nil, fmt.Errorf("flow %s: bad date %q: %w", r.ID, r.Date, err)
	}
	var linked []string
	if err := json.Unmarshal([]byte(r.LinkedFlows), &linked); err != nil {
		return nil, fmt.Errorf("flow %s: malformed linked flows: %w", r.ID, err)
	}
	var custom map[string]string
	if err := json.Unmarshal([]byte(r.CustomFields), &custom); err != nil {
		return nil, fmt.Errorf("flow %s: malformed custom fields: %w", r.ID, err)
	}
	return &models.Flow{
		ID:            r.ID,
		Date:          date,
		Amount:        r.Amount,
		CategoryID:    r.CategoryID,
		Description:   r.Description,
		LinkedFlows:   linked,
		CustomFields:  custom,
		TaxDeductible: r.TaxDeductible,
	}, nil
}
