package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"finledger/models"
)

// ErrMigrationValidation marks a migration whose post-condition check
// failed. It is fatal at startup: the ledger is not advanced and the
// transaction rolls back.
var ErrMigrationValidation = errors.New("migration validation failed")

// A migration is a named, versioned, one-shot transformation of stored
// data. The body and the validator run inside one transaction; only when
// the validator passes is the ledger row appended and the transaction
// committed.
type migration struct {
	name     string
	version  int
	run      func(tx *gorm.DB) error
	validate func(tx *gorm.DB) (bool, error)
}

var migrations = []migration{
	{
		name:     "convert_number_to_float",
		version:  1,
		run:      convertNumberToFloat,
		validate: validateNoNumberFields,
	},
}

// runMigrations applies every registered migration not yet in the ledger.
// A (name, version) pair is applied at most once.
func runMigrations(db *gorm.DB) error {
	for _, m := range migrations {
		var applied int64
		if err := db.Model(&MigrationRow{}).
			Where("name = ? AND version = ?", m.name, m.version).
			Count(&applied).Error; err != nil {
			return fmt.Errorf("check migration ledger: %w", err)
		}
		if applied > 0 {
			continue
		}

		log.Printf("store: running migration %s (version %d)", m.name, m.version)
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.run(tx); err != nil {
				return fmt.Errorf("migration %s: %w", m.name, err)
			}
			ok, err := m.validate(tx)
			if err != nil {
				return fmt.Errorf("validate migration %s: %w", m.name, err)
			}
			if !ok {
				return fmt.Errorf("%w: %s (version %d)", ErrMigrationValidation, m.name, m.version)
			}
			return tx.Create(&MigrationRow{Name: m.name, Version: m.version}).Error
		})
		if err != nil {
			return err
		}
		log.Printf("store: migration %s (version %d) completed", m.name, m.version)
	}
	return nil
}

// convertNumberToFloat rewrites the deprecated Number field type to its
// canonical Float form across every stored category.
func convertNumberToFloat(tx *gorm.DB) error {
	var rows []CategoryRow
	if err := tx.Find(&rows).Error; err != nil {
		return err
	}

	for i := range rows {
		var fields []models.CategoryField
		if err := json.Unmarshal([]byte(rows[i].Fields), &fields); err != nil {
			return fmt.Errorf("category %s: malformed fields: %w", rows[i].ID, err)
		}

		modified := false
		for j := range fields {
			if fields[j].Type.Kind == models.FieldNumber {
				fields[j].Type = models.FloatType()
				modified = true
			}
		}
		if !modified {
			continue
		}

		raw, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("category %s: %w", rows[i].ID, err)
		}
		if err := tx.Model(&CategoryRow{}).
			Where("id = ?", rows[i].ID).
			Update("fields", string(raw)).Error; err != nil {
			return err
		}
		log.Printf("store: converted Number fields to Float in category %s", rows[i].ID)
	}
	return nil
}

// validateNoNumberFields checks that no deprecated Number field survived.
func validateNoNumberFields(tx *gorm.DB) (bool, error) {
	var rows []CategoryRow
	if err := tx.Find(&rows).Error; err != nil {
		return false, err
	}
	for i := range rows {
		var fields []models.CategoryField
		if err := json.Unmarshal([]byte(rows[i].Fields), &fields); err != nil {
			return false, fmt.Errorf("category %s: malformed fields: %w", rows[i].ID, err)
		}
		for _, f := range fields {
			if f.Type.Kind == models.FieldNumber {
				return false, nil
			}
		}
	}
	return true, nil
}
