package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finledger/models"
)

// InsertCategory writes a category unconditionally (seed and first-create
// path). SaveCategory is the update path and requires a prior row.
func (s *Store) InsertCategory(c *models.Category) error {
	row, err := toCategoryRow(c)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

// SaveCategory upserts a category by id inside a transaction that also diffs
// the previously stored field schema against the new one and migrates the
// category's flows when the schema changed. A missing prior row yields
// ErrNotFound: this API is update-oriented, callers seed via InsertCategory
// first. Any failure rolls back both the upsert and the flow migration.
func (s *Store) SaveCategory(c *models.Category) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var prev CategoryRow
		if err := tx.First(&prev, "id = ?", c.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: category %s", ErrNotFound, c.ID)
			}
			return err
		}
		old, err := categoryFromRow(&prev)
		if err != nil {
			return err
		}

		row, err := toCategoryRow(c)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
			return fmt.Errorf("save category %s: %w", c.ID, err)
		}

		if hasSchemaChanges(old, c) {
			return migrateFlowsToNewCategory(tx, old, c)
		}
		return nil
	})
}

// LoadCategories returns every stored category. A malformed row aborts the
// whole load: silently dropping financial data is worse than a visible error.
func (s *Store) LoadCategories() ([]models.Category, error) {
	var rows []CategoryRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	out := make([]models.Category, 0, len(rows))
	for i := range rows {
		c, err := categoryFromRow(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		out = append(out, *c)
	}
	return out, nil
}

// SaveFlow upserts a flow by id.
func (s *Store) SaveFlow(f *models.Flow) error {
	row, err := toFlowRow(f)
	if err != nil {
		return err
	}
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return fmt.Errorf("save flow %s: %w", f.ID, err)
	}
	return nil
}

// LoadFlows returns every stored flow; a malformed row aborts the load.
func (s *Store) LoadFlows() ([]models.Flow, error) {
	var rows []FlowRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}
	out := make([]models.Flow, 0, len(rows))
	for i := range rows {
		f, err := flowFromRow(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("load flows: %w", err)
		}
		out = append(out, *f)
	}
	return out, nil
}

// DeleteCategory removes the category row. It does not cascade; callers
// delete the category's flows first (DeleteFlowsByCategory), since the
// referential constraint rejects orphaning flows that still reference it.
func (s *Store) DeleteCategory(categoryID string) error {
	return s.db.Delete(&CategoryRow{}, "id = ?", categoryID).Error
}

func (s *Store) DeleteFlowsByCategory(categoryID string) error {
	return s.db.Delete(&FlowRow{}, "category_id = ?", categoryID).Error
}

func (s *Store) DeleteFlow(flowID string) error {
	return s.db.Delete(&FlowRow{}, "id = ?", flowID).Error
}

// SaveUserSettings serializes and stores the singleton settings row,
// encrypting the payload when encryption is active.
func (s *Store) SaveUserSettings(settings *models.UserSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("serialize user settings: %w", err)
	}
	payload, err := s.EncryptPayload(string(raw))
	if err != nil {
		return fmt.Errorf("encrypt user settings: %w", err)
	}
	row := SettingsRow{ID: 1, SettingsJSON: payload}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// LoadUserSettings reads the singleton settings row. A missing row, a
// payload that won't decrypt, or one that won't parse all yield fresh
// defaults: settings are recoverable state, unlike categories and flows.
func (s *Store) LoadUserSettings() (*models.UserSettings, error) {
	var row SettingsRow
	if err := s.db.First(&row, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewUserSettings(), nil
		}
		return nil, fmt.Errorf("load user settings: %w", err)
	}

	raw, err := s.DecryptPayload(row.SettingsJSON)
	if err != nil {
		log.Printf("store: could not decrypt user settings, using defaults: %v", err)
		return models.NewUserSettings(), nil
	}

	var settings models.UserSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		log.Printf("store: could not parse user settings, using defaults: %v", err)
		return models.NewUserSettings(), nil
	}
	return &settings, nil
}

// RawCategories returns the categories table verbatim, for the backup engine.
func (s *Store) RawCategories() ([]CategoryRow, error) {
	var rows []CategoryRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	return rows, nil
}

func (s *Store) RawFlows() ([]FlowRow, error) {
	var rows []FlowRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read flows: %w", err)
	}
	return rows, nil
}

// RawSettings returns the settings row as stored (possibly ciphertext), or
// nil when none exists.
func (s *Store) RawSettings() (*SettingsRow, error) {
	var row SettingsRow
	if err := s.db.First(&row, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read user settings: %w", err)
	}
	return &row, nil
}

// ReplaceAll swaps the entire store content for the given rows in one
// transaction. The referential constraint is suspended around the swap so
// the bulk load doesn't depend on insert order, and re-enabled afterwards on
// every exit path. Any failure rolls the swap back; the previous content
// stays untouched.
func (s *Store) ReplaceAll(categories []CategoryRow, flows []FlowRow, settings *SettingsRow) error {
	// Connection-scoped and a no-op inside a transaction, so toggle outside.
	s.db.Exec("PRAGMA foreign_keys = OFF")
	defer s.db.Exec("PRAGMA foreign_keys = ON")

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&FlowRow{}).Error; err != nil {
			return fmt.Errorf("clear flows: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&CategoryRow{}).Error; err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&SettingsRow{}).Error; err != nil {
			return fmt.Errorf("clear user settings: %w", err)
		}

		for i := range categories {
			if err := tx.Create(&categories[i]).Error; err != nil {
				return fmt.Errorf("insert category %s: %w", categories[i].ID, err)
			}
		}
		for i := range flows {
			row := flows[i]
			row.Category = nil
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert flow %s: %w", row.ID, err)
			}
		}
		if settings != nil {
			row := SettingsRow{ID: 1, SettingsJSON: settings.SettingsJSON}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert user settings: %w", err)
			}
		}
		return nil
	})
}

// PageClone writes a page-level clone of the live database to path,
// preserving stored payload bytes as-is. An existing file at path is
// replaced, since VACUUM INTO requires a fresh target.
func (s *Store) PageClone(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace backup target: %w", err)
	}
	if err := s.db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("page clone to %s: %w", path, err)
	}
	return nil
}
