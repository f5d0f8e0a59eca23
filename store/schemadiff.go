package store

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"finledger/models"
)

// hasSchemaChanges compares the field-name to field-type maps of two
// versions of a category. Any added field, removed field, or type change
// (including a changed Select option list) counts.
func hasSchemaChanges(old, new *models.Category) bool {
	oldFields := fieldTypeMap(old)
	newFields := fieldTypeMap(new)

	if len(oldFields) != len(newFields) {
		return true
	}
	for name, oldType := range oldFields {
		newType, ok := newFields[name]
		if !ok || !oldType.Equal(newType) {
			return true
		}
	}
	return false
}

func fieldTypeMap(c *models.Category) map[string]models.FieldType {
	m := make(map[string]models.FieldType, len(c.Fields))
	for _, f := range c.Fields {
		m[f.Name] = f.Type
	}
	return m
}

// migrateFlowsToNewCategory rewrites the custom fields of every flow under
// the category to match its new field schema: fields absent from the new
// schema are dropped, remaining values are coerced into the new types, and
// values that cannot be coerced are dropped. Empty values are left
// untouched. Runs inside the SaveCategory transaction; a failure rolls back
// the category upsert too.
func migrateFlowsToNewCategory(tx *gorm.DB, old, new *models.Category) error {
	var rows []FlowRow
	if err := tx.Where("category_id = ?", new.ID).Find(&rows).Error; err != nil {
		return fmt.Errorf("load flows for category %s: %w", new.ID, err)
	}

	newTypes := fieldTypeMap(new)
	migrated := 0

	for i := range rows {
		var custom map[string]string
		if err := json.Unmarshal([]byte(rows[i].CustomFields), &custom); err != nil {
			return fmt.Errorf("flow %s: malformed custom fields: %w", rows[i].ID, err)
		}

		modified := false

		for name := range custom {
			if _, ok := newTypes[name]; !ok {
				delete(custom, name)
				modified = true
				log.Printf("store: removed field %q from flow %s", name, rows[i].ID)
			}
		}

		for name, fieldType := range newTypes {
			value, ok := custom[name]
			if !ok || strings.TrimSpace(value) == "" {
				continue
			}
			norm, keep := models.Coerce(fieldType, value)
			if !keep {
				delete(custom, name)
				modified = true
				log.Printf("store: invalid %s value %q for field %q in category %s, dropping",
					fieldType.Kind, value, name, new.Name)
				continue
			}
			if norm != value {
				custom[name] = norm
				modified = true
			}
		}

		if !modified {
			continue
		}
		raw, err := json.Marshal(custom)
		if err != nil {
			return fmt.Errorf("flow %s: %w", rows[i].ID, err)
		}
		if err := tx.Model(&FlowRow{}).
			Where("id = ?", rows[i].ID).
			Update("custom_fields", string(raw)).Error; err != nil {
			return err
		}
		migrated++
	}

	if migrated > 0 {
		log.Printf("store: migrated %d flows to new schema of category %s", migrated, new.Name)
	}
	return nil
}
