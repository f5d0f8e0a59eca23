package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateFormat       = "2006-01-02"
	legacyDateFormat = "01/02/2006"
)

// Coerce validates a stored text value against a field type and returns the
// string to keep. ok=false means the value cannot represent the type and the
// field must be dropped from the flow. Callers are expected to skip empty
// values before calling; Coerce itself never sees them during migration.
func Coerce(t FieldType, raw string) (string, bool) {
	switch t.Kind {
	case FieldInteger:
		if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return raw, true
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return strconv.FormatInt(int64(f), 10), true
		}
		return "", false
	case FieldFloat, FieldNumber:
		if _, err := strconv.ParseFloat(raw, 64); err == nil {
			return raw, true
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return strconv.FormatFloat(float64(n), 'g', -1, 64), true
		}
		return "", false
	case FieldCurrency:
		clean := strings.NewReplacer("$", "", ",", "").Replace(raw)
		if _, err := strconv.ParseFloat(clean, 64); err == nil {
			return clean, true
		}
		return "", false
	case FieldBoolean:
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "y":
			return "true", true
		case "false", "0", "no", "n":
			return "false", true
		}
		return "", false
	case FieldDate:
		if _, err := time.Parse(dateFormat, raw); err == nil {
			return raw, true
		}
		if d, err := time.Parse(legacyDateFormat, raw); err == nil {
			return d.Format(dateFormat), true
		}
		return "", false
	default:
		// Text and Select pass through unvalidated.
		return raw, true
	}
}

// FieldValue is the typed view of a stored text value, for consumption
// boundaries that want real types rather than strings.
type FieldValue struct {
	Kind  FieldKind
	Text  string
	Int   int64
	Float float64
	Bool  bool
	Date  time.Time
}

// ParseValue interprets a stored text value as its field type.
// Unlike Coerce it does not attempt cross-type conversion.
func ParseValue(t FieldType, raw string) (FieldValue, error) {
	switch t.Kind {
	case FieldInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return FieldValue{}, fmt.Errorf("parse integer %q: %w", raw, err)
		}
		return FieldValue{Kind: FieldInteger, Int: n}, nil
	case FieldFloat, FieldNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return FieldValue{}, fmt.Errorf("parse float %q: %w", raw, err)
		}
		return FieldValue{Kind: FieldFloat, Float: f}, nil
	case FieldCurrency:
		clean := strings.NewReplacer("$", "", ",", "").Replace(raw)
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return FieldValue{}, fmt.Errorf("parse currency %q: %w", raw, err)
		}
		return FieldValue{Kind: FieldCurrency, Float: f}, nil
	case FieldBoolean:
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "y":
			return FieldValue{Kind: FieldBoolean, Bool: true}, nil
		case "false", "0", "no", "n":
			return FieldValue{Kind: FieldBoolean, Bool: false}, nil
		}
		return FieldValue{}, fmt.Errorf("parse boolean %q", raw)
	case FieldDate:
		d, err := time.Parse(dateFormat, raw)
		if err != nil {
			return FieldValue{}, fmt.Errorf("parse date %q: %w", raw, err)
		}
		return FieldValue{Kind: FieldDate, Date: d}, nil
	default:
		return FieldValue{Kind: t.Kind, Text: raw}, nil
	}
}
