package models

import (
	"encoding/json"
	"fmt"
	"slices"
)

// FieldKind enumerates the logical types a category field can take.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldInteger
	FieldFloat
	FieldCurrency
	FieldBoolean
	FieldDate
	FieldSelect

	// FieldNumber is the legacy alias of FieldFloat. It only exists so old
	// stored schemas can be decoded; the versioned migration rewrites it to
	// FieldFloat and nothing else should produce it.
	//
	// Deprecated: use FieldFloat.
	FieldNumber
)

var kindNames = map[FieldKind]string{
	FieldText:     "Text",
	FieldInteger:  "Integer",
	FieldFloat:    "Float",
	FieldCurrency: "Currency",
	FieldBoolean:  "Boolean",
	FieldDate:     "Date",
	FieldSelect:   "Select",
	FieldNumber:   "Number",
}

func (k FieldKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// FieldType is a tagged variant: a kind plus, for Select only, the list of
// allowed options.
type FieldType struct {
	Kind    FieldKind
	Options []string
}

func TextType() FieldType     { return FieldType{Kind: FieldText} }
func IntegerType() FieldType  { return FieldType{Kind: FieldInteger} }
func FloatType() FieldType    { return FieldType{Kind: FieldFloat} }
func CurrencyType() FieldType { return FieldType{Kind: FieldCurrency} }
func BooleanType() FieldType  { return FieldType{Kind: FieldBoolean} }
func DateType() FieldType     { return FieldType{Kind: FieldDate} }

func SelectType(options ...string) FieldType {
	return FieldType{Kind: FieldSelect, Options: options}
}

// Equal reports whether two field types are the same, including Select
// options. A changed option list counts as a type change for schema diffing.
func (t FieldType) Equal(other FieldType) bool {
	return t.Kind == other.Kind && slices.Equal(t.Options, other.Options)
}

// MarshalJSON keeps the stored wire format: a bare string token for scalar
// kinds, {"Select": [...]} for selects.
func (t FieldType) MarshalJSON() ([]byte, error) {
	if t.Kind == FieldSelect {
		return json.Marshal(map[string][]string{"Select": t.Options})
	}
	name, ok := kindNames[t.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown field kind %d", int(t.Kind))
	}
	return json.Marshal(name)
}

func (t *FieldType) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		for kind, name := range kindNames {
			if name == token {
				t.Kind = kind
				t.Options = nil
				return nil
			}
		}
		return fmt.Errorf("unknown field type %q", token)
	}

	var tagged map[string][]string
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("invalid field type: %s", data)
	}
	options, ok := tagged["Select"]
	if !ok || len(tagged) != 1 {
		return fmt.Errorf("invalid field type: %s", data)
	}
	t.Kind = FieldSelect
	t.Options = options
	return nil
}
