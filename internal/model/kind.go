package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// KindName: дискриминатор типа поля
type KindName string

const (
	KindText   KindName = "text"
	KindNumber KindName = "number"
	KindSelect KindName = "select"
)

// MinSelectOptions: минимальное число вариантов у select
const MinSelectOptions = 2

// Kind: тип поля: Text, Number или Select(options).
// Options заполнен только у Select.
type Kind struct {
	Name    KindName
	Options []string
}

func Text() Kind   { return Kind{Name: KindText} }
func Number() Kind { return Kind{Name: KindNumber} }

func Select(options ...string) Kind {
	return Kind{Name: KindSelect, Options: append([]string(nil), options...)}
}

func (k Kind) IsNumber() bool { return k.Name == KindNumber }

// ParseKindName нормализует строку типа ("Number", " select ") в KindName.
func ParseKindName(s string) (KindName, error) {
	switch KindName(strings.ToLower(strings.TrimSpace(s))) {
	case KindText:
		return KindText, nil
	case KindNumber:
		return KindNumber, nil
	case KindSelect:
		return KindSelect, nil
	default:
		return "", fmt.Errorf("unknown field type %q (allowed: text|number|select)", s)
	}
}

var (
	ErrOptionsNotAllowed = errors.New("options are only allowed for select fields")
	ErrSelectOptions     = fmt.Errorf("select fields need at least %d distinct options", MinSelectOptions)
)

// Validate проверяет инварианты типа.
func (k Kind) Validate() error {
	switch k.Name {
	case KindText, KindNumber:
		if len(k.Options) > 0 {
			return ErrOptionsNotAllowed
		}
		return nil
	case KindSelect:
		seen := make(map[string]struct{}, len(k.Options))
		for _, o := range k.Options {
			o = strings.TrimSpace(o)
			if o == "" {
				return errors.New("select options must not be empty")
			}
			seen[o] = struct{}{}
		}
		if len(seen) < MinSelectOptions {
			return ErrSelectOptions
		}
		return nil
	default:
		_, err := ParseKindName(string(k.Name))
		return err
	}
}

// HasOption: строгое совпадение с одним из вариантов select.
func (k Kind) HasOption(v string) bool {
	for _, o := range k.Options {
		if o == v {
			return true
		}
	}
	return false
}

type fieldAlias Field

func (f Field) MarshalJSON() ([]byte, error) {
	type wire struct {
		fieldAlias
		Type    KindName `json:"type"`
		Options []string `json:"options,omitempty"`
	}
	return json.Marshal(wire{fieldAlias: fieldAlias(f), Type: f.Kind.Name, Options: f.Kind.Options})
}

func (f *Field) UnmarshalJSON(b []byte) error {
	type wire struct {
		fieldAlias
		Type    string   `json:"type"`
		Options []string `json:"options"`
	}
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*f = Field(w.fieldAlias)
	if strings.TrimSpace(w.Type) == "" {
		f.Kind = Kind{Options: w.Options}
		return nil
	}
	name, err := ParseKindName(w.Type)
	if err != nil {
		return err
	}
	f.Kind = Kind{Name: name, Options: w.Options}
	return nil
}
