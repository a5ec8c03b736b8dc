package form

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"datalogger/internal/model"
)

func coerce(in Input, v any) (any, *model.FieldError) {
	switch in.Type {
	case model.KindText:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, mismatch(in, err)
		}
		return s, nil
	case model.KindNumber:
		n, err := ToNumber(v)
		if err != nil {
			return nil, mismatch(in, err)
		}
		return n, nil
	case model.KindSelect:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, mismatch(in, err)
		}
		for _, o := range in.Options {
			if s == o {
				return s, nil
			}
		}
		fe := model.Ferr(model.ErrOptionInvalid, in.FieldID, "Invalid value for '"+in.Name+"'")
		return nil, &fe
	default:
		fe := model.Ferr(model.ErrTypeMismatch, in.FieldID, "Field '"+in.Name+"' has unknown type")
		return nil, &fe
	}
}

func mismatch(in Input, err error) *model.FieldError {
	fe := model.Ferr(model.ErrTypeMismatch, in.FieldID, "Field '"+in.Name+"' "+err.Error())
	return &fe
}

func toStringStrict(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	default:
		return "", errors.New("must be string")
	}
}

var errNotNumber = errors.New("must be number")

// ToNumber: число из JSON-значения или строки; NaN/Inf не допускаются.
func ToNumber(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, errNotNumber
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errNotNumber
		}
		f = n
	default:
		return 0, errNotNumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumber
	}
	return f, nil
}
