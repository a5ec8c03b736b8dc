// Package form строит описание динамической формы для сущности и
// собирает из неё значения, ключуя их по ID поля.
package form

import (
	"strings"

	"datalogger/internal/model"
)

type Input struct {
	FieldID  string         `json:"fieldId"`
	Name     string         `json:"name"`
	Type     model.KindName `json:"type"`
	Required bool           `json:"required"`
	Options  []string       `json:"options,omitempty"`
}

type Form struct {
	EntityID   string  `json:"entityId"`
	EntityName string  `json:"entityName"`
	Inputs     []Input `json:"inputs"`
}

// Build: по одному input на каждое привязанное поле, в порядке привязки.
// Поля, которых нет в fields (удалены), пропускаются.
func Build(e model.Entity, fields []model.Field) Form {
	byID := make(map[string]model.Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	f := Form{EntityID: e.ID, EntityName: e.Name, Inputs: make([]Input, 0, len(e.AssociatedFieldIDs))}
	for _, id := range e.AssociatedFieldIDs {
		fd, ok := byID[id]
		if !ok {
			continue
		}
		in := Input{FieldID: fd.ID, Name: fd.Name, Type: fd.Kind.Name, Required: fd.Required}
		switch fd.Kind.Name {
		case model.KindSelect:
			in.Options = append([]string(nil), fd.Kind.Options...)
		case model.KindText, model.KindNumber:
		}
		f.Inputs = append(f.Inputs, in)
	}
	return f
}

// Collect нормализует и проверяет присланные значения.
// Ключи: ID поля; старые клиенты шлют имя поля, оно принимается без учёта регистра.
// Неизвестные ключи отбрасываются.
func Collect(f Form, raw map[string]any) (map[string]any, []model.FieldError) {
	byName := make(map[string]string, len(f.Inputs))
	for _, in := range f.Inputs {
		byName[strings.ToLower(in.Name)] = in.FieldID
	}
	values := make(map[string]any, len(raw))
	for k, v := range raw {
		if id, ok := byName[strings.ToLower(strings.TrimSpace(k))]; ok {
			// явный ключ по ID важнее имени
			if _, dup := values[id]; !dup {
				values[id] = v
			}
			continue
		}
		values[k] = v
	}

	var errs []model.FieldError
	out := make(map[string]any, len(f.Inputs))
	for _, in := range f.Inputs {
		v, present := values[in.FieldID]
		if present && isBlank(v) {
			present = false
		}
		if !present {
			if in.Required {
				errs = append(errs, model.Ferr(model.ErrRequired, in.FieldID, "Field '"+in.Name+"' is required"))
			}
			continue
		}
		norm, fe := coerce(in, v)
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		out[in.FieldID] = norm
	}
	return out, errs
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}
