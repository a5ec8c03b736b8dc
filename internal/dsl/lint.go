package dsl

import (
	"fmt"
	"strings"

	"datalogger/internal/model"
	"datalogger/internal/reference"
)

type Issue struct {
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Pos     string `json:"pos,omitempty"` // file:line
}

func (i Issue) Error() string {
	if i.Pos != "" {
		return i.Pos + ": " + i.Message
	}
	return i.Message
}

// Коды проблем схемы
const (
	IssueUnknownType     = "unknown_type"
	IssueTooFewOptions   = "too_few_options"
	IssueUnknownCatalog  = "unknown_catalog"
	IssueOptionsConflict = "options_conflict"
	IssueUnknownField    = "unknown_field"
	IssueDuplicateField  = "duplicate_field"
	IssueDuplicateEntity = "duplicate_entity"
)

func pos(file string, line int) string {
	if file == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Resolve превращает FieldSpec в model.Kind, подставляя справочник для options=@name.
func Resolve(f FieldSpec, catalogs map[string]reference.OptionCatalog) (model.Kind, error) {
	name, err := model.ParseKindName(f.Type)
	if err != nil {
		return model.Kind{}, err
	}
	k := model.Kind{Name: name, Options: f.Options}
	if f.OptionsRef != "" {
		if len(f.Options) > 0 {
			return model.Kind{}, fmt.Errorf("field %q has both inline options and options=@%s", f.Name, f.OptionsRef)
		}
		cat, ok := catalogs[f.OptionsRef]
		if !ok {
			return model.Kind{}, fmt.Errorf("unknown option catalog %q", f.OptionsRef)
		}
		k.Options = cat.Values()
	}
	if err := k.Validate(); err != nil {
		return model.Kind{}, err
	}
	return k, nil
}

// Lint проверяет схему целиком и возвращает все найденные проблемы.
func Lint(s *Schema, catalogs map[string]reference.OptionCatalog) []Issue {
	var issues []Issue
	fieldSeen := map[string]bool{}

	for _, f := range s.Fields {
		p := pos(f.File, f.Line)
		key := strings.ToLower(strings.TrimSpace(f.Name))
		if fieldSeen[key] {
			issues = append(issues, Issue{Field: f.Name, Code: IssueDuplicateField, Pos: p,
				Message: fmt.Sprintf("field %q declared more than once", f.Name)})
		}
		fieldSeen[key] = true

		if _, err := model.ParseKindName(f.Type); err != nil {
			issues = append(issues, Issue{Field: f.Name, Code: IssueUnknownType, Pos: p, Message: err.Error()})
			continue
		}
		if f.OptionsRef != "" {
			if len(f.Options) > 0 {
				issues = append(issues, Issue{Field: f.Name, Code: IssueOptionsConflict, Pos: p,
					Message: "inline options and options=@catalog are mutually exclusive"})
				continue
			}
			if _, ok := catalogs[f.OptionsRef]; !ok {
				issues = append(issues, Issue{Field: f.Name, Code: IssueUnknownCatalog, Pos: p,
					Message: fmt.Sprintf("unknown option catalog %q", f.OptionsRef)})
				continue
			}
		}
		if _, err := Resolve(f, catalogs); err != nil {
			issues = append(issues, Issue{Field: f.Name, Code: IssueTooFewOptions, Pos: p, Message: err.Error()})
		}
	}

	entitySeen := map[string]bool{}
	for _, e := range s.Entities {
		p := pos(e.File, e.Line)
		key := strings.ToLower(strings.TrimSpace(e.Name))
		if entitySeen[key] {
			issues = append(issues, Issue{Entity: e.Name, Code: IssueDuplicateEntity, Pos: p,
				Message: fmt.Sprintf("entity %q declared more than once", e.Name)})
		}
		entitySeen[key] = true
		for _, fn := range e.Fields {
			if !fieldSeen[strings.ToLower(fn)] {
				issues = append(issues, Issue{Entity: e.Name, Field: fn, Code: IssueUnknownField, Pos: p,
					Message: fmt.Sprintf("entity %q references unknown field %q", e.Name, fn)})
			}
		}
	}
	return issues
}
