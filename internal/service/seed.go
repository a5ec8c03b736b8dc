package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"datalogger/internal/dsl"
	"datalogger/internal/reference"
	"datalogger/internal/store"
)

// SeedError: схема не прошла линт, ничего не применено
type SeedError struct {
	Issues []dsl.Issue
}

func (e *SeedError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Error())
	}
	return "seed schema has issues: " + strings.Join(parts, "; ")
}

type SeedResult struct {
	FieldsCreated   []string `json:"fieldsCreated"`
	EntitiesCreated []string `json:"entitiesCreated"`
	Skipped         []string `json:"skipped"`
	ConfigApplied   bool     `json:"configApplied"`
}

// ApplySeed создаёт недостающие поля и сущности по имени; существующие не трогает.
// Конфиг из схемы записывается только если его ещё нет.
func (s *Service) ApplySeed(ctx context.Context, sc *dsl.Schema, catalogs map[string]reference.OptionCatalog) (SeedResult, error) {
	var res SeedResult
	if issues := dsl.Lint(sc, catalogs); len(issues) > 0 {
		return res, &SeedError{Issues: issues}
	}

	if len(sc.Config) > 0 {
		_, err := s.config.Get(ctx, store.ConfigDocID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			cfg := defaultConfig
			if v := sc.Config["title"]; v != "" {
				cfg.Title = v
			}
			cfg.Description = sc.Config["description"]
			cfg.EntityTypeName = sc.Config["entitytypename"]
			if _, err := s.UpdateConfig(ctx, cfg); err != nil {
				return res, err
			}
			res.ConfigApplied = true
		case err != nil:
			return res, s.fail("get config", err)
		}
	}

	byName := map[string]string{}
	for _, spec := range sc.Fields {
		existing, ok, err := s.FindFieldByName(ctx, spec.Name)
		if err != nil {
			return res, err
		}
		if ok {
			byName[strings.ToLower(spec.Name)] = existing.ID
			res.Skipped = append(res.Skipped, "field "+spec.Name)
			continue
		}
		k, err := dsl.Resolve(spec, catalogs)
		if err != nil {
			return res, fmt.Errorf("field %s: %w", spec.Name, err)
		}
		f, err := s.CreateField(ctx, FieldInput{
			Name:         spec.Name,
			Type:         string(k.Name),
			Options:      k.Options,
			Required:     spec.Flag("required"),
			ShowInTable:  spec.Flag("table"),
			ShowInReport: spec.Flag("report"),
		})
		if err != nil {
			return res, fmt.Errorf("field %s: %w", spec.Name, err)
		}
		byName[strings.ToLower(spec.Name)] = f.ID
		res.FieldsCreated = append(res.FieldsCreated, f.Name)
	}

	for _, spec := range sc.Entities {
		_, ok, err := s.FindEntityByName(ctx, spec.Name)
		if err != nil {
			return res, err
		}
		if ok {
			res.Skipped = append(res.Skipped, "entity "+spec.Name)
			continue
		}
		ids := make([]string, 0, len(spec.Fields))
		for _, fn := range spec.Fields {
			ids = append(ids, byName[strings.ToLower(fn)])
		}
		e, err := s.CreateEntity(ctx, EntityInput{Name: spec.Name, FieldIDs: ids})
		if err != nil {
			return res, fmt.Errorf("entity %s: %w", spec.Name, err)
		}
		res.EntitiesCreated = append(res.EntitiesCreated, e.Name)
	}

	s.log.Info("seed applied",
		zap.Int("fields_created", len(res.FieldsCreated)),
		zap.Int("entities_created", len(res.EntitiesCreated)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}
