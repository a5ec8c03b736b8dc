package service

import (
	"context"

	"datalogger/internal/model"
	"datalogger/internal/report"
)

// RunReport считает отчёт по текущему состоянию. Ошибки запроса: *report.Error.
func (s *Service) RunReport(ctx context.Context, q report.Query) (*report.Report, error) {
	ents, err := s.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := s.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.List(ctx)
	if err != nil {
		return nil, s.fail("list records", err)
	}
	return s.engine().Run(q, ents, fields, recs)
}

// ReportFields: числовые поля, помеченные showInReport.
func (s *Service) ReportFields(ctx context.Context) ([]model.Field, error) {
	all, err := s.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Field, 0, len(all))
	for _, f := range all {
		if f.ShowInReport && f.Kind.IsNumber() {
			out = append(out, f)
		}
	}
	return out, nil
}
