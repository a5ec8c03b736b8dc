package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"datalogger/internal/model"
	"datalogger/internal/report"
)

// Action: именованная операция, не зависящая от транспорта
type Action string

const (
	ActionEntityCreate Action = "entity.create"
	ActionEntityUpdate Action = "entity.update"
	ActionEntityDelete Action = "entity.delete"
	ActionFieldCreate  Action = "field.create"
	ActionFieldUpdate  Action = "field.update"
	ActionFieldDelete  Action = "field.delete"
	ActionRecordCreate Action = "record.create"
	ActionRecordUpdate Action = "record.update"
	ActionRecordDelete Action = "record.delete"
	ActionReportRun    Action = "report.run"
	ActionConfigUpdate Action = "config.update"
)

var ErrUnknownAction = errors.New("unknown action")

type handler func(ctx context.Context, s *Service, payload json.RawMessage) (any, error)

// полезная нагрузка для операций над существующим объектом
type byID struct {
	ID string `json:"id"`
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(payload)) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return v, invalid(model.Ferr(model.ErrTypeMismatch, "payload", "invalid payload: "+err.Error()))
	}
	return v, nil
}

var dispatch = map[Action]handler{
	ActionEntityCreate: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[EntityInput](p)
		if err != nil {
			return nil, err
		}
		return s.CreateEntity(ctx, in)
	},
	ActionEntityUpdate: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[struct {
			byID
			EntityInput
		}](p)
		if err != nil {
			return nil, err
		}
		return s.UpdateEntity(ctx, in.ID, in.EntityInput)
	},
	ActionEntityDelete: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[byID](p)
		if err != nil {
			return nil, err
		}
		return nil, s.DeleteEntity(ctx, in.ID)
	},
	ActionFieldCreate: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[FieldInput](p)
		if err != nil {
			return nil, err
		}
		return s.CreateField(ctx, in)
	},
	ActionFieldUpdate: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[struct {
			byID
			FieldInput
		}](p)
		if err != nil {
			return nil, err
		}
		return s.UpdateField(ctx, in.ID, in.FieldInput)
	},
	ActionFieldDelete: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[byID](p)
		if err != nil {
			return nil, err
		}
		return nil, s.DeleteField(ctx, in.ID)
	},
	ActionRecordCreate: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[RecordInput](p)
		if err != nil {
			return nil, err
		}
		return s.CreateRecord(ctx, in)
	},
	ActionRecordUpdate: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[struct {
			byID
			RecordInput
		}](p)
		if err != nil {
			return nil, err
		}
		return s.UpdateRecord(ctx, in.ID, in.RecordInput)
	},
	ActionRecordDelete: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		in, err := decode[byID](p)
		if err != nil {
			return nil, err
		}
		return nil, s.DeleteRecord(ctx, in.ID)
	},
	ActionReportRun: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		q, err := decode[report.Query](p)
		if err != nil {
			return nil, err
		}
		return s.RunReport(ctx, q)
	},
	ActionConfigUpdate: func(ctx context.Context, s *Service, p json.RawMessage) (any, error) {
		c, err := decode[model.Config](p)
		if err != nil {
			return nil, err
		}
		return s.UpdateConfig(ctx, c)
	},
}

// Do выполняет действие по имени.
func (s *Service) Do(ctx context.Context, a Action, payload json.RawMessage) (any, error) {
	h, ok := dispatch[a]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, a)
	}
	return h(ctx, s, payload)
}

// Actions: список поддерживаемых действий (по алфавиту).
func Actions() []Action {
	out := make([]Action, 0, len(dispatch))
	for a := range dispatch {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
