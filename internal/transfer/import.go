package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"datalogger/internal/model"
)

// ImportError: файл не прошёл структурную проверку; состояние не менялось
type ImportError struct {
	Problems []string `json:"problems"`
}

func (e *ImportError) Error() string {
	return "invalid import file: " + strings.Join(e.Problems, "; ")
}

// MaxImportSize ограничивает размер входного файла.
const MaxImportSize = 32 << 20

type importWire struct {
	Config   json.RawMessage `json:"config"`
	Entities json.RawMessage `json:"entities"`
	Fields   json.RawMessage `json:"fields"`
	Records  json.RawMessage `json:"records"`
	// старые ключи локального хранилища
	AvailableFields json.RawMessage `json:"availableFields"`
	ProductionLogs  json.RawMessage `json:"productionLogs"`
}

type recordWire struct {
	ID        string          `json:"id"`
	EntityID  string          `json:"entityId"`
	Timestamp json.RawMessage `json:"timestamp"`
	Data      map[string]any  `json:"data"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func present(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// DecodeImport читает и строго проверяет снимок.
// Привязки сущностей к несуществующим полям отбрасываются,
// ключи данных записей по имени поля переводятся в id.
func DecodeImport(r io.Reader) (model.Snapshot, error) {
	var snap model.Snapshot
	body, err := io.ReadAll(io.LimitReader(r, MaxImportSize+1))
	if err != nil {
		return snap, err
	}
	if len(body) > MaxImportSize {
		return snap, &ImportError{Problems: []string{"file is too large"}}
	}

	var w importWire
	if err := json.Unmarshal(body, &w); err != nil {
		return snap, &ImportError{Problems: []string{"not a JSON object: " + err.Error()}}
	}
	var p problems

	if !present(w.Config) {
		p.add("config: missing")
	} else if err := json.Unmarshal(w.Config, &snap.Config); err != nil {
		p.add("config: must be an object")
	}

	fieldsRaw := w.Fields
	if !present(fieldsRaw) {
		fieldsRaw = w.AvailableFields
	}
	recordsRaw := w.Records
	if !present(recordsRaw) {
		recordsRaw = w.ProductionLogs
	}

	// проблемы конфига не мешают проверке массивов: отчёт содержит всё сразу
	shapeOK := true
	shapeOK = decodeArray(w.Entities, "entities", &snap.Entities, &p) && shapeOK
	shapeOK = decodeArray(fieldsRaw, "fields", &snap.Fields, &p) && shapeOK
	var recs []recordWire
	shapeOK = decodeArray(recordsRaw, "records", &recs, &p) && shapeOK
	if !shapeOK {
		return model.Snapshot{}, &ImportError{Problems: p}
	}

	fieldIDs := checkFields(snap.Fields, &p)
	checkEntities(snap.Entities, fieldIDs, &p)
	snap.Records = checkRecords(recs, snap, &p)
	if len(p) > 0 {
		return model.Snapshot{}, &ImportError{Problems: p}
	}
	if snap.Entities == nil {
		snap.Entities = []model.Entity{}
	}
	if snap.Fields == nil {
		snap.Fields = []model.Field{}
	}
	return snap, nil
}

func decodeArray[T any](raw json.RawMessage, name string, out *[]T, p *problems) bool {
	if !present(raw) {
		return true
	}
	if t := bytes.TrimSpace(raw); t[0] != '[' {
		p.add("%s: must be an array", name)
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		p.add("%s: %v", name, err)
		return false
	}
	return true
}

func checkFields(fields []model.Field, p *problems) map[string]bool {
	ids := make(map[string]bool, len(fields))
	names := map[string]bool{}
	for i := range fields {
		f := &fields[i]
		f.Name = strings.TrimSpace(f.Name)
		switch {
		case f.ID == "":
			p.add("fields[%d]: missing id", i)
		case ids[f.ID]:
			p.add("fields[%d]: duplicate id %q", i, f.ID)
		}
		ids[f.ID] = true
		if f.Name == "" {
			p.add("fields[%d]: missing name", i)
		} else if key := strings.ToLower(f.Name); names[key] {
			p.add("fields[%d]: duplicate name %q", i, f.Name)
		} else {
			names[key] = true
		}
		if f.Kind.Name == "" {
			p.add("fields[%d]: missing type", i)
		} else if err := f.Kind.Validate(); err != nil {
			p.add("fields[%d]: %v", i, err)
		}
	}
	return ids
}

func checkEntities(entities []model.Entity, fieldIDs map[string]bool, p *problems) {
	ids := map[string]bool{}
	names := map[string]bool{}
	for i := range entities {
		e := &entities[i]
		e.Name = strings.TrimSpace(e.Name)
		switch {
		case e.ID == "":
			p.add("entities[%d]: missing id", i)
		case ids[e.ID]:
			p.add("entities[%d]: duplicate id %q", i, e.ID)
		}
		ids[e.ID] = true
		if e.Name == "" {
			p.add("entities[%d]: missing name", i)
		} else if key := strings.ToLower(e.Name); names[key] {
			p.add("entities[%d]: duplicate name %q", i, e.Name)
		} else {
			names[key] = true
		}
		keep := make([]string, 0, len(e.AssociatedFieldIDs))
		seen := map[string]bool{}
		for _, fid := range e.AssociatedFieldIDs {
			if fieldIDs[fid] && !seen[fid] {
				keep = append(keep, fid)
				seen[fid] = true
			}
		}
		e.AssociatedFieldIDs = keep
	}
}

func checkRecords(recs []recordWire, snap model.Snapshot, p *problems) []model.Record {
	byName := make(map[string]string, len(snap.Fields))
	for _, f := range snap.Fields {
		byName[strings.ToLower(f.Name)] = f.ID
	}
	fieldIDs := make(map[string]bool, len(snap.Fields))
	for _, f := range snap.Fields {
		fieldIDs[f.ID] = true
	}

	out := make([]model.Record, 0, len(recs))
	ids := map[string]bool{}
	for i, rw := range recs {
		switch {
		case rw.ID == "":
			p.add("records[%d]: missing id", i)
		case ids[rw.ID]:
			p.add("records[%d]: duplicate id %q", i, rw.ID)
		}
		ids[rw.ID] = true
		if strings.TrimSpace(rw.EntityID) == "" {
			p.add("records[%d]: missing entityId", i)
		}
		ts, err := parseTimestamp(rw.Timestamp)
		if err != nil {
			p.add("records[%d]: %v", i, err)
		}
		data := make(map[string]any, len(rw.Data))
		for k, v := range rw.Data {
			if !fieldIDs[k] {
				if id, ok := byName[strings.ToLower(strings.TrimSpace(k))]; ok {
					if _, dup := rw.Data[id]; !dup {
						data[id] = v
					}
					continue
				}
			}
			data[k] = v
		}
		out = append(out, model.Record{
			ID:        rw.ID,
			EntityID:  rw.EntityID,
			Timestamp: ts,
			Data:      data,
			Version:   rw.Version,
			UpdatedAt: rw.UpdatedAt,
		})
	}
	return out
}

// parseTimestamp: RFC3339 строка или миллисекунды Unix
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if !present(raw) {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %q is not RFC3339", s)
		}
		return t.UTC().Truncate(time.Millisecond), nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("timestamp must be a string or epoch milliseconds")
}
