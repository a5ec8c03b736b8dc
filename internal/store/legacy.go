package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// withIDs достаёт "id" из каждого тела; без id ключ позиционный и
// записывается в само тело, чтобы документ оставался адресуемым.
func withIDs(c Collection, bodies []json.RawMessage) []Document {
	out := make([]Document, 0, len(bodies))
	for i, b := range bodies {
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(b, &head)
		id := head.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", c, i+1)
			if patched, err := setKey(b, "id", id); err == nil {
				b = patched
			}
		}
		out = append(out, Document{ID: id, Body: b})
	}
	return out
}

func setKey(body json.RawMessage, key string, v any) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("not an object")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	obj[key] = raw
	return json.Marshal(obj)
}

// normalizeRecords приводит записи старого формата к текущему:
// ключи data по имени поля (без учёта регистра) становятся id поля,
// при наличии обоих ключей побеждает id; timestamp в миллисекундах Unix
// становится RFC3339.
func normalizeRecords(fields, records []Document) []Document {
	ids := make(map[string]bool, len(fields))
	byName := make(map[string]string, len(fields))
	for _, f := range fields {
		var head struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(f.Body, &head)
		ids[f.ID] = true
		if n := strings.ToLower(strings.TrimSpace(head.Name)); n != "" {
			byName[n] = f.ID
		}
	}
	out := make([]Document, 0, len(records))
	for _, r := range records {
		out = append(out, Document{ID: r.ID, Body: normalizeRecord(r.Body, ids, byName)})
	}
	return out
}

func normalizeRecord(body json.RawMessage, ids map[string]bool, byName map[string]string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return body
	}
	changed := false

	var data map[string]json.RawMessage
	if raw, ok := obj["data"]; ok && json.Unmarshal(raw, &data) == nil && data != nil {
		mapped := make(map[string]json.RawMessage, len(data))
		renamed := false
		for k, v := range data {
			if !ids[k] {
				if id, ok := byName[strings.ToLower(strings.TrimSpace(k))]; ok {
					if _, dup := data[id]; !dup {
						mapped[id] = v
					}
					renamed = true
					continue
				}
			}
			mapped[k] = v
		}
		if renamed {
			if b, err := json.Marshal(mapped); err == nil {
				obj["data"] = b
				changed = true
			}
		}
	}

	if raw, ok := obj["timestamp"]; ok {
		var ms int64
		if json.Unmarshal(raw, &ms) == nil {
			if b, err := json.Marshal(time.UnixMilli(ms).UTC()); err == nil {
				obj["timestamp"] = b
				changed = true
			}
		}
	}

	if !changed {
		return body
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return b
}
