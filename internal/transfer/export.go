// Package transfer: экспорт/импорт полного состояния и архивирование выгрузок.
package transfer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"datalogger/internal/model"
)

const DefaultPrefix = "datalogger-export"

// ExportJSON пишет снимок с отступами.
func ExportJSON(w io.Writer, snap model.Snapshot) error {
	if snap.Entities == nil {
		snap.Entities = []model.Entity{}
	}
	if snap.Fields == nil {
		snap.Fields = []model.Field{}
	}
	if snap.Records == nil {
		snap.Records = []model.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// FileName: имя файла выгрузки с меткой времени (UTC).
func FileName(prefix, ext string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%s.%s", prefix, now.UTC().Format("20060102-150405"), ext)
}

// ExportCSV: колонки id, entity, timestamp и ключи данных первой записи.
// Ключи упорядочены как поля в снимке, заголовок: имя поля, если оно известно.
func ExportCSV(w io.Writer, snap model.Snapshot) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "entity", "timestamp"}
	var keys []string
	if len(snap.Records) > 0 {
		keys = dataKeys(snap.Records[0].Data, snap.Fields)
	}
	names := make(map[string]string, len(snap.Fields))
	for _, f := range snap.Fields {
		names[f.ID] = f.Name
	}
	for _, k := range keys {
		if n, ok := names[k]; ok {
			header = append(header, n)
		} else {
			header = append(header, k)
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	entityNames := make(map[string]string, len(snap.Entities))
	for _, e := range snap.Entities {
		entityNames[e.ID] = e.Name
	}
	for _, r := range snap.Records {
		ent := entityNames[r.EntityID]
		if ent == "" {
			ent = r.EntityID
		}
		row := []string{r.ID, ent, r.Timestamp.UTC().Format(time.RFC3339Nano)}
		for _, k := range keys {
			row = append(row, cell(r.Data[k]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func dataKeys(data map[string]any, fields []model.Field) []string {
	pos := make(map[string]int, len(fields))
	for i, f := range fields {
		pos[f.ID] = i
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, iok := pos[keys[i]]
		pj, jok := pos[keys[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
