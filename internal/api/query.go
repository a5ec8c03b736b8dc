package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"datalogger/internal/report"
	"datalogger/internal/service"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// parseListParams: entityId, from, to (YYYY-MM-DD), limit/offset (или _limit/_offset), sort.
// Допустимая сортировка: timestamp / -timestamp.
func parseListParams(q url.Values) (service.RecordFilter, error) {
	f := service.RecordFilter{Limit: defaultLimit}

	lv := q.Get("_limit")
	if lv == "" {
		lv = q.Get("limit")
	}
	if lv != "" {
		n, err := strconv.Atoi(lv)
		if err != nil || n < 0 || n > maxLimit {
			return f, fmt.Errorf("limit must be an integer in [0, %d]", maxLimit)
		}
		f.Limit = n
	}

	ov := q.Get("_offset")
	if ov == "" {
		ov = q.Get("offset")
	}
	if ov != "" {
		n, err := strconv.Atoi(ov)
		if err != nil || n < 0 {
			return f, fmt.Errorf("offset must be a non-negative integer")
		}
		f.Offset = n
	}

	sv := strings.TrimSpace(q.Get("_sort"))
	if sv == "" {
		sv = strings.TrimSpace(q.Get("sort"))
	}
	switch strings.TrimPrefix(sv, "+") {
	case "":
	case "timestamp":
		f.Sort = "timestamp"
	case "-timestamp":
		f.Sort = "-timestamp"
	default:
		return f, fmt.Errorf("unsupported sort %q (allowed: timestamp|-timestamp)", sv)
	}

	var err error
	if f.From, err = report.ParseDate(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = report.ParseDate(q.Get("to")); err != nil {
		return f, err
	}
	f.EntityID = strings.TrimSpace(q.Get("entityId"))
	return f, nil
}
