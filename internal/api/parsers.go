package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/nlmsend/internal/batchexecute"
)

// The host payloads are positional arrays without a schema. Each parser here
// is a pure function of the raw response text and falls back to an empty
// result when a field is missing or has an unexpected type.

// ParseNotebookList decodes a ListRecentlyViewedProjects response. Shared
// notebooks are dropped.
func ParseNotebookList(raw string) []Notebook {
	notebooks := []Notebook{}
	inner, err := batchexecute.DecodePayload(raw)
	if err != nil {
		return notebooks
	}
	items, ok := at(inner, 0).([]interface{})
	if !ok {
		return notebooks
	}
	for _, v := range items {
		item, ok := v.([]interface{})
		if !ok || len(item) < 3 {
			continue
		}
		if isShared(item) {
			continue
		}
		name := strings.TrimSpace(asString(at(item, 0)))
		if name == "" {
			name = DefaultNotebookName
		}
		emoji := asString(at(item, 3))
		if emoji == "" {
			emoji = DefaultEmoji
		}
		sources, _ := at(item, 1).([]interface{})
		notebooks = append(notebooks, Notebook{
			ID:          asString(at(item, 2)),
			Name:        name,
			SourceCount: len(sources),
			Emoji:       emoji,
		})
	}
	return notebooks
}

// sharedTag marks notebooks shared with, not owned by, the account.
const sharedTag = 3

func isShared(item []interface{}) bool {
	meta, ok := at(item, 5).([]interface{})
	if !ok || len(meta) == 0 {
		return false
	}
	n, ok := asInt(meta[0])
	return ok && n == sharedTag
}

// ParseNotebookDetail decodes a GetProject response.
func ParseNotebookDetail(raw string) NotebookDetail {
	empty := NotebookDetail{Sources: []Source{}}
	inner, err := batchexecute.DecodePayload(raw)
	if err != nil {
		return empty
	}
	nb, ok := at(inner, 0).([]interface{})
	if !ok {
		return empty
	}

	detail := NotebookDetail{
		ID:      asString(at(nb, 0)),
		Title:   asString(at(nb, 1)),
		Sources: []Source{},
	}
	entries, _ := at(nb, 3).([]interface{})
	for _, v := range entries {
		s, ok := v.([]interface{})
		if !ok || !truthy(at(s, 0)) {
			continue
		}
		title := asString(at(s, 2))
		if title == "" {
			title = DefaultSourceTitle
		}
		code, _ := asInt(at(s, 3, 0))
		status, _ := asInt(at(s, 4))
		var sourceURL *string
		if u := asString(at(s, 3, 1)); u != "" {
			sourceURL = &u
		}
		detail.Sources = append(detail.Sources, Source{
			ID:       firstString(s[0]),
			Title:    title,
			Type:     SourceTypeForCode(code),
			TypeCode: code,
			URL:      sourceURL,
			Status:   status,
		})
	}
	return detail
}

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// ExtractNotebookID returns the first UUID in a CreateProject response. It
// scans the raw text instead of the decoded payload, so it survives changes
// in where the id sits.
func ExtractNotebookID(raw string) (string, error) {
	for _, m := range uuidPattern.FindAllString(raw, -1) {
		if _, err := uuid.Parse(m); err == nil {
			return m, nil
		}
	}
	return "", ErrCreationFailed
}

// IsNotebookReady reports whether a GetProject status response shows the
// notebook's sources as ingested. The host renders a pending notebook with
// the id preceded by null inside the escaped payload, so readiness is the
// absence of that substring. This is a heuristic that breaks if the
// host's formatting changes.
func IsNotebookReady(raw, notebookID string) bool {
	return !strings.Contains(raw, `null,\"`+notebookID)
}

// at walks nested arrays, returning nil for any missing index.
func at(v interface{}, path ...int) interface{} {
	for _, i := range path {
		arr, ok := v.([]interface{})
		if !ok || i < 0 || i >= len(arr) {
			return nil
		}
		v = arr[i]
	}
	return v
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// firstString returns v if it is a string, or the first string found by
// descending into leading array elements.
func firstString(v interface{}) string {
	for {
		switch t := v.(type) {
		case string:
			return t
		case []interface{}:
			if len(t) == 0 {
				return ""
			}
			v = t[0]
		default:
			return ""
		}
	}
}

// truthy follows the host's loose notion of presence: null, false, 0 and ""
// are absent.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
