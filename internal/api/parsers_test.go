package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// wireResponse renders payload the way the host frames a batchexecute result.
func wireResponse(t *testing.T, rpcID string, payload interface{}) string {
	t.Helper()
	inner, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	outer, err := json.Marshal([]interface{}{[]interface{}{"wrb.fr", rpcID, string(inner), nil, nil, nil, "generic"}})
	if err != nil {
		t.Fatal(err)
	}
	return ")]}'\n\n" + strconv.Itoa(len(outer)) + "\n" + string(outer) + "\n25\n[[\"e\",4,null,null,237]]\n"
}

func ptr(s string) *string { return &s }

func TestParseNotebookList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Notebook
	}{
		{
			name: "single notebook",
			raw:  ")]}'\n\n27\n[[\"wrb.fr\",\"X\",\"[[[\\\"n1\\\",[1,2],\\\"id-123\\\",\\\"📔\\\",0,[1]]]]\",null,null,null,\"generic\"]]",
			want: []Notebook{{ID: "id-123", Name: "n1", SourceCount: 2, Emoji: "📔"}},
		},
		{
			name: "shared notebook filtered",
			raw:  ")]}'\n\n27\n[[\"wrb.fr\",\"X\",\"[[[\\\"n1\\\",[1,2],\\\"id-123\\\",\\\"📔\\\",0,[3]]]]\",null,null,null,\"generic\"]]",
			want: []Notebook{},
		},
		{
			name: "defaults and short tuples",
			raw:  ")]}'\n\n" + `[["wrb.fr","wXbhsf","[[[\"  \",null,\"id-1\"],[\"x\"],[\" Trimmed \",[],\"id-2\",\"🧪\",null,[]],[\"Other\",[[1]],\"id-3\",null,null,[3,1]]]]",null,null,null,"generic"]]`,
			want: []Notebook{
				{ID: "id-1", Name: DefaultNotebookName, SourceCount: 0, Emoji: DefaultEmoji},
				{ID: "id-2", Name: "Trimmed", SourceCount: 0, Emoji: "🧪"},
			},
		},
		{
			name: "no payload frame",
			raw:  ")]}'\n\n25\n[[\"e\",4,null,null,237]]",
			want: []Notebook{},
		},
		{
			name: "garbage",
			raw:  "<html>wrb.fr</html>",
			want: []Notebook{},
		},
		{
			name: "inner is not a list",
			raw:  `[["wrb.fr","wXbhsf","{\"a\":1}",null,null,null,"generic"]]`,
			want: []Notebook{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNotebookList(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseNotebookList mismatch (-want +got):\n%s", diff)
			}
			again := ParseNotebookList(tt.raw)
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("second parse differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestParseNotebookListSharedAnyOrder(t *testing.T) {
	own := []interface{}{"mine", []interface{}{}, "own-id", "📔", nil, []interface{}{1}}
	shared := []interface{}{"theirs", []interface{}{}, "shared-id", "📔", nil, []interface{}{3}}
	orders := [][]interface{}{
		{own, shared},
		{shared, own},
		{shared, own, shared},
	}
	for i, items := range orders {
		got := ParseNotebookList(wireResponse(t, "wXbhsf", []interface{}{items}))
		if len(got) != 1 || got[0].ID != "own-id" {
			t.Errorf("order %d: got %+v, want only own-id", i, got)
		}
	}
}

func TestParseNotebookDetail(t *testing.T) {
	payload := []interface{}{
		[]interface{}{
			"nb-1",
			"Reading list",
			nil,
			[]interface{}{
				[]interface{}{[]interface{}{"src-1"}, nil, "Go blog", []interface{}{1, "https://go.dev/blog/"}, 2},
				[]interface{}{"src-2", nil, nil, []interface{}{4, "https://youtu.be/abc"}},
				[]interface{}{"src-3", nil, "Notes", []interface{}{3}},
				[]interface{}{"src-4", nil, "Weird", []interface{}{42}, 1},
				[]interface{}{"src-5", nil, "No meta"},
				[]interface{}{nil, nil, "dropped"},
				[]interface{}{"", nil, "dropped"},
				"not a tuple",
			},
		},
	}
	got := ParseNotebookDetail(wireResponse(t, "rLM1Ne", payload))
	want := NotebookDetail{
		ID:    "nb-1",
		Title: "Reading list",
		Sources: []Source{
			{ID: "src-1", Title: "Go blog", Type: SourceTypeURL, TypeCode: 1, URL: ptr("https://go.dev/blog/"), Status: 2},
			{ID: "src-2", Title: DefaultSourceTitle, Type: SourceTypeYouTube, TypeCode: 4, URL: ptr("https://youtu.be/abc")},
			{ID: "src-3", Title: "Notes", Type: SourceTypeText, TypeCode: 3},
			{ID: "src-4", Title: "Weird", Type: SourceTypeUnknown, TypeCode: 42, Status: 1},
			{ID: "src-5", Title: "No meta", Type: SourceTypeUnknown},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseNotebookDetail mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNotebookDetailDegrades(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"no frame":       ")]}'\n\n25\n[[\"e\",4,null,null,237]]",
		"null inner":     `[["wrb.fr","rLM1Ne","[]",null,null,null,"generic"]]`,
		"sources absent": `[["wrb.fr","rLM1Ne","[[\"nb\",\"t\"]]",null,null,null,"generic"]]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			got := ParseNotebookDetail(raw)
			if got.Sources == nil || len(got.Sources) != 0 {
				t.Errorf("Sources = %#v, want empty non-nil", got.Sources)
			}
		})
	}
}

func TestSourceTypeForCode(t *testing.T) {
	want := map[int]SourceType{
		0: SourceTypeUnknown, 1: SourceTypeURL, 2: SourceTypeUnknown, 3: SourceTypeText,
		4: SourceTypeYouTube, 7: SourceTypePDF, 8: SourceTypeAudio, 99: SourceTypeUnknown, -1: SourceTypeUnknown,
	}
	for code, typ := range want {
		if got := SourceTypeForCode(code); got != typ {
			t.Errorf("SourceTypeForCode(%d) = %q, want %q", code, got, typ)
		}
	}
}

func TestExtractNotebookID(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "id in payload",
			raw:  `)]}'` + "\n\n" + `[["wrb.fr","CCqFvf","[\"\",null,\"` + id + `\"]",null,null,null,"generic"]]`,
			want: id,
		},
		{
			name: "upper case kept",
			raw:  "xx 0A1B2C3D-4E5F-6A7B-8C9D-0E1F2A3B4C5D yy",
			want: "0A1B2C3D-4E5F-6A7B-8C9D-0E1F2A3B4C5D",
		},
		{
			name:    "no id",
			raw:     `[["wrb.fr","CCqFvf","[]",null,null,null,"generic"]]`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractNotebookID(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrCreationFailed) {
					t.Fatalf("err = %v, want ErrCreationFailed", err)
				}
				if err.Error() != "Failed to create notebook" {
					t.Errorf("message = %q", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ExtractNotebookID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsNotebookReady(t *testing.T) {
	pending := wireResponse(t, "rLM1Ne", []interface{}{nil, "nb1"})
	ready := wireResponse(t, "rLM1Ne", []interface{}{[]interface{}{"Title", []interface{}{}, "nb1"}})
	if IsNotebookReady(pending, "nb1") {
		t.Error("pending response reported ready")
	}
	if !IsNotebookReady(ready, "nb1") {
		t.Error("ready response reported pending")
	}
	if !IsNotebookReady(pending, "other") {
		t.Error("pending marker for another notebook should not block")
	}
}
