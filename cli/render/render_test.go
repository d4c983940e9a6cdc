package render

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{" table ", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if err != nil && !strings.Contains(err.Error(), "json, table, or yaml") {
				t.Errorf("error should list valid formats: %v", err)
			}
		})
	}
}

func TestDefaultFormat_NotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := DefaultFormat(f); got != FormatJSON {
		t.Errorf("DefaultFormat(file) = %v, want json", got)
	}
}

type usage struct {
	UsedBytes int64     `json:"used_bytes"`
	CapBytes  int64     `json:"cap_bytes"`
	At        time.Time `json:"at"`
	hidden    string
}

func render(t *testing.T, format Format, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewRendererWithWriter(format, &buf).Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return buf.String()
}

func TestRenderer_JSONAndYAML(t *testing.T) {
	data := map[string]int{"used_bytes": 42}
	if got := render(t, FormatJSON, data); !strings.Contains(got, `"used_bytes": 42`) {
		t.Errorf("json output: %s", got)
	}
	if got := render(t, FormatYAML, data); !strings.Contains(got, "used_bytes: 42") {
		t.Errorf("yaml output: %s", got)
	}
}

func TestRenderer_Table_Struct(t *testing.T) {
	at := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	got := render(t, FormatTable, &usage{UsedBytes: 10, CapBytes: 100, At: at, hidden: "x"})
	for _, want := range []string{"used_bytes:", "10", "cap_bytes:", "100", "2026-03-02T03:00:00Z"} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q: %s", want, got)
		}
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("unexported field rendered: %s", got)
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	type server struct {
		Token string `json:"token"`
		Discs int    `json:"discs"`
	}
	got := render(t, FormatTable, []server{{"a", 1}, {"b", 2}})
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got:\n%s", got)
	}
	if !strings.HasPrefix(lines[0], "token") || !strings.Contains(lines[0], "discs") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestRenderer_Table_EmptySlice(t *testing.T) {
	if got := render(t, FormatTable, []string{}); !strings.Contains(got, "(no results)") {
		t.Errorf("empty slice output: %s", got)
	}
}

func TestRenderer_Table_MapSorted(t *testing.T) {
	got := render(t, FormatTable, map[string]int{"b": 2, "a": 1, "c": 3})
	if strings.Index(got, "a:") > strings.Index(got, "b:") || strings.Index(got, "b:") > strings.Index(got, "c:") {
		t.Errorf("map keys not sorted: %s", got)
	}
}

type opRows [][]string

func (opRows) Headers() []string  { return []string{"operation", "total"} }
func (r opRows) Rows() [][]string { return r }

func TestRenderer_Table_Tabular(t *testing.T) {
	got := render(t, FormatTable, opRows{{"register", "3"}, {"create_disc", "7"}})
	if !strings.HasPrefix(got, "operation") || !strings.Contains(got, "create_disc") {
		t.Errorf("tabular output: %s", got)
	}
	if got := render(t, FormatTable, opRows{}); !strings.Contains(got, "(no results)") {
		t.Errorf("empty tabular output: %s", got)
	}
}

func TestRenderTUI_Unsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatTable, &bytes.Buffer{})
	if err := r.RenderTUI("sweep", nil); err == nil {
		t.Error("expected error for unsupported view")
	}
}
