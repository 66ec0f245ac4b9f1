package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/raysh454/iro/internal/model"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantTime time.Time
		wantRaw  string
	}{
		{in: `"2025-03-01T12:00:00Z"`, wantTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), wantRaw: "2025-03-01T12:00:00Z"},
		{in: `"2025-03-01T12:00:00.250Z"`, wantTime: time.Date(2025, 3, 1, 12, 0, 0, 250e6, time.UTC), wantRaw: "2025-03-01T12:00:00.250Z"},
		{in: `"2025-03-01 12:00:00"`, wantTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), wantRaw: "2025-03-01 12:00:00"},
		{in: `"2025-03-01"`, wantTime: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), wantRaw: "2025-03-01"},
		{in: `"yesterday"`, wantRaw: "yesterday"},
		{in: `1700000000`, wantRaw: "1700000000"},
		{in: `null`, wantRaw: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			var ts model.Timestamp
			if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
				t.Fatalf("unmarshal should never fail, got %v", err)
			}
			if !ts.Time.Equal(tt.wantTime) {
				t.Errorf("time = %v, want %v", ts.Time, tt.wantTime)
			}
			if ts.Raw != tt.wantRaw {
				t.Errorf("raw = %q, want %q", ts.Raw, tt.wantRaw)
			}
		})
	}
}

func TestHistoryRecord_BadDateDoesNotFailList(t *testing.T) {
	t.Parallel()
	body := `{"success":true,"data":[
		{"id_transformacion":1,"id_imagen":7,"tipo":"blur","parametros":"{\"radius\":5}","orden":0,"fecha_creacion":"2025-03-01T12:00:00Z"},
		{"id_transformacion":2,"id_imagen":7,"tipo":"flip","parametros":"","orden":1,"fecha_creacion":"garbage"}
	]}`

	var resp model.HistoryListResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 records, got %d", len(resp.Data))
	}
	if resp.Data[0].Kind != "blur" || resp.Data[0].ParametersRaw != `{"radius":5}` {
		t.Errorf("unexpected first record %+v", resp.Data[0])
	}
	if !resp.Data[1].CreatedAt.IsZero() || resp.Data[1].CreatedAt.Raw != "garbage" {
		t.Errorf("bad date should decode to zero time keeping raw text: %+v", resp.Data[1].CreatedAt)
	}

	out, _ := json.Marshal(resp.Data[1].CreatedAt)
	if string(out) != `"garbage"` {
		t.Errorf("marshal should round-trip the raw text, got %s", out)
	}
}

func TestHistoryRecord_NonStringParametersDoNotFailList(t *testing.T) {
	t.Parallel()
	body := `{"success":true,"data":[
		{"id_transformacion":1,"id_imagen":7,"tipo":"blur","parametros":"{\"radius\":5}","orden":0},
		{"id_transformacion":2,"id_imagen":7,"tipo":"rotate","parametros":{"degrees": 90},"orden":1},
		{"id_transformacion":3,"id_imagen":7,"tipo":"crop","parametros":[10,20],"orden":2},
		{"id_transformacion":4,"id_imagen":7,"tipo":"brightness","parametros":15,"orden":3},
		{"id_transformacion":5,"id_imagen":7,"tipo":"flip","parametros":null,"orden":4}
	]}`

	var resp model.HistoryListResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []model.RawParams{`{"radius":5}`, `{"degrees": 90}`, `[10,20]`, `15`, ``}
	if len(resp.Data) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(resp.Data))
	}
	for i, w := range want {
		if resp.Data[i].ParametersRaw != w {
			t.Errorf("record %d parameters = %q, want %q", i, resp.Data[i].ParametersRaw, w)
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()
	tests := map[string]model.OutputFormat{
		"":         model.FormatOriginal,
		"Original": model.FormatOriginal,
		"keep":     model.FormatOriginal,
		"jpeg":     model.FormatJPG,
		" PNG ":    model.FormatPNG,
		"tiff":     model.FormatTIF,
	}
	for in, want := range tests {
		got, ok := model.ParseOutputFormat(in)
		if !ok || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := model.ParseOutputFormat("webp"); ok {
		t.Error("webp is not supported")
	}
	if model.FormatOriginal.IsConcrete() || !model.FormatPNG.IsConcrete() {
		t.Error("IsConcrete mismatch")
	}
}

func TestTransformation_Clone(t *testing.T) {
	t.Parallel()
	orig := model.Transformation{ID: "blur", Parameters: map[string]any{"radius": 3}}
	c := orig.Clone()
	c.Parameters["radius"] = 9

	if orig.Parameters["radius"] != 3 {
		t.Errorf("clone shares the parameter map: %v", orig.Parameters)
	}
	if (model.Transformation{ID: "flip"}).Clone().Parameters != nil {
		t.Error("nil parameters should stay nil")
	}
}

func TestFlexString(t *testing.T) {
	t.Parallel()
	var got struct {
		A model.FlexString `json:"a"`
		B model.FlexString `json:"b"`
		C model.FlexString `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"abc","b":42,"c":null}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.A != "abc" || got.B != "42" || got.C != "" {
		t.Errorf("unexpected values %+v", got)
	}
	if err := json.Unmarshal([]byte(`{"a":true}`), &got); err == nil {
		t.Error("booleans are not ids")
	}
}
