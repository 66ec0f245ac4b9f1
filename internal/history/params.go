package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/raysh454/iro/internal/model"
)

// ParamsKind tells how a record's stored parameters should be displayed.
type ParamsKind string

const (
	ParamsEmpty      ParamsKind = "empty"      // nothing stored
	ParamsDefault    ParamsKind = "default"    // an empty object
	ParamsStructured ParamsKind = "structured" // decodable JSON
	ParamsText       ParamsKind = "text"       // anything else, kept verbatim
)

// Parameters is the display form of TransformationHistoryRecord.ParametersRaw.
type Parameters struct {
	Kind ParamsKind `json:"kind"`
	// Values is set for structured objects.
	Values map[string]any `json:"values,omitempty"`
	// Value is set for structured non-object JSON such as arrays or numbers.
	Value any    `json:"value,omitempty"`
	Raw   string `json:"raw"`
}

// ParametersOf decodes the record's parameters. Text that is not JSON is
// returned unchanged as ParamsText.
func ParametersOf(r model.TransformationHistoryRecord) Parameters {
	return ParseParameters(string(r.ParametersRaw))
}

// ParseParameters is ParametersOf for a bare string.
func ParseParameters(raw string) Parameters {
	p := Parameters{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		p.Kind = ParamsEmpty
		return p
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		p.Kind = ParamsText
		return p
	}

	switch val := v.(type) {
	case nil:
		// a stored "null" is shown as written
		p.Kind = ParamsText
		return p
	case []any:
		if len(val) == 0 {
			p.Kind = ParamsDefault
			return p
		}
	}

	if obj, ok := v.(map[string]any); ok {
		if len(obj) == 0 {
			p.Kind = ParamsDefault
			return p
		}
		p.Kind = ParamsStructured
		p.Values = obj
		return p
	}
	p.Kind = ParamsStructured
	p.Value = v
	return p
}

// Display renders the parameters as one line of text.
func (p Parameters) Display() string {
	switch p.Kind {
	case ParamsEmpty:
		return "no parameters"
	case ParamsDefault:
		return "default configuration"
	case ParamsStructured:
		if p.Values == nil {
			return compact(p.Value)
		}
		keys := make([]string, 0, len(p.Values))
		for k := range p.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, compact(p.Values[k]))
		}
		return strings.Join(parts, ", ")
	}
	return p.Raw
}

func compact(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(buf.String())
}
