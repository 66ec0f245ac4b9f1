package selection

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/raysh454/iro/internal/model"
)

// ParamSpec bounds one parameter of a catalog entry. Numeric parameters are
// clamped to [Min, Max] and stored as integers; text parameters are truncated
// to MaxLen runes.
type ParamSpec struct {
	Key    string  `json:"key"`
	Text   bool    `json:"text,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
	MaxLen int     `json:"maxLen,omitempty"`
}

// Entry is an immutable catalog item.
type Entry struct {
	Transformation model.Transformation `json:"transformation"`
	Params         []ParamSpec          `json:"params,omitempty"`
}

// Catalog is the fixed set of transformations a user can pick from.
type Catalog struct {
	entries []Entry
	byID    map[string]int
}

// NewCatalog builds a catalog. Later entries with a duplicate id are ignored.
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(entries))}
	for _, e := range entries {
		if _, dup := c.byID[e.Transformation.ID]; dup {
			continue
		}
		c.byID[e.Transformation.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// DefaultCatalog returns the operations the backend supports.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Entry{Transformation: model.Transformation{ID: "grayscale", Name: "Grayscale", Kind: model.KindFilter}},
		Entry{Transformation: model.Transformation{ID: "flip", Name: "Flip horizontally", Kind: model.KindFilter}},
		Entry{Transformation: model.Transformation{ID: "flop", Name: "Flip vertically", Kind: model.KindFilter}},
		Entry{Transformation: model.Transformation{ID: "sharpen", Name: "Sharpen", Kind: model.KindFilter}},
		Entry{
			Transformation: model.Transformation{ID: "brightness", Name: "Brightness", Kind: model.KindAdjustment, Parameters: map[string]any{"value": 0}},
			Params:         []ParamSpec{{Key: "value", Min: -100, Max: 100}},
		},
		Entry{
			Transformation: model.Transformation{ID: "contrast", Name: "Contrast", Kind: model.KindAdjustment, Parameters: map[string]any{"value": 0}},
			Params:         []ParamSpec{{Key: "value", Min: -100, Max: 100}},
		},
		Entry{
			Transformation: model.Transformation{ID: "blur", Name: "Blur", Kind: model.KindAdjustment, Parameters: map[string]any{"radius": 0}},
			Params:         []ParamSpec{{Key: "radius", Min: 0, Max: 50}},
		},
		Entry{
			Transformation: model.Transformation{ID: "rotate", Name: "Rotate", Kind: model.KindAdjustment, Parameters: map[string]any{"degrees": 0}},
			Params:         []ParamSpec{{Key: "degrees", Min: 0, Max: 360}},
		},
		Entry{
			Transformation: model.Transformation{ID: "watermark", Name: "Watermark text", Kind: model.KindAdjustment, Parameters: map[string]any{"text": ""}},
			Params:         []ParamSpec{{Key: "text", Text: true, MaxLen: 30}},
		},
	)
}

// Lookup returns a clone of the entry's transformation.
func (c *Catalog) Lookup(id string) (model.Transformation, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Transformation{}, false
	}
	return c.entries[i].Transformation.Clone(), true
}

// Entries returns clones of every entry in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = Entry{
			Transformation: e.Transformation.Clone(),
			Params:         append([]ParamSpec(nil), e.Params...),
		}
	}
	return out
}

// Spec returns the bounds of parameter key on transformation id.
func (c *Catalog) Spec(id, key string) (ParamSpec, bool) {
	i, ok := c.byID[id]
	if !ok {
		return ParamSpec{}, false
	}
	for _, p := range c.entries[i].Params {
		if p.Key == key {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Normalize coerces v into the declared type of the parameter and applies its
// bounds. ok is false for undeclared parameters and values that cannot be
// read as the declared type.
func (c *Catalog) Normalize(id, key string, v any) (any, bool) {
	spec, ok := c.Spec(id, key)
	if !ok {
		return nil, false
	}
	if spec.Text {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if spec.MaxLen > 0 {
			r := []rune(s)
			if len(r) > spec.MaxLen {
				s = string(r[:spec.MaxLen])
			}
		}
		return s, true
	}

	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return nil, false
	}
	f = math.Max(spec.Min, math.Min(spec.Max, f))
	return int(math.Round(f)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
