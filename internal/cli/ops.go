package cli

import (
	"strconv"
	"strings"

	"github.com/raysh454/iro/internal/selection"
)

// opSpec is one parsed --op value: a catalog id and parameter overrides.
type opSpec struct {
	ID     string
	Params map[string]any
}

// parseOp reads "id" or "id:key=value,key=value". Numeric values are passed
// on as numbers and everything else as text; the catalog coerces them.
func parseOp(s string) (opSpec, error) {
	id, rest, _ := strings.Cut(strings.TrimSpace(s), ":")
	id = strings.TrimSpace(id)
	if id == "" {
		return opSpec{}, usagef("empty operation in %q", s)
	}
	op := opSpec{ID: id}
	if strings.TrimSpace(rest) == "" {
		return op, nil
	}
	op.Params = map[string]any{}
	for _, kv := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(kv, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return opSpec{}, usagef("parameter %q of %s is not key=value", kv, id)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			op.Params[k] = f
		} else {
			op.Params[k] = v
		}
	}
	return op, nil
}

// parseOps splits a ";" separated list of operations.
func parseOps(s string) ([]opSpec, error) {
	var out []opSpec
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		op, err := parseOp(part)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// parseImageOps reads an --image value "name=op;op".
func parseImageOps(s string) (string, []opSpec, error) {
	name, list, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, usagef("--image %q is not name=operations", s)
	}
	ops, err := parseOps(list)
	if err != nil {
		return "", nil, err
	}
	if len(ops) == 0 {
		return "", nil, usagef("--image %q names no operations", s)
	}
	return name, ops, nil
}

// applyOps selects ops on target and sets their parameters.
func applyOps(sel *selection.Model, target string, ops []opSpec) error {
	for _, op := range ops {
		if sel.IsSelected(op.ID, target) {
			return usagef("%s is listed twice", op.ID)
		}
		if _, ok := sel.Catalog().Lookup(op.ID); !ok {
			return usagef("unknown transformation %q", op.ID)
		}
		if !sel.Toggle(op.ID, target) {
			return usagef("cannot add %s: at most %d operations including the output format", op.ID, selection.MaxSlots)
		}
		for k, v := range op.Params {
			if !sel.UpdateParameter(op.ID, k, v, target) {
				return usagef("invalid parameter %s=%v for %s", k, v, op.ID)
			}
		}
	}
	return nil
}
