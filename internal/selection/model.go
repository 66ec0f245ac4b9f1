// Package selection tracks which transformations the user wants applied to a
// set of images, either one shared list for every image (batch mode) or an
// independent list per image (individual mode), and turns that choice into the
// request the backend expects.
package selection

import (
	"fmt"
	"strings"
	"sync"

	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/signal"
)

// MaxSlots is the number of operations, transformations plus a concrete
// output format, the backend applies to one image.
const MaxSlots = 5

type Mode string

const (
	ModeBatch      Mode = "batch"
	ModeIndividual Mode = "individual"
)

// ParseMode accepts "batch" and "individual" (also "all" and "per-image").
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batch", "all":
		return ModeBatch, true
	case "individual", "per-image":
		return ModeIndividual, true
	}
	return "", false
}

// state is either *batchState or *individualState.
type state interface {
	mode() Mode
}

type batchState struct {
	transformations []model.Transformation
	format          model.OutputFormat
}

func (*batchState) mode() Mode { return ModeBatch }

// individualState keeps configs keyed by image id, plus the image order so
// requests are deterministic. Configs are replaced, never edited in place.
type individualState struct {
	order   []string
	configs map[string]model.ImageConfig
}

func (*individualState) mode() Mode { return ModeIndividual }

func newIndividualState(images []model.ImageRef) *individualState {
	st := &individualState{configs: make(map[string]model.ImageConfig, len(images))}
	for _, img := range images {
		st.order = append(st.order, img.ID)
		st.configs[img.ID] = model.ImageConfig{ImageID: img.ID, OutputFormat: model.FormatOriginal}
	}
	return st
}

// Model is the transformation selection for one configuration session.
// It is safe for concurrent use.
type Model struct {
	mu      sync.Mutex
	catalog *Catalog
	images  []model.ImageRef
	st      state
	rev     *signal.Value[uint64]
}

// New starts a session in batch mode over the selected images in images.
// A nil catalog means DefaultCatalog.
func New(catalog *Catalog, images []model.ImageRef) *Model {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Model{
		catalog: catalog,
		images:  selectedOnly(images),
		st:      &batchState{format: model.FormatOriginal},
		rev:     signal.New[uint64](0),
	}
}

func selectedOnly(images []model.ImageRef) []model.ImageRef {
	out := make([]model.ImageRef, 0, len(images))
	for _, img := range images {
		if img.Selected {
			out = append(out, img)
		}
	}
	return out
}

// Catalog returns the catalog the model draws from.
func (m *Model) Catalog() *Catalog { return m.catalog }

// Subscribe registers fn to run after every change.
func (m *Model) Subscribe(fn func()) (unsubscribe func()) {
	return m.rev.Subscribe(func(uint64) { fn() })
}

// changed must be called without m.mu held.
func (m *Model) changed() {
	m.rev.Update(func(n uint64) uint64 { return n + 1 })
}

// Mode returns the current mode.
func (m *Model) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.mode()
}

// Images returns the images being configured.
func (m *Model) Images() []model.ImageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ImageRef(nil), m.images...)
}

// SetImages replaces the tracked image set with the selected images in
// images. In individual mode configs of images that remain are kept, new
// images start empty and the rest are dropped.
func (m *Model) SetImages(images []model.ImageRef) {
	m.mu.Lock()
	m.images = selectedOnly(images)
	if st, ok := m.st.(*individualState); ok {
		next := newIndividualState(m.images)
		for _, id := range next.order {
			if cfg, ok := st.configs[id]; ok {
				next.configs[id] = cfg
			}
		}
		m.st = next
	}
	m.mu.Unlock()
	m.changed()
}

// SetMode switches between batch and individual configuration. Entering
// individual mode gives every image an empty config that keeps the original
// format; entering batch mode discards all per-image configs.
func (m *Model) SetMode(mode Mode) bool {
	m.mu.Lock()
	if m.st.mode() == mode {
		m.mu.Unlock()
		return false
	}
	switch mode {
	case ModeBatch:
		m.st = &batchState{format: model.FormatOriginal}
	case ModeIndividual:
		m.st = newIndividualState(m.images)
	default:
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()
	m.changed()
	return true
}

// Toggle removes transformation id from the target's list if present, and
// otherwise adds a clone of the catalog entry when a slot is free. A full
// list, an unknown id or an unknown target make it a no-op returning false.
// target is ignored in batch mode.
func (m *Model) Toggle(id, target string) bool {
	return m.mutate(target, func(list []model.Transformation, format model.OutputFormat) ([]model.Transformation, model.OutputFormat, bool) {
		if i := indexOf(list, id); i >= 0 {
			return without(list, i), format, true
		}
		if slotsUsed(list, format) >= MaxSlots {
			return list, format, false
		}
		t, ok := m.catalog.Lookup(id)
		if !ok {
			return list, format, false
		}
		next := make([]model.Transformation, len(list), len(list)+1)
		copy(next, list)
		return append(next, t), format, true
	})
}

// Remove drops transformation id from the target's list.
func (m *Model) Remove(id, target string) bool {
	return m.mutate(target, func(list []model.Transformation, format model.OutputFormat) ([]model.Transformation, model.OutputFormat, bool) {
		if i := indexOf(list, id); i >= 0 {
			return without(list, i), format, true
		}
		return list, format, false
	})
}

// SetOutputFormat replaces the output format choice. FormatOriginal costs no
// slot and a concrete format costs one, so switching from the original to a
// concrete format is refused when the transformations already fill every
// slot. In individual mode an empty target applies the format to every image,
// each checked on its own.
func (m *Model) SetOutputFormat(format model.OutputFormat, target string) bool {
	if format != model.FormatOriginal && !format.IsConcrete() {
		return false
	}
	apply := func(list []model.Transformation, prev model.OutputFormat) ([]model.Transformation, model.OutputFormat, bool) {
		if prev == format {
			return list, prev, false
		}
		if format.IsConcrete() && !prev.IsConcrete() && len(list) >= MaxSlots {
			return list, prev, false
		}
		return list, format, true
	}

	m.mu.Lock()
	st, individual := m.st.(*individualState)
	if !individual || target != "" {
		m.mu.Unlock()
		return m.mutate(target, apply)
	}

	changed := false
	for _, id := range st.order {
		cfg := st.configs[id]
		list, f, ok := apply(cfg.Transformations, cfg.OutputFormat)
		if ok {
			st.configs[id] = model.ImageConfig{ImageID: id, Transformations: list, OutputFormat: f}
			changed = true
		}
	}
	m.mu.Unlock()
	if changed {
		m.changed()
	}
	return changed
}

// UpdateParameter sets one parameter of a selected transformation. The
// value is coerced and bounded by the catalog's ParamSpec; undeclared keys
// and transformations that are not selected are ignored.
func (m *Model) UpdateParameter(id, key string, value any, target string) bool {
	v, ok := m.catalog.Normalize(id, key, value)
	if !ok {
		return false
	}
	return m.mutate(target, func(list []model.Transformation, format model.OutputFormat) ([]model.Transformation, model.OutputFormat, bool) {
		i := indexOf(list, id)
		if i < 0 {
			return list, format, false
		}
		next := make([]model.Transformation, len(list))
		copy(next, list)
		t := next[i].Clone()
		if t.Parameters == nil {
			t.Parameters = make(map[string]any, 1)
		}
		t.Parameters[key] = v
		next[i] = t
		return next, format, true
	})
}

type mutation func(list []model.Transformation, format model.OutputFormat) ([]model.Transformation, model.OutputFormat, bool)

// mutate runs fn against the list addressed by target and stores the result.
func (m *Model) mutate(target string, fn mutation) bool {
	m.mu.Lock()
	changed := false
	switch st := m.st.(type) {
	case *batchState:
		list, format, ok := fn(st.transformations, st.format)
		if ok {
			m.st = &batchState{transformations: list, format: format}
			changed = true
		}
	case *individualState:
		cfg, found := st.configs[target]
		if !found {
			break
		}
		list, format, ok := fn(cfg.Transformations, cfg.OutputFormat)
		if ok {
			st.configs[target] = model.ImageConfig{ImageID: target, Transformations: list, OutputFormat: format}
			changed = true
		}
	}
	m.mu.Unlock()
	if changed {
		m.changed()
	}
	return changed
}

// lookup returns the list and format addressed by target.
func (m *Model) lookup(target string) ([]model.Transformation, model.OutputFormat, bool) {
	switch st := m.st.(type) {
	case *batchState:
		return st.transformations, st.format, true
	case *individualState:
		cfg, ok := st.configs[target]
		return cfg.Transformations, cfg.OutputFormat, ok
	}
	return nil, "", false
}

// Transformations returns a copy of the target's selected transformations.
func (m *Model) Transformations(target string) []model.Transformation {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, _, _ := m.lookup(target)
	return cloneList(list)
}

// OutputFormat returns the target's output format.
func (m *Model) OutputFormat(target string) model.OutputFormat {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, f, ok := m.lookup(target)
	if !ok {
		return model.FormatOriginal
	}
	return f
}

// SlotsUsed counts the target's transformations plus one for a concrete
// output format.
func (m *Model) SlotsUsed(target string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, f, _ := m.lookup(target)
	return slotsUsed(list, f)
}

// CanAdd reports whether another transformation fits for target.
func (m *Model) CanAdd(target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, f, ok := m.lookup(target)
	return ok && slotsUsed(list, f) < MaxSlots
}

// IsSelected reports whether transformation id is in the target's list.
func (m *Model) IsSelected(id, target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, _, _ := m.lookup(target)
	return indexOf(list, id) >= 0
}

// Validation is the result of Validate. Missing names the images that still
// need at least one transformation in individual mode.
type Validation struct {
	Valid   bool     `json:"valid"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
}

// Validate checks the selection can be submitted. An output format alone is
// never enough: batch mode needs one transformation, individual mode needs
// one per image.
func (m *Model) Validate() Validation {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch st := m.st.(type) {
	case *batchState:
		if len(st.transformations) == 0 {
			return Validation{Message: fmt.Sprintf("select at least 1 transformation (at most %d operations including the output format)", MaxSlots)}
		}
	case *individualState:
		if len(st.order) == 0 {
			return Validation{Message: "no images selected"}
		}
		var missing []string
		for _, img := range m.images {
			if len(st.configs[img.ID].Transformations) == 0 {
				missing = append(missing, img.Name)
			}
		}
		if len(missing) > 0 {
			return Validation{
				Message: "missing configuration for: " + strings.Join(missing, ", "),
				Missing: missing,
			}
		}
	}
	return Validation{Valid: true, Message: "ready"}
}

// BuildRequest serializes the selection. Every transformation carries a
// concrete parameters object, empty when the operation takes none.
func (m *Model) BuildRequest() model.BatchTransformationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.images))
	for _, img := range m.images {
		ids = append(ids, img.ID)
	}

	switch st := m.st.(type) {
	case *individualState:
		configs := make([]model.ImageConfig, 0, len(st.order))
		for _, id := range st.order {
			cfg := st.configs[id]
			configs = append(configs, model.ImageConfig{
				ImageID:         id,
				Transformations: payloadList(cfg.Transformations),
				OutputFormat:    concreteOrEmpty(cfg.OutputFormat),
			})
		}
		return model.BatchTransformationRequest{ApplyToAll: false, ImageConfigs: configs, Images: ids}
	case *batchState:
		return model.BatchTransformationRequest{
			ApplyToAll:      true,
			Transformations: payloadList(st.transformations),
			OutputFormat:    concreteOrEmpty(st.format),
			Images:          ids,
		}
	}
	return model.BatchTransformationRequest{Images: ids}
}

// ImageView is one image's configuration in a View.
type ImageView struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Transformations []model.Transformation `json:"transformations"`
	OutputFormat    model.OutputFormat     `json:"outputFormat"`
	SlotsUsed       int                    `json:"slotsUsed"`
}

// View is a serializable snapshot of the model.
type View struct {
	Mode            Mode                   `json:"mode"`
	MaxSlots        int                    `json:"maxSlots"`
	Transformations []model.Transformation `json:"transformations,omitempty"`
	OutputFormat    model.OutputFormat     `json:"outputFormat,omitempty"`
	SlotsUsed       int                    `json:"slotsUsed"`
	Images          []ImageView            `json:"images"`
	Validation      Validation             `json:"validation"`
}

// View returns a snapshot suitable for rendering.
func (m *Model) View() View {
	validation := m.Validate()

	m.mu.Lock()
	defer m.mu.Unlock()
	v := View{Mode: m.st.mode(), MaxSlots: MaxSlots, Validation: validation}
	st, individual := m.st.(*individualState)
	if b, ok := m.st.(*batchState); ok {
		v.Transformations = cloneList(b.transformations)
		v.OutputFormat = b.format
		v.SlotsUsed = slotsUsed(b.transformations, b.format)
	}
	for _, img := range m.images {
		iv := ImageView{ID: img.ID, Name: img.Name}
		if individual {
			cfg := st.configs[img.ID]
			iv.Transformations = cloneList(cfg.Transformations)
			iv.OutputFormat = cfg.OutputFormat
			iv.SlotsUsed = slotsUsed(cfg.Transformations, cfg.OutputFormat)
		}
		v.Images = append(v.Images, iv)
	}
	return v
}

func slotsUsed(list []model.Transformation, format model.OutputFormat) int {
	n := len(list)
	if format.IsConcrete() {
		n++
	}
	return n
}

func indexOf(list []model.Transformation, id string) int {
	for i, t := range list {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func without(list []model.Transformation, i int) []model.Transformation {
	out := make([]model.Transformation, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

func cloneList(list []model.Transformation) []model.Transformation {
	out := make([]model.Transformation, len(list))
	for i, t := range list {
		out[i] = t.Clone()
	}
	return out
}

func payloadList(list []model.Transformation) []model.Transformation {
	out := cloneList(list)
	for i := range out {
		if out[i].Parameters == nil {
			out[i].Parameters = map[string]any{}
		}
	}
	return out
}

func concreteOrEmpty(f model.OutputFormat) model.OutputFormat {
	if f.IsConcrete() {
		return f
	}
	return ""
}
