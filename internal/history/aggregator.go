// Package history turns the flat list of transformation records returned by
// the backend into per-image groups for chronological display.
package history

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/signal"
)

var ErrRecordNotFound = errors.New("history: record not found")

// Status is the state of the most recent history fetch.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Group is every record of one image, in pipeline order.
type Group struct {
	ImageID             int64                               `json:"imageId"`
	Records             []model.TransformationHistoryRecord `json:"records"`
	MostRecentCreatedAt time.Time                           `json:"mostRecentCreatedAt"`
}

// GroupRecords returns records ordered by Order ascending, stable on ties, in groups
// ordered by their newest record first and then by image id descending.
func GroupRecords(records []model.TransformationHistoryRecord) []Group {
	index := make(map[int64]int)
	var groups []Group
	for _, r := range records {
		i, ok := index[r.ImageID]
		if !ok {
			i = len(groups)
			index[r.ImageID] = i
			groups = append(groups, Group{ImageID: r.ImageID})
		}
		g := &groups[i]
		g.Records = append(g.Records, r)
		if r.CreatedAt.Time.After(g.MostRecentCreatedAt) {
			g.MostRecentCreatedAt = r.CreatedAt.Time
		}
	}

	for i := range groups {
		recs := groups[i].Records
		sort.SliceStable(recs, func(a, b int) bool { return recs[a].Order < recs[b].Order })
	}
	sort.SliceStable(groups, func(a, b int) bool {
		ta, tb := groups[a].MostRecentCreatedAt, groups[b].MostRecentCreatedAt
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return groups[a].ImageID > groups[b].ImageID
	})
	return groups
}

// Aggregator holds the last fetched record list, the groups derived from it
// and the fetch status. Every change recomputes the groups from the flat list.
// It is safe for concurrent use.
type Aggregator struct {
	mu      sync.RWMutex
	records []model.TransformationHistoryRecord
	groups  []Group
	status  Status
	errMsg  string
	rev     *signal.Value[uint64]
}

func NewAggregator() *Aggregator {
	return &Aggregator{status: StatusIdle, rev: signal.New[uint64](0)}
}

// Subscribe registers fn to run after every change.
func (a *Aggregator) Subscribe(fn func()) (unsubscribe func()) {
	return a.rev.Subscribe(func(uint64) { fn() })
}

func (a *Aggregator) changed() {
	a.rev.Update(func(n uint64) uint64 { return n + 1 })
}

// Ingest replaces the record list, regroups it and marks the history ready.
func (a *Aggregator) Ingest(records []model.TransformationHistoryRecord) []Group {
	flat := append([]model.TransformationHistoryRecord(nil), records...)
	groups := GroupRecords(flat)

	a.mu.Lock()
	a.records = flat
	a.groups = groups
	a.status = StatusReady
	a.errMsg = ""
	a.mu.Unlock()

	a.changed()
	return cloneGroups(groups)
}

// RemoveRecord drops the record with transformationID and regroups the rest.
// ok is false when no such record exists.
func (a *Aggregator) RemoveRecord(transformationID int64) (groups []Group, ok bool) {
	groups, n := a.RemoveRecords([]int64{transformationID})
	return groups, n > 0
}

// RemoveRecords drops every record whose id is in ids and reports how many
// were removed.
func (a *Aggregator) RemoveRecords(ids []int64) ([]Group, int) {
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	a.mu.Lock()
	kept := make([]model.TransformationHistoryRecord, 0, len(a.records))
	for _, r := range a.records {
		if _, gone := drop[r.TransformationID]; !gone {
			kept = append(kept, r)
		}
	}
	removed := len(a.records) - len(kept)
	if removed == 0 {
		groups := cloneGroups(a.groups)
		a.mu.Unlock()
		return groups, 0
	}
	a.records = kept
	a.groups = GroupRecords(kept)
	groups := cloneGroups(a.groups)
	a.mu.Unlock()

	a.changed()
	return groups, removed
}

// MarkLoading moves the status to loading. The previous groups stay visible.
func (a *Aggregator) MarkLoading() {
	a.mu.Lock()
	a.status = StatusLoading
	a.mu.Unlock()
	a.changed()
}

// MarkFailed moves the status to error with msg. The next Ingest clears it.
func (a *Aggregator) MarkFailed(msg string) {
	a.mu.Lock()
	a.status = StatusError
	a.errMsg = msg
	a.mu.Unlock()
	a.changed()
}

// Reset forgets every record and returns to idle.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.records = nil
	a.groups = nil
	a.status = StatusIdle
	a.errMsg = ""
	a.mu.Unlock()
	a.changed()
}

func (a *Aggregator) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Err returns the message of the last failed fetch, or "".
func (a *Aggregator) Err() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errMsg
}

func (a *Aggregator) Records() []model.TransformationHistoryRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]model.TransformationHistoryRecord(nil), a.records...)
}

func (a *Aggregator) Groups() []Group {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneGroups(a.groups)
}

// Group returns the group of imageID.
func (a *Aggregator) Group(imageID int64) (Group, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, g := range a.groups {
		if g.ImageID == imageID {
			return cloneGroup(g), true
		}
	}
	return Group{}, false
}

// Record returns the record with transformationID.
func (a *Aggregator) Record(transformationID int64) (model.TransformationHistoryRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, r := range a.records {
		if r.TransformationID == transformationID {
			return r, nil
		}
	}
	return model.TransformationHistoryRecord{}, ErrRecordNotFound
}

func cloneGroup(g Group) Group {
	g.Records = append([]model.TransformationHistoryRecord(nil), g.Records...)
	return g
}

func cloneGroups(groups []Group) []Group {
	if groups == nil {
		return nil
	}
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = cloneGroup(g)
	}
	return out
}
