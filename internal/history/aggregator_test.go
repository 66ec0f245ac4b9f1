package history_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/raysh454/iro/internal/history"
	"github.com/raysh454/iro/internal/model"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id, image int64, order int, at int) model.TransformationHistoryRecord {
	return model.TransformationHistoryRecord{
		TransformationID: id,
		ImageID:          image,
		Kind:             "grayscale",
		Order:            order,
		CreatedAt:        model.NewTimestamp(base.Add(time.Duration(at) * time.Second)),
	}
}

func orders(g history.Group) []int {
	out := make([]int, len(g.Records))
	for i, r := range g.Records {
		out[i] = r.Order
	}
	return out
}

func imageIDs(groups []history.Group) []int64 {
	out := make([]int64, len(groups))
	for i, g := range groups {
		out[i] = g.ImageID
	}
	return out
}

// ─── Grouping ──────────────────────────────────────────────────────────

func TestIngest_SortsRecordsByOrder(t *testing.T) {
	t.Parallel()
	a := history.NewAggregator()

	groups := a.Ingest([]model.TransformationHistoryRecord{
		rec(1, 7, 1, 0),
		rec(2, 7, 0, 0),
	})

	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if got := orders(groups[0]); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("expected orders [0 1], got %v", got)
	}
}

func TestIngest_StableOnEqualOrder(t *testing.T) {
	t.Parallel()
	groups := history.GroupRecords([]model.TransformationHistoryRecord{
		rec(10, 1, 0, 0),
		rec(11, 1, 0, 0),
		rec(12, 1, 0, 0),
	})

	var got []int64
	for _, r := range groups[0].Records {
		got = append(got, r.TransformationID)
	}
	if !reflect.DeepEqual(got, []int64{10, 11, 12}) {
		t.Errorf("expected input order to be preserved, got %v", got)
	}
}

func TestIngest_GroupsNewestFirst(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []model.TransformationHistoryRecord
		want    []int64
	}{
		{
			name:    "latest record decides",
			records: []model.TransformationHistoryRecord{rec(1, 100, 0, 10), rec(2, 200, 0, 20)},
			want:    []int64{200, 100},
		},
		{
			name:    "max not first",
			records: []model.TransformationHistoryRecord{rec(1, 100, 0, 5), rec(2, 200, 0, 20), rec(3, 100, 1, 30)},
			want:    []int64{100, 200},
		},
		{
			name:    "tie broken by image id",
			records: []model.TransformationHistoryRecord{rec(1, 3, 0, 10), rec(2, 9, 0, 10), rec(3, 5, 0, 10)},
			want:    []int64{9, 5, 3},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := imageIDs(history.NewAggregator().Ingest(tt.records))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("group order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIngest_MostRecentCreatedAt(t *testing.T) {
	t.Parallel()
	groups := history.GroupRecords([]model.TransformationHistoryRecord{
		rec(1, 1, 0, 40),
		rec(2, 1, 1, 15),
	})
	if want := base.Add(40 * time.Second); !groups[0].MostRecentCreatedAt.Equal(want) {
		t.Errorf("MostRecentCreatedAt = %v, want %v", groups[0].MostRecentCreatedAt, want)
	}
}

// ─── Removal ───────────────────────────────────────────────────────────

func TestRemoveRecord(t *testing.T) {
	t.Parallel()
	a := history.NewAggregator()
	a.Ingest([]model.TransformationHistoryRecord{
		rec(1, 100, 0, 10),
		rec(2, 100, 1, 11),
		rec(3, 200, 0, 20),
	})

	groups, ok := a.RemoveRecord(2)
	if !ok {
		t.Fatal("expected record 2 to be removed")
	}
	for _, g := range groups {
		for _, r := range g.Records {
			if r.TransformationID == 2 {
				t.Fatal("removed record still grouped")
			}
		}
	}

	groups, _ = a.RemoveRecord(3)
	if got := imageIDs(groups); !reflect.DeepEqual(got, []int64{100}) {
		t.Errorf("expected only image 100 to remain, got %v", got)
	}
	if _, found := a.Group(200); found {
		t.Error("image 200 should have no group after its only record was removed")
	}
	if _, err := a.Record(3); err != history.ErrRecordNotFound {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRemoveRecord_Unknown(t *testing.T) {
	t.Parallel()
	a := history.NewAggregator()
	a.Ingest([]model.TransformationHistoryRecord{rec(1, 100, 0, 0)})

	notified := 0
	a.Subscribe(func() { notified++ })

	if _, ok := a.RemoveRecord(42); ok {
		t.Error("unknown id should not report removal")
	}
	if notified != 0 {
		t.Error("a no-op removal should not notify")
	}
	if len(a.Records()) != 1 {
		t.Error("records should be untouched")
	}
}

func TestRemoveRecords_Batch(t *testing.T) {
	t.Parallel()
	a := history.NewAggregator()
	a.Ingest([]model.TransformationHistoryRecord{
		rec(1, 100, 0, 0),
		rec(2, 100, 1, 0),
		rec(3, 200, 0, 0),
	})

	groups, n := a.RemoveRecords([]int64{1, 2, 99})
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if got := imageIDs(groups); !reflect.DeepEqual(got, []int64{200}) {
		t.Errorf("unexpected groups %v", got)
	}
}

// ─── Status ────────────────────────────────────────────────────────────

func TestStatusTransitions(t *testing.T) {
	t.Parallel()
	a := history.NewAggregator()

	if a.Status() != history.StatusIdle {
		t.Fatalf("expected idle, got %s", a.Status())
	}
	a.MarkLoading()
	if a.Status() != history.StatusLoading {
		t.Fatalf("expected loading, got %s", a.Status())
	}
	a.MarkFailed("network down")
	if a.Status() != history.StatusError || a.Err() != "network down" {
		t.Fatalf("expected error status, got %s %q", a.Status(), a.Err())
	}
	a.MarkLoading()
	a.Ingest(nil)
	if a.Status() != history.StatusReady || a.Err() != "" {
		t.Errorf("expected ready with cleared error, got %s %q", a.Status(), a.Err())
	}
	a.Reset()
	if a.Status() != history.StatusIdle || len(a.Groups()) != 0 {
		t.Error("reset should return to idle with no groups")
	}
}

func TestGroups_ReturnsCopies(t *testing.T) {
	t.Parallel()
	a := history.NewAggregator()
	a.Ingest([]model.TransformationHistoryRecord{rec(1, 100, 0, 0)})

	groups := a.Groups()
	groups[0].Records[0].Kind = "mutated"

	if got := a.Groups()[0].Records[0].Kind; got != "grayscale" {
		t.Errorf("aggregator state leaked: %q", got)
	}
}
