package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
)

// DefaultDeleteConcurrency bounds DeleteImageHistory when no limit is given.
const DefaultDeleteConcurrency = 8

// ListHistory returns every transformation record of the current user.
func (c *Client) ListHistory(ctx context.Context) ([]model.TransformationHistoryRecord, error) {
	var out model.HistoryListResponse
	if err := c.doJSON(ctx, call{op: "list history", method: http.MethodGet, path: "/history/transformations"}, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []model.TransformationHistoryRecord{}, nil
	}
	return out.Data, nil
}

// HistoryDetail returns one record.
func (c *Client) HistoryDetail(ctx context.Context, transformationID int64) (*model.TransformationHistoryRecord, error) {
	op := "history detail"
	var out model.HistoryDetailResponse
	if err := c.doJSON(ctx, call{op: op, method: http.MethodGet, path: historyPath(transformationID)}, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, &Error{Kind: KindNotFound, Op: op, Message: out.Message}
	}
	return out.Data, nil
}

// DeleteHistory deletes one record.
func (c *Client) DeleteHistory(ctx context.Context, transformationID int64) error {
	return c.doJSON(ctx, call{op: "delete history", method: http.MethodDelete, path: historyPath(transformationID)}, nil, nil)
}

func historyPath(id int64) string {
	return "/history/transformations/" + strconv.FormatInt(id, 10)
}

// DeleteReport is the outcome of DeleteImageHistory.
type DeleteReport struct {
	Deleted []int64
	Failed  map[int64]error
}

// DeleteImageHistory deletes every record in ids with one request each, at
// most limit at a time, and waits for all of them. Records already deleted
// stay deleted when others fail. The error is non-nil when any delete failed
// and wraps the first failure.
func (c *Client) DeleteImageHistory(ctx context.Context, ids []int64, limit int) (DeleteReport, error) {
	if limit <= 0 {
		limit = DefaultDeleteConcurrency
	}

	var (
		mu     sync.Mutex
		report = DeleteReport{Failed: map[int64]error{}}
		g      errgroup.Group
	)
	g.SetLimit(limit)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := c.DeleteHistory(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[id] = err
				return err
			}
			report.Deleted = append(report.Deleted, id)
			return nil
		})
	}
	firstErr := g.Wait()

	sort.Slice(report.Deleted, func(i, j int) bool { return report.Deleted[i] < report.Deleted[j] })
	c.logger.Info("image history delete finished",
		logging.Field{Key: "requested", Value: len(ids)},
		logging.Field{Key: "deleted", Value: len(report.Deleted)},
		logging.Field{Key: "failed", Value: len(report.Failed)})

	if firstErr != nil {
		return report, fmt.Errorf("%d of %d deletes failed: %w", len(report.Failed), len(ids), firstErr)
	}
	return report, nil
}
