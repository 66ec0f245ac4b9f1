package app

import (
	"context"
	"fmt"

	"github.com/raysh454/iro/internal/api"
	"github.com/raysh454/iro/internal/history"
	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/signal"
)

// HistoryService loads the user's transformation history into an
// Aggregator and keeps it in step with deletes.
type HistoryService struct {
	api               *api.Client
	agg               *history.Aggregator
	logger            logging.Logger
	deleteConcurrency int

	Selected     *signal.Value[*model.TransformationHistoryRecord]
	ErrorMessage *signal.Value[string]
}

func NewHistoryService(client *api.Client, cfg *Config, logger logging.Logger) *HistoryService {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &HistoryService{
		api:               client,
		agg:               history.NewAggregator(),
		logger:            logger.With(logging.Field{Key: "component", Value: "history"}),
		deleteConcurrency: cfg.DeleteConcurrency,
		Selected:          signal.New[*model.TransformationHistoryRecord](nil),
		ErrorMessage:      signal.New(""),
	}
}

// Aggregator exposes the grouped history.
func (s *HistoryService) Aggregator() *history.Aggregator { return s.agg }

// Load fetches the full history and regroups it.
func (s *HistoryService) Load(ctx context.Context) error {
	s.agg.MarkLoading()
	s.ErrorMessage.Set("")

	records, err := s.api.ListHistory(ctx)
	if err != nil {
		msg := api.UserMessage(err)
		s.logger.Warn("history load failed", logging.Field{Key: "error", Value: err})
		s.agg.MarkFailed(msg)
		s.ErrorMessage.Set(msg)
		return err
	}
	groups := s.agg.Ingest(records)
	s.logger.Debug("history loaded",
		logging.Field{Key: "records", Value: len(records)},
		logging.Field{Key: "images", Value: len(groups)})
	return nil
}

// Detail returns record id, preferring the selected record over a request.
func (s *HistoryService) Detail(ctx context.Context, id int64) (*model.TransformationHistoryRecord, error) {
	if sel := s.Selected.Get(); sel != nil && sel.TransformationID == id {
		rec := *sel
		return &rec, nil
	}
	rec, err := s.api.HistoryDetail(ctx, id)
	if err != nil {
		s.ErrorMessage.Set(api.UserMessage(err))
		return nil, err
	}
	s.Selected.Set(rec)
	return rec, nil
}

// Select makes rec the selected record.
func (s *HistoryService) Select(rec model.TransformationHistoryRecord) {
	s.Selected.Set(&rec)
}

func (s *HistoryService) ClearSelection() {
	s.Selected.Set(nil)
}

// Delete removes one record on the backend and then locally.
func (s *HistoryService) Delete(ctx context.Context, id int64) error {
	if err := s.api.DeleteHistory(ctx, id); err != nil {
		s.logger.Warn("history delete failed",
			logging.Field{Key: "transformation_id", Value: id},
			logging.Field{Key: "error", Value: err})
		s.ErrorMessage.Set(api.UserMessage(err))
		return err
	}
	s.agg.RemoveRecord(id)
	s.clearSelectedIf(id)
	return nil
}

// DeleteImage removes every record of imageID. Records deleted on the
// backend are removed locally even when others fail.
func (s *HistoryService) DeleteImage(ctx context.Context, imageID int64) (api.DeleteReport, error) {
	g, ok := s.agg.Group(imageID)
	if !ok {
		return api.DeleteReport{}, fmt.Errorf("image %d: %w", imageID, history.ErrRecordNotFound)
	}
	ids := make([]int64, len(g.Records))
	for i, r := range g.Records {
		ids[i] = r.TransformationID
	}

	report, err := s.api.DeleteImageHistory(ctx, ids, s.deleteConcurrency)
	s.agg.RemoveRecords(report.Deleted)
	for _, id := range report.Deleted {
		s.clearSelectedIf(id)
	}
	if err != nil {
		s.ErrorMessage.Set(api.UserMessage(err))
		return report, err
	}
	return report, nil
}

func (s *HistoryService) clearSelectedIf(id int64) {
	if sel := s.Selected.Get(); sel != nil && sel.TransformationID == id {
		s.Selected.Set(nil)
	}
}

// Reset drops loaded history and selection.
func (s *HistoryService) Reset() {
	s.agg.Reset()
	s.Selected.Set(nil)
	s.ErrorMessage.Set("")
}
