package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/iro/internal/history"
	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/selection"
)

// ErrJobRunning is returned when a transform job is started while another
// is still in flight.
var ErrJobRunning = errors.New("a transform job is already running")

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Progress *model.TransformationProgress `json:"progress,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

type JobType string

const (
	JobTransform   JobType = "transform"
	JobDeleteImage JobType = "delete-image"
)

type Job struct {
	ID        string        `json:"id"`
	Type      JobType       `json:"type"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`
	closed    bool

	// Optional results:
	Batch   *model.BatchResult `json:"batch,omitempty"`
	ImageID int64              `json:"image_id,omitempty"`
	Deleted []int64            `json:"deleted,omitempty"`
	Failed  int                `json:"failed,omitempty"`
}

// DefaultJobRetention is how long a finished job stays queryable.
const DefaultJobRetention = 15 * time.Minute

// Orchestrator runs service operations in the background and reports
// their lifecycle as job events.
type Orchestrator struct {
	images  *ImageService
	history *HistoryService
	logger  logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	exclusive  string
	retention  time.Duration
}

func NewOrchestrator(images *ImageService, hist *HistoryService, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		images:     images,
		history:    hist,
		logger:     logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
		retention:  DefaultJobRetention,
	}
}

// SetRetention changes how long finished jobs are kept. d <= 0 restores
// DefaultJobRetention.
func (o *Orchestrator) SetRetention(d time.Duration) {
	if d <= 0 {
		d = DefaultJobRetention
	}
	o.jobsMu.Lock()
	o.retention = d
	o.jobsMu.Unlock()
}

// pruneLocked forgets jobs that ended more than retention ago.
// jobsMu must be held.
func (o *Orchestrator) pruneLocked(now time.Time) {
	for id, j := range o.jobs {
		if j.closed && now.Sub(j.EndedAt) > o.retention {
			delete(o.jobs, id)
		}
	}
}

func (o *Orchestrator) emitJobEvent(job *Job, ev JobEvent) {
	ev.JobID = job.ID
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if job.closed {
		return
	}
	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setStatus(job *Job, status JobStatus, errMsg string) {
	o.jobsMu.Lock()
	job.Status = status
	job.Error = errMsg
	o.jobsMu.Unlock()
	o.emitJobEvent(job, JobEvent{Type: JobEventStatus, Status: status, Error: errMsg})
}

// start registers a job and runs fn in its own goroutine. fn's error decides
// the final status; the events channel is closed once the job ends.
// exclusive jobs are refused while another exclusive job runs. The returned
// Job is a snapshot; use GetJob and Events to follow it.
func (o *Orchestrator) start(ctx context.Context, typ JobType, exclusive bool, fn func(ctx context.Context, job *Job) error) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 16),
	}

	o.jobsMu.Lock()
	o.pruneLocked(job.StartedAt)
	if exclusive {
		if o.exclusive != "" {
			o.jobsMu.Unlock()
			return nil, ErrJobRunning
		}
		o.exclusive = job.ID
	}
	jobCtx, cancel := context.WithCancel(ctx)
	o.jobs[job.ID] = job
	o.jobCancels[job.ID] = cancel
	snapshot := *job
	o.jobsMu.Unlock()

	o.emitJobEvent(job, JobEvent{Type: JobEventStatus, Status: JobPending})

	go func() {
		defer func() {
			cancel()
			o.jobsMu.Lock()
			job.EndedAt = time.Now().UTC()
			delete(o.jobCancels, job.ID)
			if o.exclusive == job.ID {
				o.exclusive = ""
			}
			// Close events channel so websocket loop can terminate cleanly
			job.closed = true
			close(job.Events)
			o.jobsMu.Unlock()
		}()

		o.setStatus(job, JobRunning, "")
		err := fn(jobCtx, job)

		switch {
		case err != nil && jobCtx.Err() != nil:
			o.setStatus(job, JobCanceled, jobCtx.Err().Error())
		case err != nil:
			o.setStatus(job, JobFailed, err.Error())
		default:
			o.jobsMu.Lock()
			job.Status = JobDone
			o.jobsMu.Unlock()
			o.emitJobEvent(job, JobEvent{Type: JobEventResult, Status: JobDone})
		}
		o.logger.Info("job finished",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "type", Value: string(typ)},
			logging.Field{Key: "status", Value: string(o.GetJob(job.ID).Status)})
	}()

	return &snapshot, nil
}

// StartTransformJob submits sel in the background, forwarding progress
// updates as job events. Only one transform job runs at a time.
func (o *Orchestrator) StartTransformJob(ctx context.Context, sel *selection.Model) (*Job, error) {
	if sel == nil {
		sel = o.images.Selection()
	}
	if v := sel.Validate(); !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSelection, v.Message)
	}

	return o.start(ctx, JobTransform, true, func(ctx context.Context, job *Job) error {
		unsubscribe := o.images.Progress.Subscribe(func(p model.TransformationProgress) {
			o.emitJobEvent(job, JobEvent{Type: JobEventProgress, Progress: &p})
		})
		defer unsubscribe()

		res, err := o.images.Apply(ctx, sel)
		if err != nil {
			return err
		}
		o.jobsMu.Lock()
		job.Batch = res
		o.jobsMu.Unlock()
		return nil
	})
}

// StartDeleteImageJob deletes every history record of imageID in the
// background.
func (o *Orchestrator) StartDeleteImageJob(ctx context.Context, imageID int64) (*Job, error) {
	if _, ok := o.history.Aggregator().Group(imageID); !ok {
		return nil, fmt.Errorf("image %d: %w", imageID, history.ErrRecordNotFound)
	}
	return o.start(ctx, JobDeleteImage, false, func(ctx context.Context, job *Job) error {
		report, err := o.history.DeleteImage(ctx, imageID)
		o.jobsMu.Lock()
		job.ImageID = imageID
		job.Deleted = report.Deleted
		job.Failed = len(report.Failed)
		o.jobsMu.Unlock()
		return err
	})
}

func (o *Orchestrator) CancelJob(jobID string) bool {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// GetJob returns a snapshot of job jobID, or nil.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// Events returns the event stream of job jobID. It is closed when the job
// ends.
func (o *Orchestrator) Events(jobID string) (<-chan JobEvent, bool) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil, false
	}
	return j.Events, true
}
