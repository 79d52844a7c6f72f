package task

import (
	"Cabinet/config"
	"Cabinet/internal/derivative"
	"Cabinet/internal/logger"
	"Cabinet/internal/mq"
	"Cabinet/model"
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalDispatcher renders previews in-process on a bounded, rate-limited pool.
type LocalDispatcher struct {
	gen     *derivative.Generator
	sem     chan struct{}
	limiter *rate.Limiter
	ctx     context.Context
	wg      sync.WaitGroup
}

// NewLocalDispatcher builds a pool sized from the configuration. Jobs stop when ctx ends.
func NewLocalDispatcher(ctx context.Context, gen *derivative.Generator) *LocalDispatcher {
	concurrency := config.AppConfig.DerivativeWorkers
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalDispatcher{
		gen:     gen,
		sem:     make(chan struct{}, concurrency),
		limiter: newLimiter(config.AppConfig.DerivativeRate, config.AppConfig.DerivativeBurst),
		ctx:     ctx,
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Dispatch records a task and runs it in the background.
func (d *LocalDispatcher) Dispatch(file *model.UserFile) {
	if derivative.CategoryOf(file.MimeType) == derivative.CategoryNone {
		return
	}
	task, err := CreateDerivativeTask(file)
	if err != nil {
		logger.Log.Error().Err(err).Uint64("file_id", file.ID).Msg("create derivative task fail")
		return
	}
	d.run(task.ID)
}

func (d *LocalDispatcher) run(taskID uint64) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			return
		}
		defer func() { <-d.sem }()
		if err := d.limiter.Wait(d.ctx); err != nil {
			return
		}
		if err := ProcessDerivativeTask(d.ctx, d.gen, taskID); err != nil {
			logger.Log.Warn().Err(err).Uint64("task_id", taskID).Msg("derivative generation failed")
			if markErr := MarkDerivativeTaskFailed(taskID, err); markErr != nil {
				logger.Log.Error().Err(markErr).Uint64("task_id", taskID).Msg("mark derivative task failed fail")
			}
		}
	}()
}

// Wait blocks until every dispatched job has finished.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// Publisher is the part of the broker client the queue dispatcher needs.
type Publisher interface {
	PublishTask(ctx context.Context, body []byte) error
}

// QueueDispatcher hands jobs to the worker process through RabbitMQ.
// Publishing happens off the caller's goroutine. When the broker is
// unreachable the job falls back to the local pool.
type QueueDispatcher struct {
	publisher func() (Publisher, error)
	fallback  *LocalDispatcher
	wg        sync.WaitGroup
}

const publishTimeout = 5 * time.Second

// NewQueueDispatcher publishes through the shared broker connection.
func NewQueueDispatcher(fallback *LocalDispatcher) *QueueDispatcher {
	return &QueueDispatcher{
		publisher: func() (Publisher, error) { return mq.GetPublisher() },
		fallback:  fallback,
	}
}

// Dispatch records a task and publishes it in the background.
func (d *QueueDispatcher) Dispatch(file *model.UserFile) {
	if derivative.CategoryOf(file.MimeType) == derivative.CategoryNone {
		return
	}
	task, err := CreateDerivativeTask(file)
	if err != nil {
		logger.Log.Error().Err(err).Uint64("file_id", file.ID).Msg("create derivative task fail")
		return
	}
	body, err := json.Marshal(DerivativeMessage{TaskID: task.ID})
	if err != nil {
		d.fail(task.ID, err)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		err := d.publish(ctx, body)
		if err == nil {
			return
		}
		logger.Log.Warn().Err(err).Uint64("task_id", task.ID).Msg("publish derivative task fail")
		if d.fallback != nil {
			d.fallback.run(task.ID)
			return
		}
		d.fail(task.ID, err)
	}()
}

// Wait blocks until every pending publish has finished or fallen back.
func (d *QueueDispatcher) Wait() {
	d.wg.Wait()
}

func (d *QueueDispatcher) fail(taskID uint64, err error) {
	if markErr := MarkDerivativeTaskFailed(taskID, err); markErr != nil {
		logger.Log.Error().Err(markErr).Uint64("task_id", taskID).Msg("mark derivative task failed fail")
	}
}

func (d *QueueDispatcher) publish(ctx context.Context, body []byte) error {
	p, err := d.publisher()
	if err != nil {
		return err
	}
	return p.PublishTask(ctx, body)
}
