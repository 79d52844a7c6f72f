package worker

import (
	"Cabinet/config"
	"Cabinet/internal/derivative"
	"Cabinet/internal/logger"
	"Cabinet/internal/mq"
	"Cabinet/internal/task"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type dlqMessage struct {
	TaskID   uint64    `json:"task_id"`
	Attempt  int       `json:"attempt"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// RunDerivativeWorker consumes derivative jobs from RabbitMQ until ctx ends.
func RunDerivativeWorker(ctx context.Context, gen *derivative.Generator) error {
	client, err := mq.Dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.DeclareTopology(); err != nil {
		return err
	}

	prefetch := config.AppConfig.RabbitMQPrefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(mq.QueueTasks, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	concurrency := config.AppConfig.DerivativeWorkers
	if concurrency <= 0 {
		concurrency = 1
	}
	limiter := newLimiter(config.AppConfig.DerivativeRate, config.AppConfig.DerivativeBurst)

	logger.Log.Info().Int("concurrency", concurrency).Int("prefetch", prefetch).Msg("derivative worker consuming")
	return consume(ctx, deliveries, concurrency, func(d amqp.Delivery) {
		handleDerivativeMessage(ctx, client, gen, limiter, d)
	})
}

// consume hands deliveries to handle with at most concurrency in flight.
// Once ctx ends it takes no more work and waits for the running handlers;
// a delivery taken but not handled is redelivered when the channel closes.
func consume(ctx context.Context, deliveries <-chan amqp.Delivery, concurrency int, handle func(amqp.Delivery)) error {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("derivative worker: delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			if ctx.Err() != nil {
				<-sem
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				handle(d)
			}(delivery)
		}
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

func handleDerivativeMessage(ctx context.Context, client *mq.Client, gen *derivative.Generator, limiter *rate.Limiter, delivery amqp.Delivery) {
	var msg task.DerivativeMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		logger.Log.Warn().Err(err).Msg("derivative worker: invalid message")
		_ = delivery.Ack(false)
		return
	}

	if err := limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	if err := task.ProcessDerivativeTask(ctx, gen, msg.TaskID); err != nil {
		if ctx.Err() != nil {
			_ = delivery.Nack(false, true)
			return
		}
		var handleErr error
		if shouldRetry(err) {
			handleErr = scheduleRetry(ctx, client, msg, err)
		} else {
			handleErr = markFailed(ctx, client, msg, err)
		}
		if handleErr != nil {
			logger.Log.Error().Err(handleErr).Uint64("task_id", msg.TaskID).Msg("derivative worker: settle failed task")
			_ = delivery.Nack(false, true)
			return
		}
	}

	_ = delivery.Ack(false)
}

func shouldRetry(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	return !task.IsPermanent(err)
}

func scheduleRetry(ctx context.Context, client *mq.Client, msg task.DerivativeMessage, procErr error) error {
	maxRetry := config.AppConfig.DerivativeRetryMax
	nextAttempt := msg.Attempt + 1
	if maxRetry <= 0 || nextAttempt > maxRetry {
		return markFailed(ctx, client, msg, procErr)
	}

	delay := task.PickRetryDelay(nextAttempt, config.AppConfig.DerivativeRetryDelays)
	if err := task.MarkDerivativeTaskRetrying(msg.TaskID, nextAttempt, time.Now().Add(delay), procErr); err != nil {
		return err
	}

	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return client.PublishRetry(ctx, body, delay)
}

func markFailed(ctx context.Context, client *mq.Client, msg task.DerivativeMessage, procErr error) error {
	if err := task.MarkDerivativeTaskFailed(msg.TaskID, procErr); err != nil {
		return err
	}
	logger.Log.Warn().Err(procErr).Uint64("task_id", msg.TaskID).Int("attempt", msg.Attempt).Msg("derivative task failed")

	body, err := json.Marshal(dlqMessage{
		TaskID:   msg.TaskID,
		Attempt:  msg.Attempt,
		Error:    procErr.Error(),
		FailedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if err := client.PublishDLQ(ctx, body); err != nil {
		logger.Log.Warn().Err(err).Uint64("task_id", msg.TaskID).Msg("derivative worker: dlq publish failed")
	}
	return nil
}
