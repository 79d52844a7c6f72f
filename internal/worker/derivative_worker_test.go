package worker

import (
	"Cabinet/internal/derivative"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestShouldRetry(t *testing.T) {
	assert.False(t, shouldRetry(gorm.ErrRecordNotFound))
	assert.False(t, shouldRetry(fmt.Errorf("%w: bad header", derivative.ErrUndecodable)))
	assert.False(t, shouldRetry(derivative.ErrUnsupported))
	assert.True(t, shouldRetry(errors.New("ffmpeg: signal: killed")))
}

func TestNewLimiterUnlimitedWhenRateUnset(t *testing.T) {
	l := newLimiter(0, 0)
	assert.Equal(t, 1, l.Burst())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
}

func TestConsumeStopsWhilePoolIsFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Body: []byte("1")}
	deliveries <- amqp.Delivery{Body: []byte("2")}

	var (
		mu      sync.Mutex
		handled []string
	)
	started := make(chan struct{}, 2)
	done := make(chan error, 1)
	go func() {
		done <- consume(ctx, deliveries, 1, func(d amqp.Delivery) {
			mu.Lock()
			handled = append(handled, string(d.Body))
			mu.Unlock()
			started <- struct{}{}
			<-ctx.Done()
		})
	}()

	<-started
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1"}, handled)
}

func TestConsumeReportsClosedChannel(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	close(deliveries)
	assert.Error(t, consume(context.Background(), deliveries, 1, func(amqp.Delivery) {}))
}
