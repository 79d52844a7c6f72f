package task

import (
	"Cabinet/internal/derivative"
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/internal/testutil"
	"Cabinet/model"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.Run(m))
}

func seedImage(t *testing.T) *model.UserFile {
	t.Helper()
	user := model.User{UserName: "owner", Password: "x", QuotaBytes: 1 << 20}
	require.NoError(t, repo.Db.Create(&user).Error)
	sb, err := storage.Local.EnsureSandbox(user.ID)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 10))))
	require.NoError(t, os.WriteFile(sb.ContentPath("img"), buf.Bytes(), 0o644))

	file := model.UserFile{OwnerID: user.ID, Name: "a.png", MimeType: "image/png", Size: int64(buf.Len()), Hash: "h", StorageKey: "img"}
	require.NoError(t, repo.Db.Create(&file).Error)
	return &file
}

func loadTask(t *testing.T, fileID uint64) model.DerivativeTask {
	t.Helper()
	var task model.DerivativeTask
	require.NoError(t, repo.Db.Where("file_id = ?", fileID).First(&task).Error)
	return task
}

func TestLocalDispatcherGeneratesPreview(t *testing.T) {
	testutil.CleanTables(t)
	file := seedImage(t)

	d := NewLocalDispatcher(context.Background(), &derivative.Generator{Size: 8})
	d.Dispatch(file)
	d.Wait()

	assert.Equal(t, model.TaskCompleted, loadTask(t, file.ID).Status)
	var stored model.UserFile
	require.NoError(t, repo.Db.First(&stored, file.ID).Error)
	require.NotNil(t, stored.DerivativeRef)

	tasks, err := ListDerivativeTasks(file.OwnerID, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestLocalDispatcherIgnoresNonMedia(t *testing.T) {
	testutil.CleanTables(t)
	d := NewLocalDispatcher(context.Background(), &derivative.Generator{Size: 8})
	d.Dispatch(&model.UserFile{ID: 1, OwnerID: 1, MimeType: "text/plain"})
	d.Wait()

	var count int64
	require.NoError(t, repo.Db.Model(&model.DerivativeTask{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLocalDispatcherMarksUndecodableFailed(t *testing.T) {
	testutil.CleanTables(t)
	file := seedImage(t)
	sb := storage.Local.SandboxFor(file.OwnerID)
	require.NoError(t, os.WriteFile(sb.ContentPath(file.StorageKey), []byte("garbage"), 0o644))

	d := NewLocalDispatcher(context.Background(), &derivative.Generator{Size: 8})
	d.Dispatch(file)
	d.Wait()

	task := loadTask(t, file.ID)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.NotEmpty(t, task.ErrorMsg)

	var stored model.UserFile
	require.NoError(t, repo.Db.First(&stored, file.ID).Error)
	assert.Nil(t, stored.DerivativeRef)
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) PublishTask(context.Context, []byte) error {
	p.calls++
	return errors.New("broker down")
}

func TestQueueDispatcherFallsBackToLocalPool(t *testing.T) {
	testutil.CleanTables(t)
	file := seedImage(t)

	local := NewLocalDispatcher(context.Background(), &derivative.Generator{Size: 8})
	pub := &failingPublisher{}
	d := &QueueDispatcher{
		publisher: func() (Publisher, error) { return pub, nil },
		fallback:  local,
	}
	d.Dispatch(file)
	d.Wait()
	local.Wait()

	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, model.TaskCompleted, loadTask(t, file.ID).Status)
}

// blockingPublisher holds every publish until release is closed.
type blockingPublisher struct {
	release chan struct{}
	bodies  chan []byte
}

func (p *blockingPublisher) PublishTask(ctx context.Context, body []byte) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.bodies <- body
	return nil
}

func TestQueueDispatchDoesNotWaitForBroker(t *testing.T) {
	testutil.CleanTables(t)
	file := seedImage(t)

	pub := &blockingPublisher{release: make(chan struct{}), bodies: make(chan []byte, 1)}
	d := &QueueDispatcher{publisher: func() (Publisher, error) { return pub, nil }}

	returned := make(chan struct{})
	go func() {
		d.Dispatch(file)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on the broker")
	}
	assert.Equal(t, model.TaskPending, loadTask(t, file.ID).Status)

	close(pub.release)
	d.Wait()
	var msg DerivativeMessage
	require.NoError(t, json.Unmarshal(<-pub.bodies, &msg))
	assert.Equal(t, loadTask(t, file.ID).ID, msg.TaskID)
}

func TestProcessDerivativeTaskClaimsOnce(t *testing.T) {
	testutil.CleanTables(t)
	file := seedImage(t)
	task, err := CreateDerivativeTask(file)
	require.NoError(t, err)
	startedAt := time.Now().UTC()
	require.NoError(t, repo.Db.Model(task).Updates(map[string]interface{}{
		"status":     model.TaskRunning,
		"started_at": &startedAt,
	}).Error)

	// A live running task belongs to someone else; the call is a no-op.
	require.NoError(t, ProcessDerivativeTask(context.Background(), &derivative.Generator{Size: 8}, task.ID))
	assert.Equal(t, model.TaskRunning, loadTask(t, file.ID).Status)
	assert.Nil(t, loadTask(t, file.ID).FinishedAt)
}

func TestProcessDerivativeTaskReclaimsAbandonedRun(t *testing.T) {
	testutil.CleanTables(t)
	file := seedImage(t)
	task, err := CreateDerivativeTask(file)
	require.NoError(t, err)
	startedAt := time.Now().UTC().Add(-(taskTimeout() + time.Hour))
	require.NoError(t, repo.Db.Model(task).Updates(map[string]interface{}{
		"status":     model.TaskRunning,
		"started_at": &startedAt,
	}).Error)

	require.NoError(t, ProcessDerivativeTask(context.Background(), &derivative.Generator{Size: 8}, task.ID))
	assert.Equal(t, model.TaskCompleted, loadTask(t, file.ID).Status)

	var stored model.UserFile
	require.NoError(t, repo.Db.First(&stored, file.ID).Error)
	assert.NotNil(t, stored.DerivativeRef)
}

func TestPickRetryDelay(t *testing.T) {
	delays := []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}
	assert.Equal(t, time.Second, PickRetryDelay(0, delays))
	assert.Equal(t, time.Second, PickRetryDelay(1, delays))
	assert.Equal(t, 5*time.Second, PickRetryDelay(2, delays))
	assert.Equal(t, 30*time.Second, PickRetryDelay(9, delays))
	assert.Zero(t, PickRetryDelay(1, nil))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(derivative.ErrUndecodable))
	assert.True(t, IsPermanent(errors.Join(errors.New("ctx"), derivative.ErrUnsupported)))
	assert.False(t, IsPermanent(errors.New("disk full")))
}
