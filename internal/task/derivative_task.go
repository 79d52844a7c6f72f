package task

import (
	"Cabinet/config"
	"Cabinet/internal/derivative"
	"Cabinet/internal/logger"
	"Cabinet/internal/repo"
	"Cabinet/model"
	"context"
	"errors"
	"time"
)

// DerivativeMessage is the payload sent to the worker.
type DerivativeMessage struct {
	TaskID  uint64 `json:"task_id"`
	Attempt int    `json:"attempt"`
}

// CreateDerivativeTask records a pending preview job for a file.
func CreateDerivativeTask(file *model.UserFile) (*model.DerivativeTask, error) {
	task := &model.DerivativeTask{
		FileID:   file.ID,
		OwnerID:  file.OwnerID,
		MimeType: file.MimeType,
		Status:   model.TaskPending,
	}
	if err := repo.Db.Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// ListDerivativeTasks lists the most recent preview jobs of a user.
func ListDerivativeTasks(ownerID uint64, limit int) ([]model.DerivativeTask, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	tasks := make([]model.DerivativeTask, 0)
	err := repo.Db.Where("owner_id = ?", ownerID).
		Order("id DESC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func taskTimeout() time.Duration {
	if config.AppConfig.DerivativeTimeout > 0 {
		return config.AppConfig.DerivativeTimeout
	}
	return 2 * time.Minute
}

// staleGrace is added to the task timeout before a running claim is considered abandoned.
const staleGrace = 30 * time.Second

// ProcessDerivativeTask runs one preview job. A pending or retrying task is
// claimed, and so is a running one whose holder outlived the task timeout
// (a worker killed mid-job). A live claim is never taken over, so a
// redelivered message never renders twice concurrently.
func ProcessDerivativeTask(ctx context.Context, gen *derivative.Generator, taskID uint64) error {
	var task model.DerivativeTask
	if err := repo.Db.Where("id = ?", taskID).First(&task).Error; err != nil {
		return err
	}
	if task.Status == model.TaskCompleted || task.Status == model.TaskSkipped {
		return nil
	}
	// UTC keeps the started_at comparison consistent on SQLite, which compares text.
	startedAt := time.Now().UTC()
	staleBefore := startedAt.Add(-(taskTimeout() + staleGrace))
	res := repo.Db.Model(&model.DerivativeTask{}).
		Where("id = ?", taskID).
		Where(repo.Db.Where("status IN ?", []string{model.TaskPending, model.TaskRetrying}).
			Or("status = ? AND started_at < ?", model.TaskRunning, staleBefore)).
		Updates(map[string]interface{}{
			"status":     model.TaskRunning,
			"started_at": &startedAt,
			"error_msg":  "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.Log.Info().Uint64("task_id", taskID).Str("status", task.Status).Msg("derivative task held elsewhere, skipped")
		return nil
	}
	if task.Status == model.TaskRunning {
		logger.Log.Warn().Uint64("task_id", taskID).Msg("reclaimed abandoned derivative task")
	}

	runCtx, cancel := context.WithTimeout(ctx, taskTimeout())
	defer cancel()
	outcome, err := derivative.Process(runCtx, gen, task.FileID)
	if err != nil {
		// Hand the task back so a retry can claim it again.
		_ = repo.Db.Model(&model.DerivativeTask{}).
			Where("id = ?", taskID).
			Update("status", model.TaskRetrying).Error
		return err
	}

	status := model.TaskCompleted
	if outcome != derivative.OutcomeGenerated {
		status = model.TaskSkipped
	}
	finishedAt := time.Now()
	logger.Log.Debug().Uint64("task_id", taskID).Uint64("file_id", task.FileID).Str("outcome", string(outcome)).Msg("derivative task done")
	return repo.Db.Model(&task).Updates(map[string]interface{}{
		"status":      status,
		"finished_at": &finishedAt,
	}).Error
}

// IsPermanent reports whether a failed job should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, derivative.ErrUndecodable) || errors.Is(err, derivative.ErrUnsupported)
}

// MarkDerivativeTaskFailed records the final failure of a job.
// The file keeps a null derivative_ref; the upload itself is unaffected.
func MarkDerivativeTaskFailed(taskID uint64, err error) error {
	finishedAt := time.Now()
	return repo.Db.Model(&model.DerivativeTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":      model.TaskFailed,
			"error_msg":   err.Error(),
			"finished_at": &finishedAt,
		}).Error
}

// MarkDerivativeTaskRetrying records a failed attempt that will run again.
func MarkDerivativeTaskRetrying(taskID uint64, attempt int, nextRetryAt time.Time, err error) error {
	return repo.Db.Model(&model.DerivativeTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":        model.TaskRetrying,
			"error_msg":     err.Error(),
			"retry_count":   attempt,
			"next_retry_at": &nextRetryAt,
		}).Error
}

// PickRetryDelay returns the backoff before the given attempt.
func PickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
