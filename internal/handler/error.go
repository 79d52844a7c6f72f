package handler

import (
	"Cabinet/internal/logger"
	"Cabinet/internal/service"
	"Cabinet/utils"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type errorKind struct {
	err    error
	status int
	code   string
}

// errorKinds is matched in order, so wrapped sentinels come before the ones they wrap.
var errorKinds = []errorKind{
	{service.ErrBadCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{service.ErrSharePasswordRequired, http.StatusUnauthorized, "SHARE_PASSWORD_REQUIRED"},
	{service.ErrSharePasswordInvalid, http.StatusUnauthorized, "SHARE_PASSWORD_INVALID"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{service.ErrInvalidArgument, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrFolderNotFound, http.StatusNotFound, "FOLDER_NOT_FOUND"},
	{service.ErrShareNotFound, http.StatusNotFound, "SHARE_NOT_FOUND"},
	{service.ErrDerivativeEmpty, http.StatusNotFound, "DERIVATIVE_NOT_FOUND"},
	{service.ErrUserExists, http.StatusConflict, "USER_EXISTS"},
	{service.ErrFolderNotEmpty, http.StatusConflict, "FOLDER_NOT_EMPTY"},
	{service.ErrFolderCycle, http.StatusConflict, "FOLDER_CYCLE"},
	{service.ErrFolderTooDeep, http.StatusConflict, "FOLDER_TOO_DEEP"},
	{service.ErrBackupBusy, http.StatusConflict, "BACKUP_BUSY"},
	{service.ErrShareExpired, http.StatusGone, "SHARE_EXPIRED"},
	{service.ErrShareExhausted, http.StatusGone, "SHARE_EXHAUSTED"},
	{service.ErrQuotaExceeded, http.StatusRequestEntityTooLarge, "QUOTA_EXCEEDED"},
	{service.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"},
	{service.ErrBackupUnavailable, http.StatusServiceUnavailable, "BACKUP_UNAVAILABLE"},
	{service.ErrStorageIO, http.StatusInternalServerError, "STORAGE_IO_FAILURE"},
}

// respondError writes the stable status and code of err.
func respondError(c *gin.Context, err error) {
	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			if kind.status >= http.StatusInternalServerError {
				logger.Log.Error().Err(err).Str("path", c.FullPath()).Msg(kind.code)
			}
			utils.Fail(c, kind.status, kind.code, err.Error())
			return
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		utils.Fail(c, http.StatusRequestTimeout, "REQUEST_CANCELED", "request canceled")
		return
	}
	logger.Log.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled error")
	utils.Fail(c, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func badRequest(c *gin.Context, msg string) {
	utils.Fail(c, http.StatusBadRequest, "INVALID_ARGUMENT", msg)
}

func currentUserID(c *gin.Context) uint64 {
	value, _ := c.Get("user_id")
	userID, _ := value.(uint64)
	return userID
}

// idParam parses a numeric path parameter, answering 400 when it is malformed.
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// parentFilter reads the listing filter: nil for everything, 0 for the root level.
func parentFilter(c *gin.Context) (*uint64, bool) {
	if c.Query("root") == "true" {
		var root uint64
		return &root, true
	}
	raw := c.Query("parent_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid parent_id")
		return nil, false
	}
	return &id, true
}
