package handler

import (
	"Cabinet/config"
	"Cabinet/internal/dto"
	"Cabinet/internal/logger"
	"Cabinet/internal/service"
	"Cabinet/utils"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

func ListUsers(c *gin.Context) {
	users, err := service.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, users)
}

func CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	user, err := service.CreateUser(c.Request.Context(), service.CreateUserInput{
		Username:   req.Username,
		Password:   req.Password,
		IsAdmin:    req.IsAdmin,
		QuotaBytes: req.QuotaBytes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": 0, "msg": "ok", "data": user})
}

func SetQuota(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.SetQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	user, err := service.SetQuota(c.Request.Context(), id, req.QuotaBytes)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, user)
}

func ResetPassword(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := service.ResetPassword(c.Request.Context(), id, req.Password); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, nil)
}

// DeleteUser removes another account with all its data.
func DeleteUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if id == currentUserID(c) {
		badRequest(c, "cannot delete self")
		return
	}
	if err := service.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, nil)
}

// BackupDB downloads a JSON snapshot of the metadata store.
func BackupDB(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", contentDisposition("attachment", service.BackupFileName(time.Now())))
	c.Status(http.StatusOK)
	if err := service.WriteSnapshot(c.Request.Context(), c.Writer); err != nil {
		logger.Log.Error().Err(err).Msg("write snapshot fail")
		if !c.Writer.Written() {
			respondError(c, err)
		}
	}
}

// BackupMinio uploads a snapshot to the backup bucket.
func BackupMinio(c *gin.Context) {
	res, err := service.UploadSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, res)
}

// Logs serves the service log file; ?download=true forces an attachment.
func Logs(c *gin.Context) {
	path := config.AppConfig.LogFile
	if _, err := os.Stat(path); path == "" || errors.Is(err, os.ErrNotExist) {
		utils.Fail(c, http.StatusNotFound, "NOT_FOUND", "no logs available")
		return
	}
	if c.Query("download") == "true" {
		c.FileAttachment(path, fmt.Sprintf("cabinet-logs-%s.log", time.Now().UTC().Format("20060102T150405Z")))
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.File(path)
}
