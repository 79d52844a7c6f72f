package handler

import (
	"Cabinet/config"
	"Cabinet/internal/dto"
	"Cabinet/internal/logger"
	"Cabinet/internal/service"
	"Cabinet/utils"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CreateShare mints a public link for one of the caller's files.
func CreateShare(c *gin.Context) {
	var req dto.CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	share, err := service.CreateShare(c.Request.Context(), service.CreateShareInput{
		FileID:       req.FileID,
		CreatorID:    currentUserID(c),
		Password:     req.Password,
		ExpiresAt:    req.ExpiresAt,
		MaxDownloads: req.MaxDownloads,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": dto.ShareResponse{Share: share, Link: buildShareLink(c, share.ShareID)},
	})
}

func buildShareLink(c *gin.Context, shareID string) string {
	baseURL := config.AppConfig.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")); forwarded != "" {
			scheme = forwarded
		} else if c.Request.TLS != nil {
			scheme = "https"
		}
		host := strings.TrimSpace(c.GetHeader("X-Forwarded-Host"))
		if host == "" {
			host = c.Request.Host
		}
		baseURL = scheme + "://" + host
	}
	return strings.TrimRight(baseURL, "/") + "/s/" + shareID
}

// ListShares lists the caller's shares, optionally for one file_id.
func ListShares(c *gin.Context) {
	var fileID uint64
	if raw := c.Query("file_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid file_id")
			return
		}
		fileID = id
	}
	shares, err := service.ListShares(c.Request.Context(), currentUserID(c), fileID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, shares)
}

// DeactivateShare revokes one of the caller's shares.
func DeactivateShare(c *gin.Context) {
	if err := service.DeactivateShare(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, nil)
}

// ShareInfo exposes public share metadata without consuming a download.
func ShareInfo(c *gin.Context) {
	info, err := service.DescribeShare(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, info)
}

// ShareDownload consumes one download of a share. No account is needed;
// the password comes from ?password= or the X-Share-Password header.
func ShareDownload(c *gin.Context) {
	password := c.Query("password")
	if password == "" {
		password = c.GetHeader("X-Share-Password")
	}
	res, err := service.ResolveShare(c.Request.Context(), c.Param("id"), password)
	if err != nil {
		respondError(c, err)
		return
	}
	defer res.Content.Close()

	c.Header("Content-Type", res.File.MimeType)
	c.Header("Content-Disposition", contentDisposition("attachment", res.File.Name))
	c.Header("Content-Length", strconv.FormatInt(res.File.Size, 10))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, res.Content); err != nil {
		// The download was already counted; see ResolveShare.
		logger.Log.Warn().Err(err).Str("share_id", res.Share.ShareID).Msg("share transfer interrupted")
	}
}
