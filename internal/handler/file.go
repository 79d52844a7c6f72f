package handler

import (
	"Cabinet/config"
	"Cabinet/internal/dto"
	"Cabinet/internal/service"
	"Cabinet/internal/task"
	"Cabinet/utils"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Room for multipart boundaries and the small form fields next to the file.
const multipartOverhead = 1 << 20

// Upload stores a multipart "file" field, optionally under "parent_id".
func Upload(c *gin.Context) {
	maxBytes := config.AppConfig.MaxUploadBytes
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	}
	header, err := c.FormFile("file")
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, service.ErrUploadTooLarge)
			return
		}
		badRequest(c, "missing file")
		return
	}

	var parentID *uint64
	if raw := c.PostForm("parent_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid parent_id")
			return
		}
		parentID = &id
	}

	src, err := header.Open()
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	defer src.Close()

	file, err := service.CreateFile(c.Request.Context(), service.CreateFileInput{
		OwnerID:  currentUserID(c),
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		ParentID: parentID,
		Content:  src,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, file)
}

// ListFiles lists the caller's files, optionally filtered by parent_id or root=true.
func ListFiles(c *gin.Context) {
	parentID, ok := parentFilter(c)
	if !ok {
		return
	}
	files, err := service.ListFiles(c.Request.Context(), currentUserID(c), parentID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, files)
}

// SearchFiles matches file names against ?q=, with optional parent filter and ordering.
func SearchFiles(c *gin.Context) {
	parentID, ok := parentFilter(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	files, err := service.SearchFiles(c.Request.Context(), currentUserID(c), service.SearchFilesInput{
		Query:    c.Query("q"),
		ParentID: parentID,
		OrderBy:  c.Query("order_by"),
		Desc:     c.Query("desc") == "true",
		Limit:    limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, files)
}

func GetFile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	file, err := service.GetFile(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, file)
}

func contentDisposition(kind, name string) string {
	if v := mime.FormatMediaType(kind, map[string]string{"filename": utils.SanitizeHeaderFilename(name)}); v != "" {
		return v
	}
	return kind
}

// FileContent streams a file with range support. ?download=true forces an attachment.
func FileContent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	file, content, err := service.OpenContent(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer content.Close()

	kind := "inline"
	if c.Query("download") == "true" {
		kind = "attachment"
	}
	c.Header("Content-Type", file.MimeType)
	c.Header("Content-Disposition", contentDisposition(kind, file.Name))
	c.Header("X-Content-Sha256", file.Hash)
	http.ServeContent(c.Writer, c.Request, file.Name, file.UpdatedAt, content)
}

// VerifyFile recomputes the digest of the stored bytes.
func VerifyFile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	report, err := service.VerifyIntegrity(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, report)
}

func RenameFile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	file, err := service.RenameFile(c.Request.Context(), currentUserID(c), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, file)
}

func MoveFile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	file, err := service.MoveFile(c.Request.Context(), currentUserID(c), id, req.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, file)
}

func DeleteFile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := service.DeleteFile(c.Request.Context(), currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, nil)
}

// Thumbnail serves the generated preview of a file.
func Thumbnail(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	file, thumb, err := service.OpenDerivative(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer thumb.Close()
	c.Header("Content-Type", "image/jpeg")
	c.Header("Cache-Control", "private, max-age=3600")
	http.ServeContent(c.Writer, c.Request, "", file.UpdatedAt, thumb)
}

// DerivativeTasks lists the caller's recent preview jobs, newest first.
func DerivativeTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	tasks, err := task.ListDerivativeTasks(currentUserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, tasks)
}
