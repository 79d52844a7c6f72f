package handler

import (
	"Cabinet/internal/dto"
	"Cabinet/internal/logger"
	"Cabinet/internal/service"
	"Cabinet/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

func ListFolders(c *gin.Context) {
	parentID, ok := parentFilter(c)
	if !ok {
		return
	}
	folders, err := service.ListFolders(c.Request.Context(), currentUserID(c), parentID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, folders)
}

func CreateFolder(c *gin.Context) {
	var req dto.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	folder, err := service.CreateFolder(c.Request.Context(), currentUserID(c), req.Name, req.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": 0, "msg": "ok", "data": folder})
}

// Breadcrumb returns the folder chain from the root down to :id.
func Breadcrumb(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	chain, err := service.Breadcrumb(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, chain)
}

func RenameFolder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	folder, err := service.RenameFolder(c.Request.Context(), currentUserID(c), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, folder)
}

func MoveFolder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	folder, err := service.MoveFolder(c.Request.Context(), currentUserID(c), id, req.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, folder)
}

// DeleteFolder removes an empty folder; non-empty folders answer 409 FOLDER_NOT_EMPTY.
func DeleteFolder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := service.DeleteFolder(c.Request.Context(), currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, nil)
}

// FolderArchive streams a folder and everything below it as a zip.
func FolderArchive(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	name, entries, err := service.BuildFolderArchive(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", contentDisposition("attachment", name+".zip"))
	c.Status(http.StatusOK)
	if err := service.WriteArchive(c.Request.Context(), c.Writer, entries); err != nil {
		logger.Log.Warn().Err(err).Uint64("folder_id", id).Msg("archive interrupted")
	}
}
