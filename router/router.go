package router

import (
	"Cabinet/internal/handler"
	"Cabinet/internal/metrics"
	"Cabinet/utils"

	"github.com/gin-gonic/gin"
)

// InitRouter builds API routes.
func InitRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), utils.AccessLogMiddleware(), metrics.Middleware(), utils.CORSMiddleware())

	r.GET("/health", handler.Health)
	r.GET("/metrics", metrics.Handler())

	// Public share links need no account.
	s := r.Group("/s")
	{
		s.GET("/:id/info", handler.ShareInfo)
		s.GET("/:id", handler.ShareDownload)
	}

	api := r.Group("/api")
	{
		api.POST("/auth/register", handler.Register)
		api.POST("/auth/login", handler.Login)

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware())

		auth.POST("/upload", handler.Upload)
		auth.GET("/usage", handler.Usage)
		auth.GET("/thumbnails/:id", handler.Thumbnail)
		auth.GET("/derivatives", handler.DerivativeTasks)

		file := auth.Group("/files")
		{
			file.GET("", handler.ListFiles)
			file.GET("/search", handler.SearchFiles)
			file.GET("/:id", handler.GetFile)
			file.GET("/:id/content", handler.FileContent)
			file.GET("/:id/verify", handler.VerifyFile)
			file.POST("/:id/rename", handler.RenameFile)
			file.POST("/:id/move", handler.MoveFile)
			file.DELETE("/:id", handler.DeleteFile)
		}

		folder := auth.Group("/folders")
		{
			folder.GET("", handler.ListFolders)
			folder.POST("", handler.CreateFolder)
			folder.GET("/:id/breadcrumb", handler.Breadcrumb)
			folder.GET("/:id/archive", handler.FolderArchive)
			folder.POST("/:id/rename", handler.RenameFolder)
			folder.POST("/:id/move", handler.MoveFolder)
			folder.DELETE("/:id", handler.DeleteFolder)
		}

		share := auth.Group("/shares")
		{
			share.GET("", handler.ListShares)
			share.POST("", handler.CreateShare)
			share.DELETE("/:id", handler.DeactivateShare)
		}

		admin := auth.Group("")
		admin.Use(utils.AdminMiddleware())
		{
			admin.GET("/users", handler.ListUsers)
			admin.POST("/users", handler.CreateUser)
			admin.PATCH("/users/:id/quota", handler.SetQuota)
			admin.PATCH("/users/:id/password", handler.ResetPassword)
			admin.DELETE("/users/:id", handler.DeleteUser)

			admin.GET("/admin/backup/db", handler.BackupDB)
			admin.POST("/admin/backup/minio", handler.BackupMinio)
			admin.GET("/admin/logs", handler.Logs)
		}
	}
	return r
}
