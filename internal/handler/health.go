package handler

import (
	"Cabinet/internal/repo"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports whether the metadata store answers.
func Health(c *gin.Context) {
	sqlDB, err := repo.Db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
