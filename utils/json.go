package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success writes a success JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// Fail writes an error JSON response with a stable machine-readable code.
func Fail(c *gin.Context, status int, code string, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}
