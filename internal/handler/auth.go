package handler

import (
	"Cabinet/internal/dto"
	"Cabinet/internal/service"
	"Cabinet/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register creates a regular account.
func Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	user, err := service.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": 0, "msg": "ok", "data": user})
}

// Login authenticates a user and returns a token.
func Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	user, token, err := service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, dto.LoginResponse{Token: token, User: user})
}

// Usage reports the caller's quota ledger.
func Usage(c *gin.Context) {
	usage, err := service.GetUsage(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, usage)
}
