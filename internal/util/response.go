package util

import (
	"errors"
	"gamehub_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Code:    http.StatusAccepted,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	InternalServerError(c)
}

var errorStatus = []struct {
	target error
	status int
}{
	{ErrInvalidFilterSpec, http.StatusBadRequest},
	{ErrInvalidGame, http.StatusBadRequest},
	{ErrInvalidProfile, http.StatusBadRequest},
	{ErrInvalidStatusTransition, http.StatusBadRequest},
	{ErrValidationRejected, http.StatusUnprocessableEntity},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrInvalidCredentials, http.StatusUnauthorized},
	{ErrPermissionDenied, http.StatusForbidden},
	{ErrNotPurchased, http.StatusForbidden},
	{ErrGameNotFound, http.StatusNotFound},
	{ErrBuildNotFound, http.StatusNotFound},
	{ErrUploadNotFound, http.StatusNotFound},
	{ErrUserNotFound, http.StatusNotFound},
	{ErrEmailRegistered, http.StatusConflict},
	{ErrFinalizeIncomplete, http.StatusConflict},
	{ErrCatalogUnavailable, http.StatusServiceUnavailable},
}

// HandleError 将业务错误映射为 HTTP 状态码，未知错误按 500 处理并记录日志
func HandleError(c *gin.Context, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.target) {
			Error(c, e.status, err.Error())
			return
		}
	}
	LogInternalError(c, err)
}
