package utils

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of not-found and conflict failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DetailResponse is the body of authentication, permission and throttling failures.
type DetailResponse struct {
	Detail string `json:"detail"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func SendNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func SendMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, MessageResponse{Message: message})
}

func SendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{Error: message})
}

func SendDetail(c *gin.Context, statusCode int, detail string) {
	c.JSON(statusCode, DetailResponse{Detail: detail})
}

func SendNotFound(c *gin.Context, message string) {
	SendError(c, http.StatusNotFound, message)
}

// SendFieldErrors reports validation failures keyed by field name.
func SendFieldErrors(c *gin.Context, fields map[string][]string) {
	c.JSON(http.StatusBadRequest, fields)
}

// SendListErrors reports validation failures that belong to no single field.
func SendListErrors(c *gin.Context, messages []string) {
	c.JSON(http.StatusBadRequest, messages)
}

func SendUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	SendDetail(c, http.StatusUnauthorized, message)
}

func SendForbidden(c *gin.Context, message string) {
	SendDetail(c, http.StatusForbidden, message)
}

func SendThrottled(c *gin.Context, waitSeconds int64) {
	c.Header("Retry-After", strconv.FormatInt(waitSeconds, 10))
	SendDetail(c, http.StatusTooManyRequests,
		fmt.Sprintf("Request was throttled. Expected available in %d seconds.", waitSeconds))
}

func SendInternalError(c *gin.Context) {
	SendError(c, http.StatusInternalServerError, "Internal server error")
}
