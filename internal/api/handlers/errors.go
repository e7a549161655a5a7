package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/goccy/go-json"

	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
	"github.com/princeprakhar/movie-watchlist/internal/validation"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

const nonFieldKey = "non_field_errors"

// respondError maps service errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	var nf *services.NotFoundError
	var verr *services.ValidationError

	switch {
	case errors.As(err, &nf):
		utils.SendNotFound(c, nf.Error())
	case errors.As(err, &verr):
		respondValidation(c, verr.Fields, verr.NonField)
	case errors.Is(err, services.ErrAlreadyReviewed):
		utils.SendError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		utils.SendUnauthorized(c, "Authentication credentials were not provided.")
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.SendUnauthorized(c, "Unable to log in with provided credentials.")
	case errors.Is(err, services.ErrInvalidToken):
		utils.SendUnauthorized(c, "Invalid token.")
	case errors.Is(err, services.ErrForbidden):
		utils.SendForbidden(c, "You do not have permission to perform this action.")
	case errors.Is(err, services.ErrInvalidPage):
		utils.SendDetail(c, http.StatusNotFound, "Invalid page.")
	case errors.Is(err, services.ErrStorageDisabled):
		utils.SendDetail(c, http.StatusServiceUnavailable, "Poster storage is not configured.")
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		utils.SendInternalError(c)
	}
}

// respondValidation answers 400. Messages tied to no field are sent as a
// bare list when they are the only ones.
func respondValidation(c *gin.Context, fields map[string][]string, nonField []string) {
	if len(fields) == 0 {
		utils.SendListErrors(c, nonField)
		return
	}

	body := make(map[string][]string, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	if len(nonField) > 0 {
		body[nonFieldKey] = nonField
	}
	utils.SendFieldErrors(c, body)
}

// bindJSON decodes the body into obj and answers 400 on failure. An empty
// body is validated as an empty object.
func bindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(obj)
	}
	if err == nil {
		return true
	}

	respondBindError(c, err)
	return false
}

// bindJSONAfter decodes the body, runs lookup and only then validates the
// fields, so a missing entity is reported ahead of an incomplete body.
func bindJSONAfter(c *gin.Context, obj interface{}, lookup func() error) bool {
	if c.Request.Body != nil {
		err := json.NewDecoder(c.Request.Body).Decode(obj)
		if err != nil && !errors.Is(err, io.EOF) {
			respondBindError(c, err)
			return false
		}
	}
	if err := lookup(); err != nil {
		respondError(c, err)
		return false
	}
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

func respondBindError(c *gin.Context, err error) {
	translated := validation.Translate(err)
	nonField := translated[""]
	delete(translated, "")
	respondValidation(c, translated, nonField)
}

// parseID reads a numeric path parameter. Anything else is reported as a
// missing entity.
func parseID(c *gin.Context, param, entity string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		respondError(c, &services.NotFoundError{Entity: entity})
		return 0, false
	}
	return uint(id), true
}

// queryInt parses an optional integer query parameter. Missing and
// malformed values read as zero.
func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
