package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hray3182/GeoNudge/internal/errs"
)

func abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// abortError maps pipeline sentinels onto HTTP statuses.
func abortError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		abort(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		abort(c, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrConflict):
		abort(c, http.StatusConflict, err.Error())
	default:
		abort(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
