// Package controllers holds the gin handlers of the HTTP API.
package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/models"
)

// respondError writes err with the status its kind maps to. Internal errors
// are logged and hidden from the client.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithFields(logrus.Fields{
			"path":   c.FullPath(),
			"method": c.Request.Method,
			"kind":   apperrors.Kind(err),
		}).WithError(err).Error("Request failed")
		if status == http.StatusInternalServerError {
			c.JSON(status, gin.H{"error": "internal error"})
			return
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", apperrors.ErrInvalidInput, name, raw)
	}
	return uint(id), nil
}

// caller reads the identity set by middleware.RequireAuth.
func caller(c *gin.Context) models.Caller {
	who, _ := middleware.CallerFrom(c)
	return who
}

func list(c *gin.Context, data interface{}, count int) {
	c.JSON(http.StatusOK, gin.H{"count": count, "data": data})
}
