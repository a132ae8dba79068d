package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/service"
)

const dateFormat = "2006-01-02"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

func parseDateQuery(c *gin.Context, key string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(dateFormat, raw)
}

// respondServiceError 把 service 层的类型化错误映射为 HTTP 状态码
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrRoutineNotFound),
		errors.Is(err, service.ErrGoalNotFound),
		errors.Is(err, service.ErrRoutineLogNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRoutine),
		errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidGoal),
		errors.Is(err, service.ErrInvalidLogValue),
		errors.Is(err, service.ErrUnknownValueType):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrGoalCycle):
		respondError(c, http.StatusConflict, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, fallback)
	}
}
