package handler

import (
	"github.com/routinelog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	routines    *service.RoutineService
	routineLogs *service.RoutineLogService
	goals       *service.GoalService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB) *API {
	return &API{
		routines:    service.NewRoutineService(db),
		routineLogs: service.NewRoutineLogService(db),
		goals:       service.NewGoalService(db),
	}
}
