package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("routinelog_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	api := handler.NewAPI(db.DB)

	r.POST("/api/login", handler.Login)
	r.POST("/api/logout", handler.Logout)

	// 需要认证的核心 API
	auth := r.Group("/api")
	auth.Use(handler.AuthRequired())
	{
		auth.GET("/routines", api.ListRoutines)
		auth.POST("/routines", api.CreateRoutine)
		auth.GET("/routines/:id", api.GetRoutine)
		auth.PUT("/routines/:id", api.UpdateRoutine)
		auth.POST("/routines/:id/archive", api.ArchiveRoutine)
		auth.DELETE("/routines/:id", api.DeleteRoutine)
		auth.POST("/routines/:id/goals/:goalId", api.LinkRoutineGoal)
		auth.DELETE("/routines/:id/goals/:goalId", api.UnlinkRoutineGoal)
		auth.GET("/routines/:id/streak", api.GetRoutineStreak)
		auth.GET("/routines/:id/logs", api.ListRoutineLogs)

		auth.POST("/logs", api.UpsertRoutineLog)
		auth.PUT("/logs/:id", api.UpdateRoutineLog)
		auth.DELETE("/logs/:id", api.DeleteRoutineLog)

		auth.GET("/goals", api.ListGoals)
		auth.POST("/goals", api.CreateGoal)
		auth.GET("/goals/:id", api.GetGoal)
		auth.PUT("/goals/:id", api.UpdateGoal)
		auth.DELETE("/goals/:id", api.DeleteGoal)
		auth.POST("/goals/:id/progress", api.UpdateGoalProgress)
		auth.GET("/goals/:id/streak", api.GetGoalStreak)
		auth.POST("/goals/:id/reconcile", api.ReconcileGoal)
	}

	return r
}
