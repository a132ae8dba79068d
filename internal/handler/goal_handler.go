package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/service"
)

type goalPayload struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Period       string  `json:"period"`
	ParentID     *uint   `json:"parent_id"`
	TrackingType string  `json:"tracking_type"`
	TargetValue  float64 `json:"target_value"`
	Notes        string  `json:"notes"`
}

type goalProgressPayload struct {
	Value float64 `json:"value"`
	Mode  string  `json:"mode"`
	Notes string  `json:"notes"`
}

func goalToView(goal db.Goal) gin.H {
	view := gin.H{
		"id":                goal.ID,
		"public_id":         goal.PublicID.String(),
		"name":              goal.Name,
		"description":       goal.Description,
		"period":            goal.Period,
		"parent_id":         goal.ParentID,
		"tracking_type":     goal.TrackingType,
		"target_value":      goal.TargetValue,
		"current_value":     goal.CurrentValue,
		"streak_current":    goal.StreakCurrent,
		"streak_longest":    goal.StreakLongest,
		"total_completions": goal.TotalCompletions,
		"notes":             goal.Notes,
		"notes_html":        service.RenderNoteHTML(goal.Notes),
		"status":            goal.Status,
	}
	if goal.LastLogDate != nil {
		view["last_log_date"] = goal.LastLogDate.Format(dateFormat)
	}
	if goal.CompletedAt != nil {
		view["completed_at"] = goal.CompletedAt
	}
	if goal.Deadline != nil {
		view["deadline"] = goal.Deadline.Format(dateFormat)
	}
	return view
}

func (p goalPayload) toInput() service.GoalInput {
	return service.GoalInput{
		Name:         p.Name,
		Description:  p.Description,
		Period:       p.Period,
		ParentID:     p.ParentID,
		TrackingType: db.ValueType(p.TrackingType),
		TargetValue:  p.TargetValue,
		Notes:        p.Notes,
	}
}

// ListGoals 返回目标列表 JSON
func (a *API) ListGoals(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	goals, err := a.goals.List(ownerID, c.Query("status"))
	if err != nil {
		respondServiceError(c, err, "获取目标列表失败")
		return
	}

	items := make([]gin.H, 0, len(goals))
	for _, goal := range goals {
		items = append(items, goalToView(goal))
	}
	c.JSON(http.StatusOK, gin.H{"goals": items})
}

// GetGoal 返回单个目标
func (a *API) GetGoal(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的目标 ID")
		return
	}

	goal, err := a.goals.Get(ownerID, id)
	if err != nil {
		respondServiceError(c, err, "获取目标失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"goal": goalToView(*goal)})
}

// CreateGoal 新建目标
func (a *API) CreateGoal(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var payload goalPayload
	if !bindJSON(c, &payload, "目标参数不合法") {
		return
	}

	goal, err := a.goals.Create(ownerID, payload.toInput())
	if err != nil {
		respondServiceError(c, err, "创建目标失败")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"goal": goalToView(*goal)})
}

// UpdateGoal 更新目标基础字段
func (a *API) UpdateGoal(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的目标 ID")
		return
	}

	var payload goalPayload
	if !bindJSON(c, &payload, "目标参数不合法") {
		return
	}

	goal, err := a.goals.Update(ownerID, id, payload.toInput())
	if err != nil {
		respondServiceError(c, err, "更新目标失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"goal": goalToView(*goal)})
}

// DeleteGoal 删除目标；子目标保留，不做级联
func (a *API) DeleteGoal(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的目标 ID")
		return
	}

	if err := a.goals.Delete(ownerID, id); err != nil {
		respondServiceError(c, err, "删除目标失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// UpdateGoalProgress 写入一次进度并沿父链上卷
func (a *API) UpdateGoalProgress(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的目标 ID")
		return
	}

	var payload goalProgressPayload
	if !bindJSON(c, &payload, "进度参数不合法") {
		return
	}

	goal, err := a.goals.UpdateProgress(ownerID, id, service.GoalProgressInput{
		Value:          payload.Value,
		Mode:           payload.Mode,
		Notes:          payload.Notes,
		TimezoneOffset: timezoneOffset(c, ownerID),
	})
	if err != nil {
		respondServiceError(c, err, "更新目标进度失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"goal": goalToView(*goal)})
}

// GetGoalStreak 返回目标的连胜快照
func (a *API) GetGoalStreak(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的目标 ID")
		return
	}

	snapshot, err := a.goals.Snapshot(ownerID, id)
	if err != nil {
		respondServiceError(c, err, "获取连胜快照失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current_streak":      snapshot.CurrentStreak,
		"longest_streak":      snapshot.LongestStreak,
		"total_completions":   snapshot.TotalCompletions,
		"last_completed_date": snapshot.LastCompletedDate,
	})
}

// ReconcileGoal 以进度记录求和校正累加器，返回修正的漂移量
func (a *API) ReconcileGoal(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的目标 ID")
		return
	}

	drift, err := a.goals.Reconcile(ownerID, id)
	if err != nil {
		respondServiceError(c, err, "校正目标进度失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"drift": drift})
}
