package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/service"
)

type routinePayload struct {
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	ValueType        string           `json:"value_type"`
	Config           db.RoutineConfig `json:"config"`
	Schedule         db.Schedule      `json:"schedule"`
	CompletionMode   string           `json:"completion_mode"`
	GradualThreshold float64          `json:"gradual_threshold"`
	GoalIDs          []uint           `json:"goal_ids"`
}

type routineLogPayload struct {
	RoutineID uint        `json:"routine_id"`
	LogDate   string      `json:"log_date"`
	Value     db.LogValue `json:"value"`
}

func routineToView(routine db.Routine) gin.H {
	view := gin.H{
		"id":                routine.ID,
		"public_id":         routine.PublicID.String(),
		"name":              routine.Name,
		"description":       routine.Description,
		"value_type":        routine.ValueType,
		"config":            routine.Config,
		"schedule":          routine.Schedule,
		"completion_mode":   routine.CompletionMode,
		"gradual_threshold": routine.GradualThreshold,
		"status":            routine.Status,
		"current_streak":    routine.CurrentStreak,
		"longest_streak":    routine.LongestStreak,
		"total_completions": routine.TotalCompletions,
	}
	if routine.LastCompletedDate != nil {
		view["last_completed_date"] = routine.LastCompletedDate.Format(dateFormat)
	}
	if len(routine.Goals) > 0 {
		ids := make([]uint, 0, len(routine.Goals))
		for _, goal := range routine.Goals {
			ids = append(ids, goal.ID)
		}
		view["goal_ids"] = ids
	}
	return view
}

func routineLogToView(record db.RoutineLog) gin.H {
	return gin.H{
		"id":                 record.ID,
		"routine_id":         record.RoutineID,
		"log_date":           record.LogDate.Format(dateFormat),
		"value":              record.Value,
		"completion_percent": record.CompletionPercent,
		"counts_for_streak":  record.CountsForStreak,
		"logged_at":          record.LoggedAt,
	}
}

func (p routinePayload) toInput() service.RoutineInput {
	return service.RoutineInput{
		Name:             p.Name,
		Description:      p.Description,
		ValueType:        db.ValueType(p.ValueType),
		Config:           p.Config,
		Schedule:         p.Schedule,
		CompletionMode:   p.CompletionMode,
		GradualThreshold: p.GradualThreshold,
		GoalIDs:          p.GoalIDs,
	}
}

// ListRoutines 返回例行任务列表 JSON
func (a *API) ListRoutines(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	filter := service.RoutineFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
	}

	routines, err := a.routines.List(ownerID, filter)
	if err != nil {
		respondServiceError(c, err, "获取例行任务列表失败")
		return
	}

	items := make([]gin.H, 0, len(routines))
	for _, routine := range routines {
		items = append(items, routineToView(routine))
	}
	c.JSON(http.StatusOK, gin.H{"routines": items})
}

// GetRoutine 返回单个例行任务
func (a *API) GetRoutine(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的例行任务 ID")
		return
	}

	routine, err := a.routines.Get(ownerID, id)
	if err != nil {
		respondServiceError(c, err, "获取例行任务失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": routineToView(*routine)})
}

// CreateRoutine 新建例行任务
func (a *API) CreateRoutine(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var payload routinePayload
	if !bindJSON(c, &payload, "例行任务参数不合法") {
		return
	}

	routine, err := a.routines.Create(ownerID, payload.toInput())
	if err != nil {
		respondServiceError(c, err, "创建例行任务失败")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"routine": routineToView(*routine)})
}

// UpdateRoutine 更新例行任务
func (a *API) UpdateRoutine(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的例行任务 ID")
		return
	}

	var payload routinePayload
	if !bindJSON(c, &payload, "例行任务参数不合法") {
		return
	}

	routine, err := a.routines.Update(ownerID, id, payload.toInput())
	if err != nil {
		respondServiceError(c, err, "更新例行任务失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": routineToView(*routine)})
}

// ArchiveRoutine 归档例行任务，保留历史记录
func (a *API) ArchiveRoutine(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的例行任务 ID")
		return
	}

	if err := a.routines.Archive(ownerID, id); err != nil {
		respondServiceError(c, err, "归档例行任务失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteRoutine 删除例行任务及其打卡记录
func (a *API) DeleteRoutine(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的例行任务 ID")
		return
	}

	if err := a.routines.Delete(ownerID, id); err != nil {
		respondServiceError(c, err, "删除例行任务失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// LinkRoutineGoal 建立例行任务与目标的关联
func (a *API) LinkRoutineGoal(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	routineID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的例行任务 ID")
		return
	}
	goalID, err := parseUintParam(c, "goalId")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的目标 ID")
		return
	}

	if err := a.routines.LinkGoal(ownerID, routineID, goalID); err != nil {
		respondServiceError(c, err, "关联目标失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// UnlinkRoutineGoal 解除例行任务与目标的关联
func (a *API) UnlinkRoutineGoal(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	routineID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的例行任务 ID")
		return
	}
	goalID, err := parseUintParam(c, "goalId")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的目标 ID")
		return
	}

	if err := a.routines.UnlinkGoal(ownerID, routineID, goalID); err != nil {
		respondServiceError(c, err, "解除目标关联失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetRoutineStreak 返回例行任务的连胜快照
func (a *API) GetRoutineStreak(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的例行任务 ID")
		return
	}

	snapshot, err := a.routines.Snapshot(ownerID, id)
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

// ListRoutineLogs 返回区间内的打卡记录，默认最近 30 天
func (a *API) ListRoutineLogs(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	routineID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的例行任务 ID")
		return
	}

	now := time.Now()
	start, err := parseDateQuery(c, "start", now.AddDate(0, 0, -30))
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return
	}
	end, err := parseDateQuery(c, "end", now)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return
	}

	logs, err := a.routineLogs.ListBetween(ownerID, service.RoutineLogFilter{
		RoutineID: routineID,
		Start:     start,
		End:       end,
	})
	if err != nil {
		respondServiceError(c, err, "获取打卡记录失败")
		return
	}

	items := make([]gin.H, 0, len(logs))
	for _, record := range logs {
		items = append(items, routineLogToView(record))
	}
	c.JSON(http.StatusOK, gin.H{"logs": items})
}

// UpsertRoutineLog 幂等打卡：同一天重复提交会覆盖原记录
func (a *API) UpsertRoutineLog(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var payload routineLogPayload
	if !bindJSON(c, &payload, "打卡参数不合法") {
		return
	}

	logDate, err := time.Parse(dateFormat, payload.LogDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的打卡日期")
		return
	}

	record, err := a.routineLogs.Upsert(ownerID, service.RoutineLogInput{
		RoutineID:      payload.RoutineID,
		LogDate:        logDate,
		Value:          payload.Value,
		TimezoneOffset: timezoneOffset(c, ownerID),
	})
	if err != nil {
		respondServiceError(c, err, "打卡失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": routineLogToView(*record)})
}

// UpdateRoutineLog 以新记录值重打分
func (a *API) UpdateRoutineLog(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	logID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的记录 ID")
		return
	}

	var payload struct {
		Value db.LogValue `json:"value"`
	}
	if !bindJSON(c, &payload, "打卡参数不合法") {
		return
	}

	record, err := a.routineLogs.Update(ownerID, logID, payload.Value, timezoneOffset(c, ownerID))
	if err != nil {
		respondServiceError(c, err, "更新打卡记录失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": routineLogToView(*record)})
}

// DeleteRoutineLog 删除打卡记录并回冲目标进度
func (a *API) DeleteRoutineLog(c *gin.Context) {
	ownerID, ok := currentOwnerID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	logID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的记录 ID")
		return
	}

	if err := a.routineLogs.Delete(ownerID, logID, timezoneOffset(c, ownerID)); err != nil {
		respondServiceError(c, err, "删除打卡记录失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
