package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrGoalNotFound 在目标不存在或不属于当前用户时返回
	ErrGoalNotFound = errors.New("goal not found")
	// ErrGoalCycle 在父链上卷过程中重复访问同一目标时返回，属于数据异常
	ErrGoalCycle = errors.New("goal parent chain contains a cycle")
	// ErrInvalidGoal 在目标配置不合法时返回
	ErrInvalidGoal = errors.New("invalid goal configuration")
)

// 进度写入模式
const (
	ProgressModeAdd = "add"
	ProgressModeSet = "set"
)

// GoalService 负责目标的增删改查、进度累加与父链上卷
type GoalService struct {
	db *gorm.DB
}

// GoalInput 定义创建/更新目标时可配置字段
type GoalInput struct {
	Name         string
	Description  string
	Period       string
	ParentID     *uint
	TrackingType db.ValueType
	TargetValue  float64
	Notes        string
}

// GoalProgressInput 定义一次进度写入
// add 模式把 Value 累加到当日进度，set 模式直接覆盖当日进度
type GoalProgressInput struct {
	Value          float64
	Mode           string
	Notes          string
	TimezoneOffset int
}

// NewGoalService 构造 GoalService
func NewGoalService(gdb *gorm.DB) *GoalService {
	return &GoalService{db: gdb}
}

// List 返回当前用户的目标集合
func (s *GoalService) List(ownerID uint, status string) ([]db.Goal, error) {
	var goals []db.Goal

	query := s.db.Model(&db.Goal{}).Where("owner_id = ?", ownerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Order("created_at DESC").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// Get 根据 ID 获取目标
func (s *GoalService) Get(ownerID, id uint) (*db.Goal, error) {
	return loadOwnedGoal(s.db, ownerID, id)
}

// Create 新建目标，按周期推算截止时间
func (s *GoalService) Create(ownerID uint, input GoalInput) (*db.Goal, error) {
	if err := validateGoalInput(input); err != nil {
		return nil, err
	}

	if input.ParentID != nil {
		if _, err := loadOwnedGoal(s.db, ownerID, *input.ParentID); err != nil {
			return nil, err
		}
	}

	goal := db.Goal{
		OwnerID:      ownerID,
		Name:         strings.TrimSpace(input.Name),
		Description:  strings.TrimSpace(input.Description),
		Period:       input.Period,
		ParentID:     input.ParentID,
		TrackingType: input.TrackingType,
		TargetValue:  input.TargetValue,
		Notes:        strings.TrimSpace(input.Notes),
		Status:       db.GoalStatusActive,
		Deadline:     computeDeadline(input.Period, time.Now()),
	}

	if err := s.db.Create(&goal).Error; err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return &goal, nil
}

// Update 更新目标基础字段；CurrentValue 等进度字段只走进度写入路径
func (s *GoalService) Update(ownerID, id uint, input GoalInput) (*db.Goal, error) {
	if err := validateGoalInput(input); err != nil {
		return nil, err
	}

	goal, err := loadOwnedGoal(s.db, ownerID, id)
	if err != nil {
		return nil, err
	}

	if input.ParentID != nil {
		if *input.ParentID == goal.ID {
			return nil, fmt.Errorf("%w: goal cannot be its own parent", ErrInvalidGoal)
		}
		if _, err := loadOwnedGoal(s.db, ownerID, *input.ParentID); err != nil {
			return nil, err
		}
	}

	goal.Name = strings.TrimSpace(input.Name)
	goal.Description = strings.TrimSpace(input.Description)
	goal.Period = input.Period
	goal.ParentID = input.ParentID
	goal.TrackingType = input.TrackingType
	goal.TargetValue = input.TargetValue
	goal.Notes = strings.TrimSpace(input.Notes)

	if err := s.db.Save(goal).Error; err != nil {
		return nil, fmt.Errorf("update goal: %w", err)
	}
	return goal, nil
}

// Delete 删除目标及其进度记录，并解除例行任务关联
// 子目标不级联：它们的 ParentID 保持原值，上卷会在缺失的父目标处终止
func (s *GoalService) Delete(ownerID, id uint) error {
	goal, err := loadOwnedGoal(s.db, ownerID, id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("goal_id = ?", goal.ID).Delete(&db.GoalProgressLog{}).Error; err != nil {
			return fmt.Errorf("delete goal progress logs: %w", err)
		}
		if err := tx.Model(goal).Association("Routines").Clear(); err != nil {
			return fmt.Errorf("unlink goal routines: %w", err)
		}
		if err := tx.Delete(goal).Error; err != nil {
			return fmt.Errorf("delete goal: %w", err)
		}
		return nil
	})
}

// UpdateProgress 写入一次进度并沿父链上卷，整条链在同一事务内完成
func (s *GoalService) UpdateProgress(ownerID, goalID uint, input GoalProgressInput) (*db.Goal, error) {
	var result *db.Goal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		today := LocalToday(time.Now(), input.TimezoneOffset)
		goal, err := updateProgressChain(tx, ownerID, goalID, today, input)
		if err != nil {
			return err
		}
		result = goal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Snapshot 返回目标当前的连胜快照
func (s *GoalService) Snapshot(ownerID, id uint) (*StreakSnapshot, error) {
	goal, err := loadOwnedGoal(s.db, ownerID, id)
	if err != nil {
		return nil, err
	}

	snapshot := &StreakSnapshot{
		CurrentStreak:    goal.StreakCurrent,
		LongestStreak:    goal.StreakLongest,
		TotalCompletions: goal.TotalCompletions,
	}
	if goal.LastLogDate != nil {
		formatted := goal.LastLogDate.Format("2006-01-02")
		snapshot.LastCompletedDate = &formatted
	}
	return snapshot, nil
}

// Reconcile 以进度记录求和校正 CurrentValue，返回修正前后的漂移量
// 累加器写入有误时可用它恢复一致性
func (s *GoalService) Reconcile(ownerID, id uint) (float64, error) {
	goal, err := loadOwnedGoal(s.db, ownerID, id)
	if err != nil {
		return 0, err
	}

	var total float64
	if err := s.db.Model(&db.GoalProgressLog{}).
		Where("goal_id = ?", goal.ID).
		Select("COALESCE(SUM(value), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("sum goal progress: %w", err)
	}

	drift := goal.CurrentValue - total
	if drift == 0 {
		return 0, nil
	}

	if err := s.db.Model(goal).Update("current_value", total).Error; err != nil {
		return 0, fmt.Errorf("reconcile goal: %w", err)
	}
	return drift, nil
}

// updateProgressChain 以显式循环代替递归沿父链上卷
// visited 集合防御数据中的环：重复访问视为硬错误，整个事务回滚
// 父目标已被删除时链在缺口处安静终止
func updateProgressChain(tx *gorm.DB, ownerID, goalID uint, today time.Time, input GoalProgressInput) (*db.Goal, error) {
	visited := make(map[uint]struct{})
	var first *db.Goal

	id := goalID
	current := input
	for {
		if _, seen := visited[id]; seen {
			return nil, fmt.Errorf("%w: goal %d revisited", ErrGoalCycle, id)
		}
		visited[id] = struct{}{}

		goal, delta, err := applyGoalProgress(tx, ownerID, id, today, current)
		if err != nil {
			if first != nil && errors.Is(err, ErrGoalNotFound) {
				break
			}
			return nil, err
		}

		if first == nil {
			first = goal
		}
		if goal.ParentID == nil || delta == 0 {
			break
		}

		id = *goal.ParentID
		current = GoalProgressInput{Value: delta, Mode: ProgressModeAdd, TimezoneOffset: input.TimezoneOffset}
	}

	return first, nil
}

// applyGoalProgress 处理单个目标的进度写入：当日进度 upsert、累加器更新、
// 连胜重算与自动完成判定，返回写入产生的增量供上卷使用
func applyGoalProgress(tx *gorm.DB, ownerID, goalID uint, today time.Time, input GoalProgressInput) (*db.Goal, float64, error) {
	goal, err := loadOwnedGoal(tx, ownerID, goalID)
	if err != nil {
		return nil, 0, err
	}

	var entry db.GoalProgressLog
	findErr := tx.Where("goal_id = ? AND log_date = ?", goal.ID, today).First(&entry).Error
	newEntry := errors.Is(findErr, gorm.ErrRecordNotFound)
	if findErr != nil && !newEntry {
		return nil, 0, fmt.Errorf("load progress log: %w", findErr)
	}

	oldValue := 0.0
	if !newEntry {
		oldValue = entry.Value
	}

	newValue := oldValue + input.Value
	if input.Mode == ProgressModeSet {
		newValue = input.Value
	}
	delta := newValue - oldValue

	record := db.GoalProgressLog{
		GoalID:  goal.ID,
		LogDate: today,
		Value:   newValue,
		Notes:   strings.TrimSpace(input.Notes),
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "goal_id"}, {Name: "log_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "notes", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return nil, 0, fmt.Errorf("upsert progress log: %w", err)
	}

	goal.CurrentValue += delta
	if newEntry {
		goal.TotalCompletions++
	}
	if goal.LastLogDate == nil || today.After(*goal.LastLogDate) {
		logDate := today
		goal.LastLogDate = &logDate
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		goal.Notes = notes
	}

	var dates []time.Time
	if err := tx.Model(&db.GoalProgressLog{}).
		Where("goal_id = ?", goal.ID).
		Pluck("log_date", &dates).Error; err != nil {
		return nil, 0, fmt.Errorf("load progress dates: %w", err)
	}

	// 目标没有可配置日程，按“每天都应打卡”重算连胜
	streaks := RecomputeStreaks(DailySchedule(), dates, today)
	goal.StreakCurrent = streaks.Current
	goal.StreakLongest = streaks.Longest

	// 有限周期目标达到目标值时单向转入 completed，后续回落不自动回退
	if goal.Period != db.GoalPeriodIndefinite &&
		goal.TargetValue > 0 &&
		goal.CurrentValue >= goal.TargetValue &&
		goal.Status == db.GoalStatusActive {
		goal.Status = db.GoalStatusCompleted
		now := time.Now()
		goal.CompletedAt = &now
	}

	if err := tx.Save(goal).Error; err != nil {
		return nil, 0, fmt.Errorf("save goal: %w", err)
	}

	return goal, delta, nil
}

func loadOwnedGoal(tx *gorm.DB, ownerID, id uint) (*db.Goal, error) {
	var goal db.Goal
	if err := tx.Where("owner_id = ?", ownerID).First(&goal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGoalNotFound
		}
		return nil, fmt.Errorf("load goal: %w", err)
	}
	return &goal, nil
}

func validateGoalInput(input GoalInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidGoal)
	}

	switch input.Period {
	case db.GoalPeriodWeekly, db.GoalPeriodMonthly, db.GoalPeriodYearly, db.GoalPeriodIndefinite:
	default:
		return fmt.Errorf("%w: unsupported period %s", ErrInvalidGoal, input.Period)
	}

	if input.TargetValue < 0 {
		return fmt.Errorf("%w: target value cannot be negative", ErrInvalidGoal)
	}

	return nil
}

// computeDeadline 把周期换算为截止时间：周到下个 ISO 周一、月到下月一号、年到明年元旦
func computeDeadline(period string, now time.Time) *time.Time {
	today := DayKey(now)

	var deadline time.Time
	switch period {
	case db.GoalPeriodWeekly:
		offset := (int(today.Weekday()) + 6) % 7
		deadline = today.AddDate(0, 0, 7-offset)
	case db.GoalPeriodMonthly:
		deadline = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	case db.GoalPeriodYearly:
		deadline = time.Date(today.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return nil
	}

	return &deadline
}
