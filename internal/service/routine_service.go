package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrRoutineNotFound 在例行任务不存在或不属于当前用户时返回
	ErrRoutineNotFound = errors.New("routine not found")
	// ErrInvalidRoutine 在例行任务配置不合法时返回
	ErrInvalidRoutine = errors.New("invalid routine configuration")
	// ErrInvalidSchedule 在日程配置不合法时返回
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// RoutineService 负责例行任务的增删改查与目标关联
type RoutineService struct {
	db *gorm.DB
}

// RoutineInput 定义创建/更新例行任务时可配置字段
type RoutineInput struct {
	Name             string
	Description      string
	ValueType        db.ValueType
	Config           db.RoutineConfig
	Schedule         db.Schedule
	CompletionMode   string
	GradualThreshold float64
	GoalIDs          []uint
}

// RoutineFilter 描述列表过滤条件
type RoutineFilter struct {
	Status string
	Search string
}

// NewRoutineService 构造 RoutineService
func NewRoutineService(gdb *gorm.DB) *RoutineService {
	return &RoutineService{db: gdb}
}

// List 返回当前用户的例行任务集合，支持基本筛选
func (s *RoutineService) List(ownerID uint, filter RoutineFilter) ([]db.Routine, error) {
	var routines []db.Routine

	query := s.db.Model(&db.Routine{}).Where("owner_id = ?", ownerID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC").Find(&routines).Error; err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}

	return routines, nil
}

// Get 根据 ID 获取例行任务，并带出关联目标
func (s *RoutineService) Get(ownerID, id uint) (*db.Routine, error) {
	return loadOwnedRoutine(s.db, ownerID, id)
}

// Create 新建例行任务，可同时建立目标关联
func (s *RoutineService) Create(ownerID uint, input RoutineInput) (*db.Routine, error) {
	if err := validateRoutineInput(input); err != nil {
		return nil, err
	}

	routine := db.Routine{
		OwnerID:          ownerID,
		Name:             strings.TrimSpace(input.Name),
		Description:      strings.TrimSpace(input.Description),
		ValueType:        input.ValueType,
		Config:           input.Config,
		Schedule:         input.Schedule,
		CompletionMode:   normalizeMode(input.CompletionMode),
		GradualThreshold: input.GradualThreshold,
		Status:           db.RoutineStatusActive,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&routine).Error; err != nil {
			return fmt.Errorf("create routine: %w", err)
		}
		return replaceGoalLinks(tx, &routine, ownerID, input.GoalIDs)
	})
	if err != nil {
		return nil, err
	}
	return &routine, nil
}

// Update 更新例行任务；值类型/配置变化只影响后续打分，已有记录不回算
func (s *RoutineService) Update(ownerID, id uint, input RoutineInput) (*db.Routine, error) {
	if err := validateRoutineInput(input); err != nil {
		return nil, err
	}

	existing, err := loadOwnedRoutine(s.db, ownerID, id)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.ValueType = input.ValueType
	existing.Config = input.Config
	existing.Schedule = input.Schedule
	existing.CompletionMode = normalizeMode(input.CompletionMode)
	existing.GradualThreshold = input.GradualThreshold

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(existing).Error; err != nil {
			return fmt.Errorf("update routine: %w", err)
		}
		if input.GoalIDs == nil {
			return nil
		}
		return replaceGoalLinks(tx, existing, ownerID, input.GoalIDs)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// Archive 归档而非硬删除，保留打卡历史
func (s *RoutineService) Archive(ownerID, id uint) error {
	routine, err := loadOwnedRoutine(s.db, ownerID, id)
	if err != nil {
		return err
	}

	routine.Status = db.RoutineStatusArchived
	if err := s.db.Save(routine).Error; err != nil {
		return fmt.Errorf("archive routine: %w", err)
	}
	return nil
}

// Delete 删除例行任务：级联删除其打卡记录并解除目标关联
func (s *RoutineService) Delete(ownerID, id uint) error {
	routine, err := loadOwnedRoutine(s.db, ownerID, id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("routine_id = ?", routine.ID).Delete(&db.RoutineLog{}).Error; err != nil {
			return fmt.Errorf("delete routine logs: %w", err)
		}
		if err := tx.Model(routine).Association("Goals").Clear(); err != nil {
			return fmt.Errorf("unlink routine goals: %w", err)
		}
		if err := tx.Delete(routine).Error; err != nil {
			return fmt.Errorf("delete routine: %w", err)
		}
		return nil
	})
}

// LinkGoal 建立例行任务与目标的关联，后续打卡增量会同步到该目标
func (s *RoutineService) LinkGoal(ownerID, routineID, goalID uint) error {
	routine, err := loadOwnedRoutine(s.db, ownerID, routineID)
	if err != nil {
		return err
	}

	goal, err := loadOwnedGoal(s.db, ownerID, goalID)
	if err != nil {
		return err
	}

	if err := s.db.Model(routine).Association("Goals").Append(goal); err != nil {
		return fmt.Errorf("link goal: %w", err)
	}
	return nil
}

// UnlinkGoal 解除关联；既有进度不回滚
func (s *RoutineService) UnlinkGoal(ownerID, routineID, goalID uint) error {
	routine, err := loadOwnedRoutine(s.db, ownerID, routineID)
	if err != nil {
		return err
	}

	goal, err := loadOwnedGoal(s.db, ownerID, goalID)
	if err != nil {
		return err
	}

	if err := s.db.Model(routine).Association("Goals").Delete(goal); err != nil {
		return fmt.Errorf("unlink goal: %w", err)
	}
	return nil
}

// StreakSnapshot 汇总连胜快照字段，供 API 输出
type StreakSnapshot struct {
	CurrentStreak     int
	LongestStreak     int
	TotalCompletions  int
	LastCompletedDate *string
}

// Snapshot 返回例行任务当前的连胜快照
func (s *RoutineService) Snapshot(ownerID, id uint) (*StreakSnapshot, error) {
	routine, err := loadOwnedRoutine(s.db, ownerID, id)
	if err != nil {
		return nil, err
	}

	snapshot := &StreakSnapshot{
		CurrentStreak:    routine.CurrentStreak,
		LongestStreak:    routine.LongestStreak,
		TotalCompletions: routine.TotalCompletions,
	}
	if routine.LastCompletedDate != nil {
		formatted := routine.LastCompletedDate.Format("2006-01-02")
		snapshot.LastCompletedDate = &formatted
	}
	return snapshot, nil
}

func loadOwnedRoutine(tx *gorm.DB, ownerID, id uint) (*db.Routine, error) {
	var routine db.Routine
	if err := tx.Preload("Goals").Where("owner_id = ?", ownerID).First(&routine, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoutineNotFound
		}
		return nil, fmt.Errorf("load routine: %w", err)
	}
	return &routine, nil
}

func replaceGoalLinks(tx *gorm.DB, routine *db.Routine, ownerID uint, goalIDs []uint) error {
	if goalIDs == nil {
		return nil
	}

	goals := make([]*db.Goal, 0, len(goalIDs))
	for _, goalID := range goalIDs {
		goal, err := loadOwnedGoal(tx, ownerID, goalID)
		if err != nil {
			return err
		}
		goals = append(goals, goal)
	}

	if err := tx.Model(routine).Association("Goals").Replace(goals); err != nil {
		return fmt.Errorf("replace goal links: %w", err)
	}
	return nil
}

func validateRoutineInput(input RoutineInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRoutine)
	}

	switch input.ValueType {
	case db.ValueBoolean, db.ValueCounter, db.ValueDuration, db.ValueScale,
		db.ValueChecklist, db.ValueText, db.ValueTime:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownValueType, input.ValueType)
	}

	mode := normalizeMode(input.CompletionMode)
	if mode == db.ModeGradual && (input.GradualThreshold < 0 || input.GradualThreshold > 100) {
		return fmt.Errorf("%w: gradual threshold out of range", ErrInvalidRoutine)
	}

	return validateSchedule(input.Schedule)
}

func validateSchedule(schedule db.Schedule) error {
	switch schedule.Kind {
	case db.ScheduleSpecificDays:
		if len(schedule.Weekdays) == 0 && len(schedule.MonthDays) == 0 {
			return fmt.Errorf("%w: specific_days needs weekdays or month days", ErrInvalidSchedule)
		}
		for _, d := range schedule.Weekdays {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: weekday %d out of range", ErrInvalidSchedule, d)
			}
		}
		for _, d := range schedule.MonthDays {
			if d < 1 || d > 31 {
				return fmt.Errorf("%w: month day %d out of range", ErrInvalidSchedule, d)
			}
		}
	case db.ScheduleFrequency:
		if schedule.FrequencyCount <= 0 {
			return fmt.Errorf("%w: frequency count must be positive", ErrInvalidSchedule)
		}
		if schedule.FrequencyPeriod != db.PeriodWeek && schedule.FrequencyPeriod != db.PeriodMonth {
			return fmt.Errorf("%w: unsupported period %s", ErrInvalidSchedule, schedule.FrequencyPeriod)
		}
	case db.ScheduleInterval:
		if schedule.IntervalValue <= 0 {
			return fmt.Errorf("%w: interval value must be positive", ErrInvalidSchedule)
		}
		switch schedule.IntervalUnit {
		case db.IntervalUnitDay, db.IntervalUnitWeek, db.IntervalUnitMonth:
		default:
			return fmt.Errorf("%w: unsupported interval unit %s", ErrInvalidSchedule, schedule.IntervalUnit)
		}
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidSchedule, schedule.Kind)
	}

	return nil
}

func normalizeMode(mode string) string {
	if strings.TrimSpace(strings.ToLower(mode)) == db.ModeGradual {
		return db.ModeGradual
	}
	return db.ModeStrict
}
