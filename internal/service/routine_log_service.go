package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRoutineLogNotFound 在打卡记录不存在或不属于当前用户时返回
var ErrRoutineLogNotFound = errors.New("routine log not found")

// RoutineLogService 负责打卡记录的事务性写入
// 每次调用是一个完整的工作单元：打分、目标增量同步、记录落库、连胜重算
// 要么全部生效，要么全部回滚
type RoutineLogService struct {
	db *gorm.DB
}

// RoutineLogInput 定义一次打卡写入
type RoutineLogInput struct {
	RoutineID      uint
	LogDate        time.Time
	Value          db.LogValue
	TimezoneOffset int
}

// RoutineLogFilter 指定查询区间
type RoutineLogFilter struct {
	RoutineID uint
	Start     time.Time
	End       time.Time
}

// NewRoutineLogService 构造 RoutineLogService
func NewRoutineLogService(gdb *gorm.DB) *RoutineLogService {
	return &RoutineLogService{db: gdb}
}

// Upsert 处理幂等打卡：同一 (routine, day) 只保留一条记录
// 相对已有记录的增量会在同一事务内同步到所有关联目标及其父链
func (s *RoutineLogService) Upsert(ownerID uint, input RoutineLogInput) (*db.RoutineLog, error) {
	var saved db.RoutineLog
	err := s.db.Transaction(func(tx *gorm.DB) error {
		routine, err := loadOwnedRoutine(tx, ownerID, input.RoutineID)
		if err != nil {
			return err
		}

		logDate := DayKey(input.LogDate)

		if err := ValidateLogValue(routine.ValueType, input.Value, routine.Config); err != nil {
			return err
		}

		percent, err := ComputeCompletion(routine.ValueType, input.Value, routine.Config)
		if err != nil {
			return err
		}
		counts := CountsForStreak(percent, routine.CompletionMode, routine.GradualThreshold)

		var prior *db.LogValue
		var existing db.RoutineLog
		findErr := tx.Where("routine_id = ? AND log_date = ?", routine.ID, logDate).First(&existing).Error
		if findErr == nil {
			prior = &existing.Value
		} else if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load existing log: %w", findErr)
		}

		delta := ComputeDelta(routine.ValueType, prior, &input.Value)
		if err := propagateRoutineDelta(tx, routine, delta, input.TimezoneOffset); err != nil {
			return err
		}

		record := db.RoutineLog{
			OwnerID:           ownerID,
			RoutineID:         routine.ID,
			LogDate:           logDate,
			Value:             input.Value,
			CompletionPercent: percent,
			CountsForStreak:   counts,
			LoggedAt:          time.Now(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "routine_id"}, {Name: "log_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "completion_percent", "counts_for_streak", "logged_at", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("upsert routine log: %w", err)
		}

		if err := tx.Where("routine_id = ? AND log_date = ?", routine.ID, logDate).First(&record).Error; err != nil {
			return fmt.Errorf("reload routine log: %w", err)
		}

		if err := refreshStreaks(tx, routine, input.TimezoneOffset); err != nil {
			return err
		}

		saved = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Update 以新记录值重打分并按新旧差值同步目标
func (s *RoutineLogService) Update(ownerID, logID uint, value db.LogValue, timezoneOffset int) (*db.RoutineLog, error) {
	var saved db.RoutineLog
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record, routine, err := loadOwnedLog(tx, ownerID, logID)
		if err != nil {
			return err
		}

		if err := ValidateLogValue(routine.ValueType, value, routine.Config); err != nil {
			return err
		}

		percent, err := ComputeCompletion(routine.ValueType, value, routine.Config)
		if err != nil {
			return err
		}

		delta := ComputeDelta(routine.ValueType, &record.Value, &value)
		if err := propagateRoutineDelta(tx, routine, delta, timezoneOffset); err != nil {
			return err
		}

		record.Value = value
		record.CompletionPercent = percent
		record.CountsForStreak = CountsForStreak(percent, routine.CompletionMode, routine.GradualThreshold)
		record.LoggedAt = time.Now()

		if err := tx.Save(record).Error; err != nil {
			return fmt.Errorf("update routine log: %w", err)
		}

		if err := refreshStreaks(tx, routine, timezoneOffset); err != nil {
			return err
		}

		saved = *record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Delete 删除打卡记录：向关联目标施加反向增量，再重算连胜
// 创建后删除的净效果为零
func (s *RoutineLogService) Delete(ownerID, logID uint, timezoneOffset int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		record, routine, err := loadOwnedLog(tx, ownerID, logID)
		if err != nil {
			return err
		}

		delta := ComputeDelta(routine.ValueType, &record.Value, nil)
		if err := propagateRoutineDelta(tx, routine, delta, timezoneOffset); err != nil {
			return err
		}

		if err := tx.Unscoped().Delete(record).Error; err != nil {
			return fmt.Errorf("delete routine log: %w", err)
		}

		return refreshStreaks(tx, routine, timezoneOffset)
	})
}

// ListBetween 返回指定区间内的打卡记录
func (s *RoutineLogService) ListBetween(ownerID uint, filter RoutineLogFilter) ([]db.RoutineLog, error) {
	if _, err := loadOwnedRoutine(s.db, ownerID, filter.RoutineID); err != nil {
		return nil, err
	}

	var logs []db.RoutineLog
	if err := s.db.Where("routine_id = ?", filter.RoutineID).
		Where("log_date BETWEEN ? AND ?", DayKey(filter.Start), DayKey(filter.End)).
		Order("log_date ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list routine logs: %w", err)
	}

	return logs, nil
}

// propagateRoutineDelta 把打卡增量同步到每个关联目标并沿父链上卷
func propagateRoutineDelta(tx *gorm.DB, routine *db.Routine, delta float64, timezoneOffset int) error {
	if delta == 0 {
		return nil
	}

	today := LocalToday(time.Now(), timezoneOffset)
	for _, goal := range routine.Goals {
		input := GoalProgressInput{Value: delta, Mode: ProgressModeAdd, TimezoneOffset: timezoneOffset}
		if _, err := updateProgressChain(tx, routine.OwnerID, goal.ID, today, input); err != nil {
			return err
		}
	}
	return nil
}

// refreshStreaks 全量重算例行任务的连胜快照并落库
// 始终基于当前完整记录集重扫，保证幂等
func refreshStreaks(tx *gorm.DB, routine *db.Routine, timezoneOffset int) error {
	var dates []time.Time
	if err := tx.Model(&db.RoutineLog{}).
		Where("routine_id = ? AND counts_for_streak = ?", routine.ID, true).
		Pluck("log_date", &dates).Error; err != nil {
		return fmt.Errorf("load streak dates: %w", err)
	}

	today := LocalToday(time.Now(), timezoneOffset)
	streaks := RecomputeStreaks(routine.Schedule, dates, today)

	updates := map[string]interface{}{
		"current_streak":      streaks.Current,
		"longest_streak":      streaks.Longest,
		"total_completions":   len(dates),
		"last_completed_date": nil,
	}
	if len(dates) > 0 {
		last := dates[0]
		for _, d := range dates[1:] {
			if d.After(last) {
				last = d
			}
		}
		updates["last_completed_date"] = DayKey(last)
	}

	if err := tx.Model(&db.Routine{}).Where("id = ?", routine.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("save streak snapshot: %w", err)
	}
	return nil
}

func loadOwnedLog(tx *gorm.DB, ownerID, logID uint) (*db.RoutineLog, *db.Routine, error) {
	var record db.RoutineLog
	if err := tx.Where("owner_id = ?", ownerID).First(&record, logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRoutineLogNotFound
		}
		return nil, nil, fmt.Errorf("load routine log: %w", err)
	}

	routine, err := loadOwnedRoutine(tx, ownerID, record.RoutineID)
	if err != nil {
		return nil, nil, err
	}

	return &record, routine, nil
}
