package service

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/routinelog/internal/db"
)

var (
	// ErrUnknownValueType 在遇到未注册的值类型时返回，属于配置错误
	ErrUnknownValueType = errors.New("unknown routine value type")
	// ErrInvalidLogValue 在记录值与例行任务配置不匹配时返回
	ErrInvalidLogValue = errors.New("log value incompatible with routine config")
)

// 渐进模式的默认及格线
const defaultGradualThreshold = 80.0

// ComputeCompletion 按值类型把记录值换算为完成百分比，保留一位小数
// 结果恒在 [0,100] 区间内；checklist 在条目为空时直接记 0，避免除零
func ComputeCompletion(valueType db.ValueType, value db.LogValue, config db.RoutineConfig) (float64, error) {
	switch valueType {
	case db.ValueBoolean:
		if value.Done != nil && *value.Done {
			return 100, nil
		}
		return 0, nil
	case db.ValueChecklist:
		total := len(config.ChecklistItems)
		if total == 0 {
			return 0, nil
		}
		checked := checkedCount(value.Checked)
		if checked > total {
			checked = total
		}
		return round1(100 * float64(checked) / float64(total)), nil
	case db.ValueCounter, db.ValueDuration:
		target := math.Max(config.TargetValue, 1)
		ratio := math.Min(math.Max(amountOf(&value)/target, 0), 1)
		return round1(100 * ratio), nil
	case db.ValueScale:
		if value.Amount != nil {
			return 100, nil
		}
		return 0, nil
	case db.ValueText, db.ValueTime:
		if strings.TrimSpace(value.Text) != "" {
			return 100, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownValueType, valueType)
	}
}

// ValidateLogValue 校验记录值与值类型/配置的匹配性
// 勾选数超出清单条目或数值为负都视为不合法输入，由调用方在落库前拒绝
func ValidateLogValue(valueType db.ValueType, value db.LogValue, config db.RoutineConfig) error {
	switch valueType {
	case db.ValueChecklist:
		if len(value.Checked) > len(config.ChecklistItems) {
			return fmt.Errorf("%w: %d checks against %d items", ErrInvalidLogValue, len(value.Checked), len(config.ChecklistItems))
		}
	case db.ValueCounter, db.ValueDuration, db.ValueScale:
		if value.Amount != nil && *value.Amount < 0 {
			return fmt.Errorf("%w: amount cannot be negative", ErrInvalidLogValue)
		}
	}
	return nil
}

// CountsForStreak 判断完成度是否计入连胜
// strict 要求 100%，gradual 达到阈值即可
// threshold <= 0 表示未配置，取缺省值 80；显式给出的阈值被钳制在 [1,100]
func CountsForStreak(percentage float64, mode string, threshold float64) bool {
	if mode == db.ModeGradual {
		if threshold <= 0 {
			threshold = defaultGradualThreshold
		}
		threshold = math.Min(math.Max(threshold, 1), 100)
		return percentage >= threshold
	}
	return percentage == 100
}

// ComputeDelta 计算新旧记录值之间的有符号数值差，用于目标进度同步
// 缺失的一侧按 0 处理（代表创建或删除）；纯函数，永不报错
func ComputeDelta(valueType db.ValueType, oldValue, newValue *db.LogValue) float64 {
	switch valueType {
	case db.ValueCounter, db.ValueDuration, db.ValueScale:
		return amountOf(newValue) - amountOf(oldValue)
	case db.ValueBoolean:
		return boolScore(newValue) - boolScore(oldValue)
	case db.ValueChecklist:
		var oldChecked, newChecked int
		if oldValue != nil {
			oldChecked = checkedCount(oldValue.Checked)
		}
		if newValue != nil {
			newChecked = checkedCount(newValue.Checked)
		}
		return float64(newChecked - oldChecked)
	default:
		return 0
	}
}

func checkedCount(checked []bool) int {
	count := 0
	for _, c := range checked {
		if c {
			count++
		}
	}
	return count
}

func amountOf(value *db.LogValue) float64 {
	if value == nil || value.Amount == nil {
		return 0
	}
	return *value.Amount
}

func boolScore(value *db.LogValue) float64 {
	if value == nil || value.Done == nil || !*value.Done {
		return 0
	}
	return 1
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
