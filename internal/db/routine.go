package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValueType 是例行任务记录值的封闭枚举
// 新增类型时需要同步扩展 service 层的打分/增量 switch
type ValueType string

const (
	ValueBoolean   ValueType = "boolean"
	ValueCounter   ValueType = "counter"
	ValueDuration  ValueType = "duration"
	ValueScale     ValueType = "scale"
	ValueChecklist ValueType = "checklist"
	ValueText      ValueType = "text"
	ValueTime      ValueType = "time"
)

// ScheduleKind 区分三种日程形态
type ScheduleKind string

const (
	ScheduleSpecificDays ScheduleKind = "specific_days"
	ScheduleFrequency    ScheduleKind = "frequency"
	ScheduleInterval     ScheduleKind = "interval"
)

// 周期/间隔单位
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"

	IntervalUnitDay   = "day"
	IntervalUnitWeek  = "week"
	IntervalUnitMonth = "month"
)

// 完成判定模式
const (
	ModeStrict  = "strict"
	ModeGradual = "gradual"
)

// 例行任务状态
const (
	RoutineStatusActive   = "active"
	RoutineStatusArchived = "archived"
)

// Schedule 以标签联合的方式描述日程配置，整体序列化为 JSON 列
// specific_days 通过 Weekdays(0-6，0 为周日) 或 MonthDays(1-31) 给出日历成员
// frequency 表示每周/每月完成 FrequencyCount 次
// interval 表示每 IntervalValue 个单位完成一次
type Schedule struct {
	Kind            ScheduleKind `json:"kind"`
	Weekdays        []int        `json:"weekdays,omitempty"`
	MonthDays       []int        `json:"month_days,omitempty"`
	FrequencyCount  int          `json:"frequency_count,omitempty"`
	FrequencyPeriod string       `json:"frequency_period,omitempty"`
	IntervalValue   int          `json:"interval_value,omitempty"`
	IntervalUnit    string       `json:"interval_unit,omitempty"`
}

// RoutineConfig 存放与值类型相关的配置
// checklist 使用 ChecklistItems，counter/duration 使用 TargetValue+Unit
type RoutineConfig struct {
	ChecklistItems []string `json:"checklist_items,omitempty"`
	TargetValue    float64  `json:"target_value,omitempty"`
	Unit           string   `json:"unit,omitempty"`
}

// LogValue 是按值类型取用字段的记录值
// boolean 用 Done，counter/duration/scale 用 Amount，checklist 用 Checked，text/time 用 Text
type LogValue struct {
	Done    *bool    `json:"done,omitempty"`
	Amount  *float64 `json:"amount,omitempty"`
	Checked []bool   `json:"checked,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Routine 定义了例行任务模型
// 连胜快照(CurrentStreak 等字段)是打卡记录的派生投影，只由连胜重算逻辑写入
// Goals 多对多关联用于把打卡增量同步到关联目标
type Routine struct {
	gorm.Model
	PublicID          uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	OwnerID           uint      `gorm:"index"`
	Name              string
	Description       string
	ValueType         ValueType
	Config            RoutineConfig `gorm:"serializer:json"`
	Schedule          Schedule      `gorm:"serializer:json"`
	CompletionMode    string
	GradualThreshold  float64
	Status            string
	CurrentStreak     int
	LongestStreak     int
	TotalCompletions  int
	LastCompletedDate *time.Time
	BankedSkips       int
	Goals             []*Goal `gorm:"many2many:routine_goals"`
}

// BeforeCreate 为新例行任务补齐对外暴露的 PublicID
func (r *Routine) BeforeCreate(tx *gorm.DB) error {
	if r.PublicID == uuid.Nil {
		r.PublicID = uuid.New()
	}
	return nil
}

// RoutineLog 记录单日打卡
// RoutineID + LogDate 采用唯一索引，保证一天至多一条，只能 upsert
// LogDate 统一归一化为 UTC 零点作为自然键
type RoutineLog struct {
	gorm.Model
	OwnerID           uint      `gorm:"index"`
	RoutineID         uint      `gorm:"index;index:idx_routine_log_unique,unique"`
	Routine           Routine   `gorm:"constraint:OnDelete:CASCADE"`
	LogDate           time.Time `gorm:"index:idx_routine_log_unique,unique"`
	Value             LogValue  `gorm:"serializer:json"`
	CompletionPercent float64
	CountsForStreak   bool
	LoggedAt          time.Time
}

// TableName 重写确保唯一索引作用到 routine_id + log_date
func (RoutineLog) TableName() string {
	return "routine_logs"
}
