package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 目标周期
const (
	GoalPeriodWeekly     = "weekly"
	GoalPeriodMonthly    = "monthly"
	GoalPeriodYearly     = "yearly"
	GoalPeriodIndefinite = "indefinite"
)

// 目标状态
const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusArchived  = "archived"
	GoalStatusFailed    = "failed"
)

// Goal 定义了目标模型
// CurrentValue 是对进度增量的累加器，完成判定与父目标上卷都基于它
// ParentID 构成目标树；删除父目标不会级联到子目标
// 不变量：CompletedAt 有值当且仅当 Status 为 completed
type Goal struct {
	gorm.Model
	PublicID         uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	OwnerID          uint      `gorm:"index"`
	Name             string
	Description      string
	Period           string
	ParentID         *uint `gorm:"index"`
	TrackingType     ValueType
	TargetValue      float64
	CurrentValue     float64
	StreakCurrent    int
	StreakLongest    int
	TotalCompletions int
	LastLogDate      *time.Time
	Notes            string
	Status           string
	CompletedAt      *time.Time
	Deadline         *time.Time
	Routines         []*Routine `gorm:"many2many:routine_goals"`
}

// BeforeCreate 为新目标补齐对外暴露的 PublicID
func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	if g.PublicID == uuid.Nil {
		g.PublicID = uuid.New()
	}
	return nil
}

// GoalProgressLog 记录目标的单日进度
// GoalID + LogDate 唯一索引保证一天一条
type GoalProgressLog struct {
	gorm.Model
	GoalID  uint      `gorm:"index;index:idx_goal_progress_unique,unique"`
	Goal    Goal      `gorm:"constraint:OnDelete:CASCADE"`
	LogDate time.Time `gorm:"index:idx_goal_progress_unique,unique"`
	Value   float64
	Notes   string
}

// TableName 重写确保唯一索引作用到 goal_id + log_date
func (GoalProgressLog) TableName() string {
	return "goal_progress_logs"
}
