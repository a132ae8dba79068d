package service

import (
	"slices"
	"time"

	"github.com/routinelog/internal/db"
)

// IsDueOn 判断日期是否是日程的应打卡日
// 只有 specific_days 日程按日历成员作答；frequency/interval 由耗时逻辑评估，这里一律返回 false
func IsDueOn(schedule db.Schedule, date time.Time) bool {
	if schedule.Kind != db.ScheduleSpecificDays {
		return false
	}

	if len(schedule.Weekdays) > 0 {
		return slices.Contains(schedule.Weekdays, int(date.Weekday()))
	}

	if len(schedule.MonthDays) > 0 {
		return slices.Contains(schedule.MonthDays, date.Day())
	}

	return false
}

// DailySchedule 返回“每天都应打卡”的隐式日程，目标连胜计算使用
func DailySchedule() db.Schedule {
	return db.Schedule{
		Kind:     db.ScheduleSpecificDays,
		Weekdays: []int{0, 1, 2, 3, 4, 5, 6},
	}
}

// DayKey 把时间截断为 UTC 零点，作为打卡记录的自然键
func DayKey(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// LocalToday 按分钟级时区偏移换算出用户本地的“今天”，仅用于连胜存活判定，不影响存储
func LocalToday(now time.Time, offsetMinutes int) time.Time {
	shifted := now.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
	return time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC)
}
