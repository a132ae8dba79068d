package service

import (
	"sort"
	"time"

	"github.com/routinelog/internal/db"
)

// StreakResult 是一次连胜重算的输出
type StreakResult struct {
	Current int
	Longest int
}

// frequency 日程回溯的周期数上限
const frequencyLookBack = 52

// RecomputeStreaks 根据日程和计入连胜的打卡日期集重建连胜计数
// 输入相同则输出恒定：无副作用，结果由调用方落库
// today 应已按用户时区换算（见 LocalToday）
func RecomputeStreaks(schedule db.Schedule, dates []time.Time, today time.Time) StreakResult {
	days := normalizeLogDays(dates)
	if len(days) == 0 {
		return StreakResult{}
	}

	if schedule.Kind == db.ScheduleFrequency {
		return periodQuotaStreaks(schedule, days, DayKey(today))
	}
	return dayGapStreaks(schedule, days, DayKey(today))
}

// normalizeLogDays 截断到日、去重并按日期降序排列
func normalizeLogDays(dates []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		key := DayKey(d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		days = append(days, key)
	}

	sort.Slice(days, func(i, j int) bool {
		return days[i].After(days[j])
	})
	return days
}

// dayGapStreaks 处理 specific_days/interval 日程：相邻打卡日之间的间隔要么恰好 1 天，
// 要么所有被跳过的日子都可安全跳过，连胜才得以延续
func dayGapStreaks(schedule db.Schedule, days []time.Time, today time.Time) StreakResult {
	longest := 1
	run := 1
	for i := 0; i+1 < len(days); i++ {
		if gapIsContinuous(schedule, days[i+1], days[i]) {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}

	// 当前连胜必须锚定在“今天”：最近一次打卡到今天的间隔本身断裂则归零
	current := 0
	if !days[0].After(today) && (days[0].Equal(today) || gapIsContinuous(schedule, days[0], today)) {
		current = 1
		for i := 0; i+1 < len(days); i++ {
			if !gapIsContinuous(schedule, days[i+1], days[i]) {
				break
			}
			current++
		}
	}

	return StreakResult{Current: current, Longest: longest}
}

// gapIsContinuous 判断 earlier→later 的间隔是否未打断连胜
// specific_days 要求其间每个被跳过的日子都不是应打卡日；interval 要求间隔不超过配置的天数
func gapIsContinuous(schedule db.Schedule, earlier, later time.Time) bool {
	gap := daysBetween(earlier, later)
	if gap <= 0 {
		return false
	}
	if gap == 1 {
		return true
	}

	if schedule.Kind == db.ScheduleInterval {
		return gap <= intervalDays(schedule)
	}

	for d := earlier.AddDate(0, 0, 1); d.Before(later); d = d.AddDate(0, 0, 1) {
		if IsDueOn(schedule, d) {
			return false
		}
	}
	return true
}

// intervalDays 把 interval 日程换算为最大允许的天数间隔（周按 7 天、月按 30 天近似）
func intervalDays(schedule db.Schedule) int {
	value := schedule.IntervalValue
	if value < 1 {
		value = 1
	}

	switch schedule.IntervalUnit {
	case db.IntervalUnitWeek:
		return value * 7
	case db.IntervalUnitMonth:
		return value * 30
	default:
		return value
	}
}

// periodQuotaStreaks 处理 frequency 日程：按 ISO 周（周一起始）或自然月分桶，
// 单周期打卡数达到 FrequencyCount 记为成功；从当前周期向前回溯，
// 进行中的当前周期未达标不算失败，其后第一个失败周期终结当前连胜
func periodQuotaStreaks(schedule db.Schedule, days []time.Time, today time.Time) StreakResult {
	need := schedule.FrequencyCount
	if need < 1 {
		need = 1
	}

	counts := make(map[time.Time]int, len(days))
	for _, d := range days {
		counts[periodStart(schedule, d)]++
	}

	var result StreakResult
	run := 0
	broken := false
	anchor := periodStart(schedule, today)
	for i := 0; i < frequencyLookBack; i++ {
		period := shiftPeriod(schedule, anchor, -i)
		if counts[period] >= need {
			run++
			if run > result.Longest {
				result.Longest = run
			}
			if !broken {
				result.Current = run
			}
			continue
		}

		// 当前周期尚未结束，不因未达标而判负
		if i == 0 {
			continue
		}
		broken = true
		run = 0
	}

	return result
}

// periodStart 求日期所属周期的起点：周取 ISO 周一，月取当月一号
func periodStart(schedule db.Schedule, day time.Time) time.Time {
	if schedule.FrequencyPeriod == db.PeriodMonth {
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func shiftPeriod(schedule db.Schedule, start time.Time, periods int) time.Time {
	if schedule.FrequencyPeriod == db.PeriodMonth {
		return start.AddDate(0, periods, 0)
	}
	return start.AddDate(0, 0, 7*periods)
}

func daysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}
