package service

import (
	"testing"
	"time"

	"github.com/routinelog/internal/db"
)

func weekdaySchedule() db.Schedule {
	// 周一到周五
	return db.Schedule{Kind: db.ScheduleSpecificDays, Weekdays: []int{1, 2, 3, 4, 5}}
}

func TestRecomputeStreaksIdempotent(t *testing.T) {
	schedule := weekdaySchedule()
	dates := []time.Time{
		day(2024, time.May, 6),
		day(2024, time.May, 7),
		day(2024, time.May, 8),
	}
	today := day(2024, time.May, 8)

	first := RecomputeStreaks(schedule, dates, today)
	for i := 0; i < 5; i++ {
		got := RecomputeStreaks(schedule, dates, today)
		if got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestRecomputeStreaksEmptyAndDuplicates(t *testing.T) {
	schedule := weekdaySchedule()

	if got := RecomputeStreaks(schedule, nil, day(2024, time.May, 8)); got.Current != 0 || got.Longest != 0 {
		t.Fatalf("empty logs: expected zeros, got %+v", got)
	}

	// 同一天多条记录只算一次
	dates := []time.Time{
		day(2024, time.May, 7),
		day(2024, time.May, 7).Add(10 * time.Hour),
		day(2024, time.May, 8),
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 8))
	if got.Current != 2 || got.Longest != 2 {
		t.Fatalf("expected current=2 longest=2, got %+v", got)
	}
}

func TestDayGapWeekendIsSafeSkip(t *testing.T) {
	schedule := weekdaySchedule()

	// 周一至周三连打，周末缺勤不破坏连胜
	dates := []time.Time{
		day(2024, time.May, 6), // 周一
		day(2024, time.May, 7),
		day(2024, time.May, 8),
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 8))
	if got.Current != 3 || got.Longest != 3 {
		t.Fatalf("expected current=3 longest=3, got %+v", got)
	}

	// 周五到下周一跨周末依然连续
	dates = []time.Time{
		day(2024, time.May, 2), // 周四
		day(2024, time.May, 3), // 周五
		day(2024, time.May, 6), // 周一
	}
	got = RecomputeStreaks(schedule, dates, day(2024, time.May, 6))
	if got.Current != 3 || got.Longest != 3 {
		t.Fatalf("expected weekend-spanning current=3, got %+v", got)
	}
}

func TestDayGapMissedDueDayResetsStreak(t *testing.T) {
	schedule := weekdaySchedule()

	// 周四是应打卡日却缺勤：当前连胜从周五重新起算
	dates := []time.Time{
		day(2024, time.May, 6),  // 周一
		day(2024, time.May, 7),  // 周二
		day(2024, time.May, 8),  // 周三
		day(2024, time.May, 10), // 周五
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 10))
	if got.Current != 1 {
		t.Fatalf("expected current=1, got %d", got.Current)
	}
	if got.Longest != 3 {
		t.Fatalf("expected longest=3, got %d", got.Longest)
	}
}

func TestDayGapStreakDiesWhenAnchorBroken(t *testing.T) {
	schedule := weekdaySchedule()

	// 最近一次打卡到“今天”之间隔着应打卡日，当前连胜归零
	dates := []time.Time{
		day(2024, time.May, 6),
		day(2024, time.May, 7),
		day(2024, time.May, 8),
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 13)) // 下周一
	if got.Current != 0 {
		t.Fatalf("expected current=0, got %d", got.Current)
	}
	if got.Longest != 3 {
		t.Fatalf("expected longest=3, got %d", got.Longest)
	}
}

func TestIntervalScheduleGapWithinInterval(t *testing.T) {
	schedule := db.Schedule{Kind: db.ScheduleInterval, IntervalValue: 1, IntervalUnit: db.IntervalUnitWeek}

	// 间隔 5 天 ≤ 7 天，连胜延续
	dates := []time.Time{
		day(2024, time.May, 1),
		day(2024, time.May, 6),
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 6))
	if got.Current != 2 || got.Longest != 2 {
		t.Fatalf("expected current=2 longest=2, got %+v", got)
	}

	// 间隔 8 天超限，连胜断裂
	dates = []time.Time{
		day(2024, time.May, 1),
		day(2024, time.May, 9),
	}
	got = RecomputeStreaks(schedule, dates, day(2024, time.May, 9))
	if got.Current != 1 || got.Longest != 1 {
		t.Fatalf("expected current=1 longest=1, got %+v", got)
	}
}

func TestFrequencyWeekQuota(t *testing.T) {
	schedule := db.Schedule{Kind: db.ScheduleFrequency, FrequencyCount: 3, FrequencyPeriod: db.PeriodWeek}

	// W-2 达标(3 次)，W-1 失败(2 次)，当前周进行中(1 次)
	dates := []time.Time{
		// W-2: 2024-04-29 起
		day(2024, time.April, 29),
		day(2024, time.April, 30),
		day(2024, time.May, 1),
		// W-1: 2024-05-06 起
		day(2024, time.May, 6),
		day(2024, time.May, 7),
		// W0: 2024-05-13 起
		day(2024, time.May, 13),
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 15))
	if got.Current != 0 {
		t.Fatalf("expected current=0, got %d", got.Current)
	}
	if got.Longest != 1 {
		t.Fatalf("expected longest=1, got %d", got.Longest)
	}
}

func TestFrequencyCurrentPeriodExemptFromFailure(t *testing.T) {
	schedule := db.Schedule{Kind: db.ScheduleFrequency, FrequencyCount: 3, FrequencyPeriod: db.PeriodWeek}

	// 当前周尚未达标不算失败，之前两周的连胜保持存活
	dates := []time.Time{
		day(2024, time.April, 29),
		day(2024, time.April, 30),
		day(2024, time.May, 1),
		day(2024, time.May, 6),
		day(2024, time.May, 7),
		day(2024, time.May, 8),
		day(2024, time.May, 13),
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 15))
	if got.Current != 2 {
		t.Fatalf("expected current=2, got %d", got.Current)
	}
	if got.Longest != 2 {
		t.Fatalf("expected longest=2, got %d", got.Longest)
	}
}

func TestFrequencyMonthQuota(t *testing.T) {
	schedule := db.Schedule{Kind: db.ScheduleFrequency, FrequencyCount: 2, FrequencyPeriod: db.PeriodMonth}

	dates := []time.Time{
		day(2024, time.March, 5),
		day(2024, time.March, 20),
		day(2024, time.April, 2),
		day(2024, time.April, 25),
		day(2024, time.May, 3),
		day(2024, time.May, 10),
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 15))
	if got.Current != 3 || got.Longest != 3 {
		t.Fatalf("expected current=3 longest=3, got %+v", got)
	}
}

func TestDailyScheduleForGoals(t *testing.T) {
	schedule := DailySchedule()

	// 连续三天收尾于今天
	dates := []time.Time{
		day(2024, time.May, 6),
		day(2024, time.May, 7),
		day(2024, time.May, 8),
	}
	got := RecomputeStreaks(schedule, dates, day(2024, time.May, 8))
	if got.Current != 3 || got.Longest != 3 {
		t.Fatalf("expected current=3 longest=3, got %+v", got)
	}

	// 隐式日程下任何缺勤日都会断裂
	dates = append(dates, day(2024, time.May, 10))
	got = RecomputeStreaks(schedule, dates, day(2024, time.May, 10))
	if got.Current != 1 {
		t.Fatalf("expected current=1 after a gap, got %d", got.Current)
	}
	if got.Longest != 3 {
		t.Fatalf("expected longest=3, got %d", got.Longest)
	}
}
