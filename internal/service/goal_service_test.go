package service

import (
	"errors"
	"testing"
	"time"

	"github.com/routinelog/internal/db"
)

func TestCreateGoalComputesDeadline(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewGoalService(db.DB)

	weekly, err := svc.Create(1, GoalInput{Name: "周跑 20 公里", Period: db.GoalPeriodWeekly, TrackingType: db.ValueCounter, TargetValue: 20})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if weekly.Deadline == nil {
		t.Fatal("expected weekly goal to have a deadline")
	}
	if !weekly.Deadline.After(time.Now().UTC().AddDate(0, 0, -1)) {
		t.Fatalf("deadline should be in the future, got %v", weekly.Deadline)
	}

	indefinite, err := svc.Create(1, GoalInput{Name: "终身学习", Period: db.GoalPeriodIndefinite, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if indefinite.Deadline != nil {
		t.Fatal("indefinite goal should not have a deadline")
	}

	// 不合法周期
	if _, err := svc.Create(1, GoalInput{Name: "坏周期", Period: "daily"}); !errors.Is(err, ErrInvalidGoal) {
		t.Fatalf("expected ErrInvalidGoal, got %v", err)
	}
}

func TestUpdateProgressAddAndSet(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewGoalService(db.DB)
	goal, err := svc.Create(1, GoalInput{Name: "读书", Period: db.GoalPeriodIndefinite, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	updated, err := svc.UpdateProgress(1, goal.ID, GoalProgressInput{Value: 3, Mode: ProgressModeAdd})
	if err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}
	if updated.CurrentValue != 3 {
		t.Fatalf("expected 3, got %v", updated.CurrentValue)
	}
	if updated.TotalCompletions != 1 {
		t.Fatalf("expected 1 completion, got %d", updated.TotalCompletions)
	}
	if updated.StreakCurrent != 1 {
		t.Fatalf("expected streak 1, got %d", updated.StreakCurrent)
	}

	// 同日追加：值累加，完成次数不变
	updated, err = svc.UpdateProgress(1, goal.ID, GoalProgressInput{Value: 2, Mode: ProgressModeAdd})
	if err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}
	if updated.CurrentValue != 5 {
		t.Fatalf("expected 5, got %v", updated.CurrentValue)
	}
	if updated.TotalCompletions != 1 {
		t.Fatalf("expected completions to stay at 1, got %d", updated.TotalCompletions)
	}

	// set 模式覆盖当日值
	updated, err = svc.UpdateProgress(1, goal.ID, GoalProgressInput{Value: 4, Mode: ProgressModeSet})
	if err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}
	if updated.CurrentValue != 4 {
		t.Fatalf("expected 4 after set, got %v", updated.CurrentValue)
	}

	var count int64
	if err := db.DB.Model(&db.GoalProgressLog{}).Where("goal_id = ?", goal.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count progress logs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 progress log, got %d", count)
	}
}

func TestAutoCompleteTransitionsOnce(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewGoalService(db.DB)
	goal, err := svc.Create(1, GoalInput{Name: "本周 5 次锻炼", Period: db.GoalPeriodWeekly, TrackingType: db.ValueCounter, TargetValue: 5})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	updated, err := svc.UpdateProgress(1, goal.ID, GoalProgressInput{Value: 4, Mode: ProgressModeAdd})
	if err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}
	if updated.Status != db.GoalStatusActive {
		t.Fatalf("expected active below target, got %s", updated.Status)
	}

	updated, err = svc.UpdateProgress(1, goal.ID, GoalProgressInput{Value: 1, Mode: ProgressModeAdd})
	if err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}
	if updated.Status != db.GoalStatusCompleted {
		t.Fatalf("expected completed at target, got %s", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}
	completedAt := *updated.CompletedAt

	// 回落不自动撤销完成状态
	updated, err = svc.UpdateProgress(1, goal.ID, GoalProgressInput{Value: 2, Mode: ProgressModeSet})
	if err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}
	if updated.Status != db.GoalStatusCompleted {
		t.Fatalf("expected status to stay completed, got %s", updated.Status)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(completedAt) {
		t.Fatal("expected CompletedAt to stay unchanged")
	}
}

func TestParentRollupAccumulates(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewGoalService(db.DB)
	parent, err := svc.Create(1, GoalInput{Name: "月度总量", Period: db.GoalPeriodMonthly, TrackingType: db.ValueCounter, TargetValue: 10})
	if err != nil {
		t.Fatalf("failed to create parent: %v", err)
	}

	childA, err := svc.Create(1, GoalInput{Name: "子目标 A", Period: db.GoalPeriodIndefinite, ParentID: &parent.ID, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("failed to create child A: %v", err)
	}
	childB, err := svc.Create(1, GoalInput{Name: "子目标 B", Period: db.GoalPeriodIndefinite, ParentID: &parent.ID, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("failed to create child B: %v", err)
	}

	if _, err := svc.UpdateProgress(1, childA.ID, GoalProgressInput{Value: 3, Mode: ProgressModeAdd}); err != nil {
		t.Fatalf("child A progress returned error: %v", err)
	}
	if _, err := svc.UpdateProgress(1, childB.ID, GoalProgressInput{Value: 4, Mode: ProgressModeAdd}); err != nil {
		t.Fatalf("child B progress returned error: %v", err)
	}

	var reloaded db.Goal
	if err := db.DB.First(&reloaded, parent.ID).Error; err != nil {
		t.Fatalf("failed to reload parent: %v", err)
	}
	if reloaded.CurrentValue != 7 {
		t.Fatalf("expected parent value 7, got %v", reloaded.CurrentValue)
	}
}

func TestParentChainCycleIsHardError(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewGoalService(db.DB)
	a, err := svc.Create(1, GoalInput{Name: "A", Period: db.GoalPeriodIndefinite, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("failed to create goal A: %v", err)
	}
	b, err := svc.Create(1, GoalInput{Name: "B", Period: db.GoalPeriodIndefinite, ParentID: &a.ID, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("failed to create goal B: %v", err)
	}

	// 直接在存储层制造环：A 的父指向 B
	if err := db.DB.Model(&db.Goal{}).Where("id = ?", a.ID).Update("parent_id", b.ID).Error; err != nil {
		t.Fatalf("failed to forge cycle: %v", err)
	}

	if _, err := svc.UpdateProgress(1, b.ID, GoalProgressInput{Value: 2, Mode: ProgressModeAdd}); !errors.Is(err, ErrGoalCycle) {
		t.Fatalf("expected ErrGoalCycle, got %v", err)
	}

	// 整个事务回滚：所有目标保持原值
	var reloaded db.Goal
	if err := db.DB.First(&reloaded, b.ID).Error; err != nil {
		t.Fatalf("failed to reload goal B: %v", err)
	}
	if reloaded.CurrentValue != 0 || reloaded.TotalCompletions != 0 {
		t.Fatalf("expected rollback, got value=%v completions=%d", reloaded.CurrentValue, reloaded.TotalCompletions)
	}
}

func TestDeletedParentEndsChainQuietly(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewGoalService(db.DB)
	parent, err := svc.Create(1, GoalInput{Name: "父目标", Period: db.GoalPeriodIndefinite, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("failed to create parent: %v", err)
	}
	child, err := svc.Create(1, GoalInput{Name: "子目标", Period: db.GoalPeriodIndefinite, ParentID: &parent.ID, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("failed to create child: %v", err)
	}

	// 删除父目标后子目标保留孤悬指针
	if err := svc.Delete(1, parent.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	updated, err := svc.UpdateProgress(1, child.ID, GoalProgressInput{Value: 2, Mode: ProgressModeAdd})
	if err != nil {
		t.Fatalf("expected chain to end quietly, got %v", err)
	}
	if updated.CurrentValue != 2 {
		t.Fatalf("expected child value 2, got %v", updated.CurrentValue)
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewGoalService(db.DB)
	goal, err := svc.Create(1, GoalInput{Name: "读书", Period: db.GoalPeriodIndefinite, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.UpdateProgress(1, goal.ID, GoalProgressInput{Value: 5, Mode: ProgressModeAdd}); err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}

	// 人为制造累加器漂移
	if err := db.DB.Model(&db.Goal{}).Where("id = ?", goal.ID).Update("current_value", 9).Error; err != nil {
		t.Fatalf("failed to forge drift: %v", err)
	}

	drift, err := svc.Reconcile(1, goal.ID)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if drift != 4 {
		t.Fatalf("expected drift 4, got %v", drift)
	}

	var reloaded db.Goal
	if err := db.DB.First(&reloaded, goal.ID).Error; err != nil {
		t.Fatalf("failed to reload goal: %v", err)
	}
	if reloaded.CurrentValue != 5 {
		t.Fatalf("expected reconciled value 5, got %v", reloaded.CurrentValue)
	}

	// 无漂移时为空操作
	drift, err = svc.Reconcile(1, goal.ID)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if drift != 0 {
		t.Fatalf("expected zero drift, got %v", drift)
	}
}

func TestGoalSnapshot(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewGoalService(db.DB)
	goal, err := svc.Create(1, GoalInput{Name: "冥想", Period: db.GoalPeriodIndefinite, TrackingType: db.ValueCounter})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.UpdateProgress(1, goal.ID, GoalProgressInput{Value: 1, Mode: ProgressModeAdd}); err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}

	snapshot, err := svc.Snapshot(1, goal.ID)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snapshot.CurrentStreak != 1 || snapshot.TotalCompletions != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.LastCompletedDate == nil {
		t.Fatal("expected last completed date in snapshot")
	}

	// 归属校验
	if _, err := svc.Snapshot(2, goal.ID); !errors.Is(err, ErrGoalNotFound) {
		t.Fatalf("expected ErrGoalNotFound, got %v", err)
	}
}
