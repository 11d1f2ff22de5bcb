// Package scheduler runs the periodic retention purge.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"device_inventory_tool/db"
	"device_inventory_tool/session"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const retentionLock = "retention-purge"

// Actor 定时任务写审计日志时使用的账号名
var Actor = db.Actor{Username: "scheduler"}

var ErrLocked = errors.New("retention purge is already running")

type RetentionJob struct {
	Repo    *db.Repo
	Locks   *session.RunLock
	Days    int
	Timeout time.Duration
	Log     *zap.Logger
}

// RunOnce 在跨实例锁内执行一次清理
func (j *RetentionJob) RunOnce(ctx context.Context) (*db.PurgeCounts, error) {
	threshold, err := j.Repo.ThresholdFor(j.Days)
	if err != nil {
		return nil, err
	}
	release, ok, err := j.Locks.TryAcquire(ctx, retentionLock, j.Timeout+time.Minute)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			j.Log.Warn("[RETENTION] release lock", zap.Error(err))
		}
	}()

	counts, err := j.Repo.PurgeOlderThan(ctx, threshold)
	if err != nil {
		return nil, err
	}
	detail := fmt.Sprintf("%+v", *counts)
	if _, err := j.Repo.LogAction(ctx, Actor, db.ActionPurge, fmt.Sprint(j.Days), &detail); err != nil {
		j.Log.Warn("[RETENTION] audit log", zap.Error(err))
	}
	return counts, nil
}

// StartRetentionCron 未配置 schedule 时返回 nil；调用方负责 Stop
func StartRetentionCron(schedule string, job *RetentionJob) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}
	if job.Days < 1 {
		return nil, fmt.Errorf("RETENTION_CRON set but RETENTION_DAYS=%d", job.Days)
	}
	if job.Timeout <= 0 {
		job.Timeout = 4 * time.Minute
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
		defer cancel()
		counts, err := job.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrLocked):
			job.Log.Info("[RETENTION] skipped, another instance holds the lock")
		case err != nil:
			job.Log.Error("[RETENTION] purge failed", zap.Error(err))
		default:
			job.Log.Info("[RETENTION] purge done",
				zap.Time("threshold", counts.Threshold),
				zap.Int64("students", counts.Students),
				zap.Int64("assignments", counts.Assignments),
				zap.Int64("contracts", counts.Contracts),
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("add retention cron: %w", err)
	}
	job.Log.Info("[RETENTION] started", zap.String("schedule", schedule), zap.Int("retentionDays", job.Days))
	c.Start()
	return c, nil
}
