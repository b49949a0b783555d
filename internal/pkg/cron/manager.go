package cron

import (
	"Folio/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine      *cron.Cron
	cleanupSpec string
	cleanupJob  *job.NotificationCleanupJob
}

func NewCronManager(cleanupSpec string, cleanupJob *job.NotificationCleanupJob) *Manager {
	if cleanupSpec == "" {
		cleanupSpec = "0 30 3 * * *"
	}
	return &Manager{
		engine:      cron.New(cron.WithSeconds()),
		cleanupSpec: cleanupSpec,
		cleanupJob:  cleanupJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.cleanupSpec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(s.cleanupJob)); err != nil {
		return err
	}
	return nil
}

// Start 注册任务后启动调度
func (s *Manager) Start() error {
	if err := s.RegisterJobs(); err != nil {
		return err
	}
	log.Info("Cron 定时任务引擎启动", "cleanup_spec", s.cleanupSpec)
	s.engine.Start()
	return nil
}

// Stop 停止调度并等待运行中的任务结束
func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
