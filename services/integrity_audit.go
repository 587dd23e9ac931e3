package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"context-rag-platform/internal/logger"
	"context-rag-platform/internal/store"
	"context-rag-platform/utils"
)

// IntegrityAuditService periodically re-verifies the content hash of every
// stored version. Mismatches are logged and counted, never repaired; a
// corrupted snapshot should be visible, not papered over.
type IntegrityAuditService struct {
	store     store.Store
	versions  *VersionManagerService
	scheduler *gocron.Scheduler
	interval  time.Duration
}

// NewIntegrityAuditService creates a new integrity audit service
func NewIntegrityAuditService(st store.Store, versions *VersionManagerService, interval time.Duration) *IntegrityAuditService {
	return &IntegrityAuditService{
		store:     st,
		versions:  versions,
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
	}
}

// Start schedules the audit and runs it in the background.
func (as *IntegrityAuditService) Start() error {
	_, err := as.scheduler.Every(as.interval).Tag("integrity-audit").Do(func() {
		ctx, cancel := utils.WithCustomTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		as.RunAudit(ctx)
	})
	if err != nil {
		return err
	}
	as.scheduler.StartAsync()
	logger.Info("Integrity audit scheduled", "interval", as.interval.String())
	return nil
}

// Stop stops the scheduler.
func (as *IntegrityAuditService) Stop() {
	as.scheduler.Stop()
}

// RunAudit verifies every version of every context once. Returns the number
// of versions checked and the number that failed verification.
func (as *IntegrityAuditService) RunAudit(ctx context.Context) (checked, failed int) {
	contexts, err := as.store.ListContexts(ctx)
	if err != nil {
		logger.Error("Integrity audit could not list contexts", "error", err)
		return 0, 0
	}

	for _, c := range contexts {
		versions, err := as.store.ListVersions(ctx, c.ID)
		if err != nil {
			logger.Error("Integrity audit could not list versions", "context_id", c.ID.Hex(), "error", err)
			continue
		}
		for _, v := range versions {
			checked++
			if ok, err := as.versions.VerifyIntegrity(ctx, v.ID); !ok {
				failed++
				logger.Error("Version failed integrity verification",
					"context_id", c.ID.Hex(), "version", v.Version, "error", err)
			}
		}
	}
	logger.Info("Integrity audit complete", "checked", checked, "failed", failed)
	return checked, failed
}
