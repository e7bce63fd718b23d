package jobs

import (
	"context"

	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// AuditCleaner deletes expired audit rows. audit.DBLogger implements it.
type AuditCleaner interface {
	Cleanup(ctx context.Context, policy audit.RetentionPolicy) (int64, error)
}

// AuditPruner enforces the audit retention period
type AuditPruner struct {
	cleaner AuditCleaner
	policy  audit.RetentionPolicy
}

// NewAuditPruner creates a pruner keeping retentionDays of audit history
func NewAuditPruner(cleaner AuditCleaner, retentionDays int) *AuditPruner {
	return &AuditPruner{
		cleaner: cleaner,
		policy:  audit.RetentionPolicy{RetentionDays: retentionDays},
	}
}

// Name implements Job
func (p *AuditPruner) Name() string { return "audit-prune" }

// Run implements Job
func (p *AuditPruner) Run(ctx context.Context) error {
	removed, err := p.cleaner.Cleanup(ctx, p.policy)
	if err != nil {
		return err
	}
	if removed > 0 {
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"removed":        removed,
			"retention_days": p.policy.RetentionDays,
		}).Info("Pruned audit events")
	}
	return nil
}
