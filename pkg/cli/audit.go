package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/sunup/pkg/audit"
)

const (
	auditTenantFlag = "for-tenant"
	auditTypeFlag   = "event-type"
	auditSinceFlag  = "since"
	auditFormatFlag = "format"
)

func (a *App) newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and prune the audit log",
	}
	cmd.AddCommand(a.newAuditListCommand(), a.newAuditPruneCommand())
	return cmd
}

func (a *App) newAuditListCommand() *cobra.Command {
	flags := map[string]cobraflags.Flag{
		auditTenantFlag: &cobraflags.StringFlag{
			Name:  auditTenantFlag,
			Value: "",
			Usage: "Only events of this tenant",
		},
		auditTypeFlag: &cobraflags.StringFlag{
			Name:  auditTypeFlag,
			Value: "",
			Usage: "Comma-separated event types, e.g. authz.access_denied",
		},
		auditSinceFlag: &cobraflags.StringFlag{
			Name:  auditSinceFlag,
			Value: "",
			Usage: "Only events after this RFC 3339 time or this long ago (e.g. 24h)",
		},
		auditFormatFlag: &cobraflags.StringFlag{
			Name:  auditFormatFlag,
			Value: string(audit.ExportFormatJSON),
			Usage: "Output format: json, ndjson or csv",
		},
	}
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print audit events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := audit.SearchFilter{
				TenantID: flags[auditTenantFlag].GetString(),
				Limit:    limit,
			}
			for _, t := range strings.Split(flags[auditTypeFlag].GetString(), ",") {
				if t = strings.TrimSpace(t); t != "" {
					filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
				}
			}
			if s := flags[auditSinceFlag].GetString(); s != "" {
				since, err := parseSince(s, time.Now())
				if err != nil {
					return err
				}
				filter.StartTime = &since
			}
			format := audit.ExportFormat(flags[auditFormatFlag].GetString())

			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				events, err := env.Audit.Search(ctx, filter)
				if err != nil {
					return err
				}
				return audit.WriteExport(cmd.OutOrStdout(), events, format)
			})
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	return cmd
}

func (a *App) newAuditPruneCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit events older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--retention-days must be positive")
			}
			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				removed, err := env.Audit.Cleanup(ctx, audit.RetentionPolicy{RetentionDays: days})
				if err != nil {
					return err
				}
				a.log.WithField("retention_days", days).Infof("Removed %d audit events", removed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "retention-days", 365, "Keep events newer than this many days")
	return cmd
}

// parseSince accepts an RFC 3339 timestamp or a duration before now
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want an RFC 3339 time or a positive duration", s)
	}
	return now.Add(-d), nil
}
