// Package jobs runs periodic background work on a robfig/cron schedule.
//
// Two jobs exist. StatsRefresher recomputes pipeline occupancy for every
// active tenant and publishes it as the sunup_pipeline_people gauge, so
// dashboards never query the database directly. AuditPruner deletes audit
// rows older than the configured retention.
//
//	sched := jobs.NewScheduler(logger)
//	sched.Add(cfg.Jobs.StatsSchedule, jobs.NewStatsRefresher(store, metrics, 4))
//	sched.Start(ctx)
//	defer sched.Stop(context.Background())
//
// A run that is still going when its next tick fires is skipped.
package jobs
