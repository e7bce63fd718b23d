package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/events"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
)

// Options configures a Service. Every field is optional.
type Options struct {
	// Emitter records the event row for a transition. Defaults to a DBEmitter.
	Emitter events.Emitter

	// Dispatcher receives recorded events after commit. Nil disables dispatch.
	Dispatcher events.Dispatcher

	Audit   audit.Logger
	Metrics *observability.Metrics

	// DefaultStages seeds tenants whose settings carry no stage template.
	DefaultStages []models.StageTemplate
}

// Service implements the pipeline operations
type Service struct {
	store      *storage.Store
	guard      *auth.Guard
	emitter    events.Emitter
	dispatcher events.Dispatcher
	audit      audit.Logger
	metrics    *observability.Metrics

	mu       sync.RWMutex
	defaults []models.StageTemplate
}

// NewService creates a pipeline service
func NewService(store *storage.Store, guard *auth.Guard, opts Options) *Service {
	if opts.Emitter == nil {
		opts.Emitter = events.NewDBEmitter(opts.Metrics)
	}
	if opts.Audit == nil {
		opts.Audit = audit.NoOpLogger()
	}
	return &Service{
		store:      store,
		guard:      guard,
		emitter:    opts.Emitter,
		dispatcher: opts.Dispatcher,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		defaults:   opts.DefaultStages,
	}
}

// SetDefaultStages replaces the template used by InitializeDefaultStages
func (s *Service) SetDefaultStages(stages []models.StageTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = append([]models.StageTemplate(nil), stages...)
}

func (s *Service) defaultStages() []models.StageTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// Transition is the result of a successful move
type Transition struct {
	PersonID  string  `json:"person_id"`
	FromStage *string `json:"from_stage"`
	ToStage   string  `json:"to_stage"`
	HistoryID string  `json:"history_id"`
}

// MovePersonToStage moves a person to toStage. The stage update and history
// row commit together; the event row is best effort.
func (s *Service) MovePersonToStage(ctx context.Context, personID, toStage string, reason *string) (*Transition, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.MovePersonToStage", "person_id", personID, "to_stage", toStage)
	defer span.End()

	var result *Transition
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionUpdate)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		person, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if err := caller.TenantScope().CheckWrite("person", person.TenantID); err != nil {
			return err
		}

		stages, err := tx.ListStages(ctx, caller.TenantID, false)
		if err != nil {
			return err
		}
		if err := CheckTransition(stages, person.CurrentPipelineStage, toStage); err != nil {
			return err
		}

		t, err := s.recordTransition(ctx, tx, caller, person, toStage, reason)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		s.metrics.ObserveTransition(apperr.KindOf(err).String())
		return nil, err
	}

	s.metrics.ObserveTransition("moved")
	return result, nil
}

// RecordAssignment places a newly created person at stage as part of the
// creating transaction. The initial assignment is not subject to the skip
// rule, but stage must be an active stage of the caller's tenant.
func (s *Service) RecordAssignment(ctx context.Context, tx *storage.Tx, caller *auth.Caller, person *models.Person, stage string) error {
	stages, err := tx.ListStages(ctx, caller.TenantID, false)
	if err != nil {
		return err
	}
	if err := CheckTransition(stages, nil, stage); err != nil {
		return err
	}

	reason := "Initial person creation"
	_, err = s.recordTransition(ctx, tx, caller, person, stage, &reason)
	return err
}

// recordTransition applies a validated move inside tx
func (s *Service) recordTransition(ctx context.Context, tx *storage.Tx, caller *auth.Caller, person *models.Person, toStage string, reason *string) (*Transition, error) {
	from := person.CurrentPipelineStage

	if err := tx.SetPersonStage(ctx, person.ID, toStage); err != nil {
		return nil, err
	}

	history := &models.PipelineHistory{
		PersonID:        person.ID,
		FromStage:       from,
		ToStage:         toStage,
		ChangedByUserID: caller.UserID(),
		ChangeReason:    reason,
		TenantID:        caller.TenantID,
	}
	if err := tx.AppendHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to record stage change: %w", err)
	}

	s.emit(ctx, tx, caller, events.Payload{
		PersonID:  person.ID,
		FromStage: from,
		ToStage:   toStage,
		Reason:    reason,
	})

	return &Transition{
		PersonID:  person.ID,
		FromStage: from,
		ToStage:   toStage,
		HistoryID: history.ID,
	}, nil
}

// emit records the event inside a savepoint and schedules dispatch for after
// commit. Failures are logged and never abort the transaction.
func (s *Service) emit(ctx context.Context, tx *storage.Tx, caller *auth.Caller, payload events.Payload) {
	var event *models.PipelineEvent
	err := tx.Savepoint(ctx, "pipeline_event", func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = observability.MustRecover(r)
			}
		}()
		event, err = s.emitter.EmitPipelineEvent(ctx, tx, caller.TenantID, caller.UserID(), payload)
		return err
	})
	if err != nil {
		observability.FromContext(ctx).
			WithError(apperr.EventEmission(err)).
			WithFields(map[string]interface{}{
				"person_id": payload.PersonID,
				"to_stage":  payload.ToStage,
			}).
			Warn("Failed to emit pipeline event")
		s.metrics.ObserveEvent(events.EventTypeStageChanged, "dropped")
		return
	}

	if s.dispatcher != nil && event != nil {
		dispatched := *event
		tx.AfterCommit(func() {
			s.dispatcher.Dispatch(ctx, dispatched)
		})
	}
}

// GetPersonPipelineHistory returns a person's transitions, newest first
func (s *Service) GetPersonPipelineHistory(ctx context.Context, personID string, limit int) ([]storage.HistoryEntry, error) {
	var history []storage.HistoryEntry
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionRead)
		if err != nil {
			return err
		}

		person, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if err := caller.TenantScope().CheckRead("person", person.TenantID); err != nil {
			return err
		}

		history, err = tx.ListHistory(ctx, caller.TenantID, person.ID, historyLimit(limit))
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func historyLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	}
	return limit
}

// StageCount is the occupancy of one active stage
type StageCount struct {
	Stage    string               `json:"stage"`
	Order    int                  `json:"order"`
	Category models.StageCategory `json:"category"`
	Count    int                  `json:"count"`
}

// Statistics summarizes pipeline occupancy for a tenant
type Statistics struct {
	Stages     []StageCount `json:"stages"`
	Unassigned int          `json:"unassigned"`

	// Other counts people holding a stage that is inactive or unknown.
	Other int `json:"other"`
	Total int `json:"total"`
}

// GetPipelineStatistics counts the people in each active stage of the
// caller's tenant
func (s *Service) GetPipelineStatistics(ctx context.Context) (*Statistics, error) {
	var stats *Statistics
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionRead)
		if err != nil {
			return err
		}
		stats, err = Compute(ctx, tx, caller.TenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Compute builds Statistics for tenantID inside tx. It performs no
// authorization and is shared with the background stats refresher.
func Compute(ctx context.Context, tx *storage.Tx, tenantID string) (*Statistics, error) {
	stages, err := tx.ListStages(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	counts, err := tx.CountPeopleByStage(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{Stages: make([]StageCount, 0, len(stages))}
	for _, n := range counts {
		stats.Total += n
	}
	stats.Unassigned = counts[""]
	stats.Other = stats.Total - stats.Unassigned

	for _, st := range stages {
		n := counts[st.Name]
		stats.Stages = append(stats.Stages, StageCount{
			Stage:    st.Name,
			Order:    st.Order,
			Category: st.Category,
			Count:    n,
		})
		stats.Other -= n
	}
	return stats, nil
}
