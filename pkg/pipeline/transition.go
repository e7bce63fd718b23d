package pipeline

import (
	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
)

// CheckTransition validates a move from current to target against the active
// stages of a tenant, which must be sorted by order. current is nil for an
// unassigned person; a current stage that is no longer active is treated the
// same way.
//
// It fails with InvalidStage when target is not an active stage and with
// StageSkipped when the move passes over one or more active stages.
func CheckTransition(stages []models.PipelineStage, current *string, target string) error {
	currentIndex, targetIndex := -1, -1
	for i, s := range stages {
		if current != nil && s.Name == *current {
			currentIndex = i
		}
		if s.Name == target {
			targetIndex = i
		}
	}

	if targetIndex < 0 {
		return apperr.InvalidStage(target)
	}

	if currentIndex >= 0 && targetIndex-currentIndex > 1 {
		skipped := make([]string, 0, targetIndex-currentIndex-1)
		for _, s := range stages[currentIndex+1 : targetIndex] {
			skipped = append(skipped, s.Name)
		}
		return apperr.StageSkipped(target, skipped)
	}

	return nil
}
