package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/storage"
)

// ProvisionUser binds an identity subject to an invited user. It runs
// without a caller and backs the admin CLI; signing in never creates users.
func (s *Service) ProvisionUser(ctx context.Context, email, subject string) (*models.User, error) {
	email = s.normalizer.Email(email)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperr.Validation("subject is required")
	}
	if strings.HasPrefix(subject, PendingSubjectPrefix) {
		return nil, apperr.Validation("subject may not start with %q", PendingSubjectPrefix)
	}

	var user *models.User
	var previous string
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		previous = ""
		var err error
		user, err = tx.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user.Subject == subject {
			return nil
		}
		if !strings.HasPrefix(user.Subject, PendingSubjectPrefix) {
			return apperr.Validation("user %s is already bound to another identity", email)
		}

		if other, err := tx.GetUserBySubject(ctx, subject); err == nil {
			return apperr.Validation("subject is already bound to %s", other.Email)
		} else if !apperr.IsNotFound(err) {
			return err
		}

		previous = user.Subject
		if err := tx.BindUserSubject(ctx, user.ID, subject); err != nil {
			return err
		}
		user.Subject = subject

		s.auditAfterCommit(ctx, tx, audit.EventTypeAdminUserProvision, audit.ResourceTypeUser, user.ID,
			fmt.Sprintf("User %s provisioned", user.Email))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if previous != "" {
		s.guard.Forget(previous)
	}
	return user, nil
}

// SyncProfile copies the profile claims of a verified identity onto its user.
// Empty claims leave the stored value untouched.
func (s *Service) SyncProfile(ctx context.Context, identity *auth.Identity) (*models.User, error) {
	if identity == nil || strings.TrimSpace(identity.Subject) == "" {
		return nil, apperr.Validation("subject is required")
	}

	var user *models.User
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		current, err := tx.GetUserBySubject(ctx, identity.Subject)
		if err != nil {
			return err
		}

		updated := *current
		if identity.Email != "" {
			updated.Email = identity.Email
		}
		if identity.FirstName != "" {
			updated.FirstName = identity.FirstName
		}
		if identity.LastName != "" {
			updated.LastName = identity.LastName
		}
		updated = s.normalizer.User(updated)
		if err := s.validator.ValidateUser(&updated).Err(); err != nil {
			return err
		}

		if updated == *current {
			user = current
			return nil
		}

		if err := tx.UpdateUserProfile(ctx, &updated); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return emailTaken(updated.Email)
			}
			return err
		}
		user = &updated

		s.auditAfterCommit(ctx, tx, audit.EventTypeAdminProfileSync, audit.ResourceTypeUser, updated.ID,
			fmt.Sprintf("Profile synced for %s", updated.Email))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
