package invitations

import (
	"context"
	"errors"
	"time"

	"workspace-backend/internal/application/emails"
	invitepolicy "workspace-backend/internal/application/policies/invitations"
	"workspace-backend/internal/application/profiles"
	"workspace-backend/internal/application/saga"
	"workspace-backend/internal/domain"
	"workspace-backend/internal/pkg/constants"
	"workspace-backend/internal/pkg/validation"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrMissingFields       = domain.NewError(domain.KindValidation, "Email, company ID, and role are required")
	ErrInvalidEmail        = domain.NewError(domain.KindValidation, "Invalid email address")
	ErrInvalidRole         = domain.NewError(domain.KindValidation, "Invalid role")
	ErrInvalidDecision     = domain.NewError(domain.KindValidation, `Invalid status. Must be "accepted" or "rejected"`)
	ErrInvitationNotFound  = domain.NewError(domain.KindNotFound, "Invitation not found")
	ErrRespondNotFound     = domain.NewError(domain.KindNotFound, "Invitation not found or you do not have permission to respond to it")
	ErrAlreadyResponded    = domain.NewError(domain.KindInvalidState, "This invitation has already been responded to")
	ErrAlreadyInCompany    = domain.NewError(domain.KindConflict, "You already belong to a company. You must leave your current company before accepting this invitation.")
	ErrOnlyPendingCancel   = domain.NewError(domain.KindInvalidState, "Only pending invitations can be canceled")
	ErrCannotCancel        = domain.NewError(domain.KindForbidden, "You do not have permission to cancel this invitation")
	ErrNotInCompany        = domain.NewError(domain.KindForbidden, "User is not part of a company")
	ErrReinviteStateLost   = domain.NewError(domain.KindInvalidState, "The invitation changed while it was being sent again")
	ErrRecipientHasCompany = invitepolicy.ErrRecipientHasCompany
)

// Service is the invitation workflow.
type Service struct {
	DB       *gorm.DB
	Profiles *profiles.Service
	// Mailer is optional; delivery failures are logged and never fail the request.
	Mailer  emails.Sender
	SiteURL string
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateInput is a new invitation.
type CreateInput struct {
	ToEmail   string
	CompanyID uuid.UUID
	Role      constants.Role
	Message   *string
}

func (in *CreateInput) validate() error {
	in.ToEmail = validation.NormalizeEmail(in.ToEmail)
	if in.ToEmail == "" || in.CompanyID == uuid.Nil || in.Role == "" {
		return ErrMissingFields
	}
	if !validation.IsValidEmail(in.ToEmail) {
		return ErrInvalidEmail
	}
	if !constants.IsValidRole(string(in.Role)) {
		return ErrInvalidRole
	}
	return nil
}

// sender loads the actor's profile. A user without a profile row has no
// company and is treated as one.
func (s *Service) sender(ctx context.Context, actor domain.Identity) (*domain.Profile, error) {
	p, err := s.Profiles.GetByUserID(ctx, actor.UserID)
	if errors.Is(err, profiles.ErrProfileNotFound) {
		return &domain.Profile{UserID: actor.UserID, Email: validation.NormalizeEmail(actor.Email)}, nil
	}
	if err != nil {
		return nil, err
	}
	p.Email = validation.NormalizeEmail(actor.Email)
	return p, nil
}

// Create sends a new invitation from actor.
func (s *Service) Create(ctx context.Context, actor domain.Identity, in CreateInput) (*domain.Invitation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	from, err := s.sender(ctx, actor)
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	if err := invitepolicy.ValidateInviteCreation(db, from, in.ToEmail, in.CompanyID, in.Role); err != nil {
		return nil, err
	}

	now := s.now()
	inv := &domain.Invitation{
		FromEmail:    from.Email,
		ToEmail:      in.ToEmail,
		CompanyID:    in.CompanyID,
		Role:         in.Role,
		Message:      in.Message,
		Status:       domain.InvitationPending,
		AttemptCount: 1,
		CreatedAt:    now,
		SentAt:       now,
		UpdatedAt:    now,
	}
	if err := db.Create(inv).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "insert invitation")
	}

	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("company_id", inv.CompanyID.String()).
		Str("role", string(inv.Role)).
		Msg("invitation created")
	s.notify(ctx, inv, false)
	return inv, nil
}

// ReinviteInput targets an invitation by id or by (ToEmail, CompanyID). An
// empty Role keeps the invitation's current role.
type ReinviteInput struct {
	InvitationID *uuid.UUID
	ToEmail      string
	CompanyID    uuid.UUID
	Role         constants.Role
	Message      *string
}

// Reinvite revives a rejected or archived invitation in place, incrementing
// its attempt count.
func (s *Service) Reinvite(ctx context.Context, actor domain.Identity, in ReinviteInput) (*domain.Invitation, error) {
	if in.Role != "" && !constants.IsValidRole(string(in.Role)) {
		return nil, ErrInvalidRole
	}
	from, err := s.sender(ctx, actor)
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)

	inv, err := s.findReinvitable(db, in)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = inv.Role
	}
	if err := invitepolicy.ValidateReinvite(from, inv, role); err != nil {
		return nil, err
	}
	if err := s.ensureRecipientFree(db, inv); err != nil {
		return nil, err
	}

	now := s.now()
	res := db.Model(&domain.Invitation{}).
		Where("id = ? AND status = ? AND attempt_count < ?", inv.ID, inv.Status, domain.MaxInviteAttempts).
		Updates(map[string]interface{}{
			"status":        domain.InvitationPending,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"from_email":    from.Email,
			"role":          role,
			"message":       in.Message,
			"sent_at":       now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(res.Error, "reinvite")
	}
	if res.RowsAffected == 0 {
		return nil, ErrReinviteStateLost
	}

	var updated domain.Invitation
	if err := db.First(&updated, "id = ?", inv.ID).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "reload invitation")
	}
	log.Info().
		Str("invitation_id", updated.ID.String()).
		Int("attempt_count", updated.AttemptCount).
		Msg("invitation sent again")
	s.notify(ctx, &updated, true)
	return &updated, nil
}

func (s *Service) findReinvitable(db *gorm.DB, in ReinviteInput) (*domain.Invitation, error) {
	var inv domain.Invitation
	q := db
	if in.InvitationID != nil {
		q = q.Where("id = ?", *in.InvitationID)
	} else {
		email := validation.NormalizeEmail(in.ToEmail)
		if email == "" || in.CompanyID == uuid.Nil {
			return nil, ErrMissingFields
		}
		q = q.Where("to_email = ? AND company_id = ? AND status IN ?", email, in.CompanyID,
			[]domain.InvitationStatus{domain.InvitationRejected, domain.InvitationArchived}).
			Order("updated_at DESC")
	}
	if err := q.First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, pkgerrors.Wrap(err, "load invitation")
	}
	return &inv, nil
}

// ensureRecipientFree keeps a revived invitation from duplicating another
// pending one or targeting someone who already joined a company.
func (s *Service) ensureRecipientFree(db *gorm.DB, inv *domain.Invitation) error {
	var pending int64
	if err := db.Model(&domain.Invitation{}).
		Where("to_email = ? AND company_id = ? AND status = ? AND id <> ?",
			inv.ToEmail, inv.CompanyID, domain.InvitationPending, inv.ID).
		Count(&pending).Error; err != nil {
		return pkgerrors.Wrap(err, "check pending invitation")
	}
	if pending > 0 {
		return invitepolicy.ErrPendingInvitationExists
	}
	var joined int64
	if err := db.Model(&domain.Profile{}).
		Where("email = ? AND company_id IS NOT NULL", inv.ToEmail).
		Count(&joined).Error; err != nil {
		return pkgerrors.Wrap(err, "check recipient")
	}
	if joined > 0 {
		return ErrRecipientHasCompany
	}
	return nil
}

// Decision is the recipient's answer to an invitation.
type Decision string

const (
	Accept Decision = Decision(domain.InvitationAccepted)
	Reject Decision = Decision(domain.InvitationRejected)
)

// RespondResult is returned by Respond.
type RespondResult struct {
	Invitation *domain.Invitation
	Company    *domain.Company
}

// Message is the client-facing confirmation.
func (r *RespondResult) Message() string {
	if r.Invitation.Status == domain.InvitationAccepted {
		name := "the company"
		if r.Company != nil {
			name = r.Company.Name
		}
		return "You have joined " + name
	}
	return "Invitation rejected"
}

// Respond applies the recipient's decision. Accepting binds the recipient's
// profile to the company with the invited role.
func (s *Service) Respond(ctx context.Context, user domain.Identity, invitationID uuid.UUID, decision Decision) (*RespondResult, error) {
	if decision != Accept && decision != Reject {
		return nil, ErrInvalidDecision
	}
	db := s.DB.WithContext(ctx)
	email := validation.NormalizeEmail(user.Email)

	var inv domain.Invitation
	if err := db.Preload("Company").Where("id = ? AND to_email = ?", invitationID, email).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRespondNotFound
		}
		return nil, pkgerrors.Wrap(err, "load invitation")
	}
	if inv.Status != domain.InvitationPending {
		return nil, ErrAlreadyResponded
	}

	var err error
	if decision == Reject {
		err = s.transition(db, inv.ID, domain.InvitationPending, domain.InvitationRejected)
	} else {
		err = s.accept(ctx, db, user, &inv)
	}
	if err != nil {
		return nil, err
	}

	inv.Status = domain.InvitationStatus(decision)
	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("status", string(inv.Status)).
		Str("user_id", user.UserID.String()).
		Msg("invitation answered")
	return &RespondResult{Invitation: &inv, Company: inv.Company}, nil
}

func (s *Service) accept(ctx context.Context, db *gorm.DB, user domain.Identity, inv *domain.Invitation) error {
	var profile *domain.Profile
	return saga.Run(ctx,
		saga.Step{
			Name: "mark accepted",
			Do: func(ctx context.Context) error {
				return s.transition(db, inv.ID, domain.InvitationPending, domain.InvitationAccepted)
			},
			Undo: func(ctx context.Context) error {
				return s.transition(db, inv.ID, domain.InvitationAccepted, domain.InvitationPending)
			},
		},
		saga.Step{
			Name: "check recipient",
			Do: func(ctx context.Context) error {
				p, err := s.Profiles.EnsureProfile(ctx, user)
				if err != nil {
					return err
				}
				if p.HasCompany() {
					return ErrAlreadyInCompany
				}
				profile = p
				return nil
			},
		},
		saga.Step{
			Name: "bind profile",
			Do: func(ctx context.Context) error {
				res := db.Model(&domain.Profile{}).
					Where("id = ? AND company_id IS NULL", profile.ID).
					Updates(map[string]interface{}{"company_id": inv.CompanyID, "role": inv.Role})
				if res.Error != nil {
					return pkgerrors.Wrap(res.Error, "bind profile")
				}
				if res.RowsAffected == 0 {
					return ErrAlreadyInCompany
				}
				return nil
			},
		},
	)
}

// transition moves an invitation from one status to another only if it is
// still in from. Compensation also uses it to walk accepted back to pending.
func (s *Service) transition(db *gorm.DB, id uuid.UUID, from, to domain.InvitationStatus) error {
	res := db.Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": s.now()})
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "update invitation status")
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyResponded
	}
	return nil
}

// Cancel archives a pending invitation.
func (s *Service) Cancel(ctx context.Context, user domain.Identity, invitationID uuid.UUID) error {
	actor, err := s.sender(ctx, user)
	if err != nil {
		return err
	}
	db := s.DB.WithContext(ctx)

	var inv domain.Invitation
	if err := db.Where("id = ?", invitationID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvitationNotFound
		}
		return pkgerrors.Wrap(err, "load invitation")
	}
	if inv.Status != domain.InvitationPending {
		return ErrOnlyPendingCancel
	}
	if !invitepolicy.CanCancel(actor, &inv) {
		return ErrCannotCancel
	}

	if err := s.transition(db, inv.ID, domain.InvitationPending, domain.InvitationArchived); err != nil {
		if errors.Is(err, ErrAlreadyResponded) {
			return ErrOnlyPendingCancel
		}
		return err
	}
	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("user_id", user.UserID.String()).
		Msg("invitation canceled")
	return nil
}

// List returns the invitations of user's company, newest first. Only pending
// invitations unless includeAll.
func (s *Service) List(ctx context.Context, user domain.Identity, includeAll bool) ([]domain.InvitationView, error) {
	p, err := s.Profiles.GetByUserID(ctx, user.UserID)
	if errors.Is(err, profiles.ErrProfileNotFound) {
		return nil, ErrNotInCompany
	}
	if err != nil {
		return nil, err
	}
	if !p.HasCompany() {
		return nil, ErrNotInCompany
	}

	q := s.DB.WithContext(ctx).Preload("Company").Where("company_id = ?", *p.CompanyID)
	if !includeAll {
		q = q.Where("status = ?", domain.InvitationPending)
	}
	var invs []domain.Invitation
	if err := q.Order("created_at DESC").Find(&invs).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "list invitations")
	}
	views := make([]domain.InvitationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, inv.View())
	}
	return views, nil
}

func (s *Service) notify(ctx context.Context, inv *domain.Invitation, reminder bool) {
	if s.Mailer == nil {
		return
	}
	var company domain.Company
	if err := s.DB.WithContext(ctx).Where("id = ?", inv.CompanyID).First(&company).Error; err != nil {
		log.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("invitation email skipped")
		return
	}
	msg := ""
	if inv.Message != nil {
		msg = *inv.Message
	}
	err := s.Mailer.SendInvitation(ctx, emails.Invitation{
		ToEmail:     inv.ToEmail,
		FromEmail:   inv.FromEmail,
		CompanyName: company.Name,
		Role:        string(inv.Role),
		Message:     msg,
		Link:        s.SiteURL + "/onboarding",
		Reminder:    reminder,
	})
	if err != nil {
		log.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("invitation email failed")
	}
}
