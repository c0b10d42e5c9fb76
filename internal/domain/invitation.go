package domain

import (
	"time"

	"workspace-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationArchived InvitationStatus = "archived"
)

// MaxInviteAttempts caps how many times an invitation may be (re)sent.
const MaxInviteAttempts = 3

var invitationTransitions = map[InvitationStatus][]InvitationStatus{
	InvitationPending:  {InvitationAccepted, InvitationRejected, InvitationArchived},
	InvitationRejected: {InvitationPending},
	InvitationArchived: {InvitationPending},
}

// CanTransition reports whether an invitation may move from one status to another.
// Accepted is terminal.
func CanTransition(from, to InvitationStatus) bool {
	for _, s := range invitationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Invitation is an offer for ToEmail to join CompanyID with Role.
type Invitation struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FromEmail    string           `gorm:"column:from_email;not null" json:"from_email"`
	ToEmail      string           `gorm:"column:to_email;not null;index:idx_invitations_target" json:"to_email"`
	CompanyID    uuid.UUID        `gorm:"column:company_id;type:uuid;not null;index:idx_invitations_target" json:"company_id"`
	Role         constants.Role   `gorm:"column:role;not null" json:"role"`
	Message      *string          `gorm:"column:message" json:"message"`
	Status       InvitationStatus `gorm:"column:status;not null;default:pending" json:"status"`
	AttemptCount int              `gorm:"column:attempt_count;not null;default:1" json:"attempt_count"`
	CreatedAt    time.Time        `gorm:"column:created_at" json:"created_at"`
	SentAt       time.Time        `gorm:"column:sent_at" json:"sent_at"`
	UpdatedAt    time.Time        `gorm:"column:updated_at" json:"updated_at"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"-"`
}

func (Invitation) TableName() string {
	return "invitations"
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// CanReinvite reports whether the invitation may be revived to pending.
func (i *Invitation) CanReinvite() bool {
	return CanTransition(i.Status, InvitationPending) && i.AttemptCount < MaxInviteAttempts
}

// InvitationView is an invitation with its company summary, as listed to clients.
type InvitationView struct {
	Invitation
	Companies *CompanySummary `json:"companies"`
}

// View returns the listing shape of i. Company must be preloaded to be included.
func (i Invitation) View() InvitationView {
	return InvitationView{Invitation: i, Companies: i.Company.Summary()}
}
