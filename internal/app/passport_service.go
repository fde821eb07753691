package app

import (
	"context"
	"time"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

type BadgeRepository interface {
	CreateBadge(ctx context.Context, badge domain.Badge) error
	GetBadge(ctx context.Context, badgeID string) (domain.Badge, error)
}

// PassportService issues non-transferable attendance badges. It deliberately
// has no transfer operation.
type PassportService struct {
	repo BadgeRepository
}

func NewPassportService(repo BadgeRepository) *PassportService {
	return &PassportService{repo: repo}
}

type MintBadgeInput struct {
	EventID     string
	Recipient   domain.Identity
	EventName   string
	EventType   domain.EventType
	TicketTier  string
	CheckInTime time.Time
}

// MintBadge creates the badge at the id derived from (event, recipient). A
// second mint for the same pair fails ErrAlreadyExists.
func (s *PassportService) MintBadge(ctx context.Context, in MintBadgeInput) (domain.Badge, error) {
	if in.EventID == "" || !in.Recipient.Valid() {
		return domain.Badge{}, domain.ErrInvalidID
	}
	if err := domain.ValidateBadgeMetadata(in.EventName, in.EventType, in.TicketTier); err != nil {
		return domain.Badge{}, err
	}

	badge := domain.Badge{
		ID:          domain.DeriveBadgeID(in.EventID, in.Recipient),
		Owner:       in.Recipient,
		EventID:     in.EventID,
		EventName:   in.EventName,
		EventType:   in.EventType,
		TicketTier:  in.TicketTier,
		CheckInTime: in.CheckInTime,
	}
	if err := s.repo.CreateBadge(ctx, badge); err != nil {
		return domain.Badge{}, err
	}
	return badge, nil
}

func (s *PassportService) GetBadge(ctx context.Context, eventID string, owner domain.Identity) (domain.Badge, error) {
	if eventID == "" || !owner.Valid() {
		return domain.Badge{}, domain.ErrInvalidID
	}
	return s.repo.GetBadge(ctx, domain.DeriveBadgeID(eventID, owner))
}
