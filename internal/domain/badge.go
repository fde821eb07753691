package domain

import "time"

const (
	maxBadgeEventNameLen = 100
	maxBadgeTierLen      = 50
)

type EventType string

const (
	EventTypeMusic      EventType = "music"
	EventTypeSports     EventType = "sports"
	EventTypeConference EventType = "conference"
	EventTypeFestival   EventType = "festival"
	EventTypeOther      EventType = "other"
)

func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventTypeMusic, EventTypeSports, EventTypeConference, EventTypeFestival, EventTypeOther:
		return t, nil
	}
	return "", ErrInvalidEventType
}

// Badge is a non-transferable attendance record, one per (event, owner).
type Badge struct {
	ID          string
	Owner       Identity
	EventID     string
	EventName   string
	EventType   EventType
	TicketTier  string
	CheckInTime time.Time
}

// ValidateBadgeMetadata bounds the denormalized event fields copied onto a
// badge.
func ValidateBadgeMetadata(name string, eventType EventType, tier string) error {
	if name == "" || len(name) > maxBadgeEventNameLen || len(tier) > maxBadgeTierLen {
		return ErrInvalidBadgeMetadata
	}
	if _, err := ParseEventType(string(eventType)); err != nil {
		return err
	}
	return nil
}
