package confirmation

import (
	"context"
	"fmt"
	"steamcommunity/internal/events"
)

type Type int

const (
	TypeGeneric       Type = 1
	TypeTrade         Type = 2
	TypeMarketListing Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeGeneric:
		return "generic"
	case TypeTrade:
		return "trade"
	case TypeMarketListing:
		return "market-listing"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Confirmation is one pending approval as listed by the mobile confirmation page.
type Confirmation struct {
	ID   string
	Type Type
	// Creator is the id of the trade offer or market listing behind the
	// confirmation.
	Creator uint64
	// Key is the per confirmation nonce sent back as "ck".
	Key       string
	Title     string
	Receiving string
	Time      string
	Icon      string
}

// Key is a time-stepped key for one tag.
type Key struct {
	Tag  Tag
	Time int64
	Key  string
}

// KeyProvider supplies keys when the manager has no identity secret.
type KeyProvider func(ctx context.Context, tag Tag) (Key, error)

type NewConfirmationEvent struct {
	Confirmation Confirmation
}

type ConfirmationAcceptedEvent struct {
	Confirmation Confirmation
}

// KeyNeededEvent asks a subscriber for a key. Exactly one call to Provide is
// honored, later calls are ignored.
type KeyNeededEvent struct {
	Tag     Tag
	Provide func(time int64, key string, err error)
}

type DebugEvent struct {
	Message string
}

type Events struct {
	NewConfirmation      events.Topic[NewConfirmationEvent]
	ConfirmationAccepted events.Topic[ConfirmationAcceptedEvent]
	KeyNeeded            events.Topic[KeyNeededEvent]
	Debug                events.Topic[DebugEvent]
}
