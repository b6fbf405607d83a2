// Copyright (c) 2026 BVK Chaitanya

package gobs

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the saved state of a protected altcoin position.
type PositionState struct {
	Exchange string
	Account  string
	AltCoin  string

	BoughtPrice         decimal.Decimal
	ReferencePrice      decimal.Decimal
	TSSLActivationPrice decimal.Decimal

	Verified       bool
	VerifyAttempts int

	CreatedAt   time.Time
	LastChecked time.Time
}

// TelegramState holds the chat ids of the users who have talked to the bot.
type TelegramState struct {
	UserChatIDMap map[string]int64
}

// SignalState remembers the mail signals processed already so that restarts
// do not replay the same signals.
type SignalState struct {
	// MessageIDs maps processed message ids to their receive time. Entries
	// older than the maximum mail age are pruned.
	MessageIDs map[string]time.Time

	LastPollAt time.Time
}

// KeyValue is a single database item in a backup file.
type KeyValue struct {
	Key   string
	Value []byte
}
