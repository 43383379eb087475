// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"crmbot/internal/domain"
	"crmbot/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Call Domain Events
// =============================================================================

// CallCaptured is published once per completed conversation or imported row.
type CallCaptured struct {
	BaseEvent
	Record       domain.CallRecord `json:"record"`
	ChatID       int64             `json:"chatId"`
	OperatorName string            `json:"operatorName"`
	Source       string            `json:"source"` // "chat", "import"
	Synced       bool              `json:"synced"`
}

func (e CallCaptured) EventName() string { return "calls.captured" }

// =============================================================================
// Manager Domain Events
// =============================================================================

// ManagerOnboarded is published when an admin registers a new operator.
type ManagerOnboarded struct {
	BaseEvent
	ManagerID  uuid.UUID `json:"managerId"`
	TelegramID int64     `json:"telegramId"`
	FullName   string    `json:"fullName"`
	LedgerID   string    `json:"ledgerId"`
}

func (e ManagerOnboarded) EventName() string { return "managers.onboarded" }

// =============================================================================
// Import Domain Events
// =============================================================================

// ImportCompleted is published after a bulk import finishes.
type ImportCompleted struct {
	BaseEvent
	TelegramID int64  `json:"telegramId"`
	FileName   string `json:"fileName"`
	Imported   int    `json:"imported"`
	Failed     int    `json:"failed"`
	ArchiveKey string `json:"archiveKey,omitempty"`
}

func (e ImportCompleted) EventName() string { return "imports.completed" }
