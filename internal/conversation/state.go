// Package conversation drives the multi-turn chat flows: new call, repeat
// call, manager onboarding and bulk import. One flow is active per chat.
package conversation

import (
	"time"

	"crmbot/internal/domain"

	"github.com/google/uuid"
)

// State is the step a chat is waiting on.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingTaxID        State = "awaiting_tax_id"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingContactName  State = "awaiting_contact_name"
	StateAwaitingPhone        State = "awaiting_phone"
	StateAwaitingEmail        State = "awaiting_email"
	StateAwaitingComment      State = "awaiting_comment"
	StateAwaitingNextDate     State = "awaiting_next_date"
	StateAwaitingManagerID    State = "awaiting_manager_id"
	StateAwaitingManagerName  State = "awaiting_manager_name"
	StateAwaitingImportTarget State = "awaiting_import_manager"
	StateAwaitingImportFile   State = "awaiting_import_file"
)

// Flow names the kind of conversation in progress.
type Flow string

const (
	FlowNewCall    Flow = "new_call"
	FlowRepeatCall Flow = "repeat_call"
	FlowAddManager Flow = "add_manager"
	FlowImport     Flow = "import"
)

// Session is the persisted state of one chat. FlowID changes whenever a flow
// starts, so a turn that finished I/O can tell whether its flow is still current.
type Session struct {
	ChatID           int64        `json:"chatId"`
	UserID           int64        `json:"userId"`
	FlowID           uuid.UUID    `json:"flowId"`
	Flow             Flow         `json:"flow"`
	State            State        `json:"state"`
	Draft            domain.Draft `json:"draft"`
	PendingManagerID int64        `json:"pendingManagerId,omitempty"`
	ImportManagerID  int64        `json:"importManagerId,omitempty"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

func newSession(chatID, userID int64, flow Flow, state State, now time.Time) *Session {
	return &Session{
		ChatID:    chatID,
		UserID:    userID,
		FlowID:    uuid.New(),
		Flow:      flow,
		State:     state,
		UpdatedAt: now,
	}
}
