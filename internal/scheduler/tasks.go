package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TaskFollowUpReminder = "calls.followup_reminder"

type FollowUpReminderPayload struct {
	OperatorID  int64  `json:"operatorId"`
	ChatID      int64  `json:"chatId"`
	LedgerID    string `json:"ledgerId"`
	TaxID       string `json:"taxId"`
	CompanyName string `json:"companyName"`
	ContactName string `json:"contactName,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DueDate     string `json:"dueDate"` // DD.MM.YY
}

// TaskID makes repeated captures of the same follow-up enqueue one task.
func (p FollowUpReminderPayload) TaskID() string {
	return fmt.Sprintf("followup:%d:%s:%s", p.OperatorID, p.TaxID, p.DueDate)
}

func NewFollowUpReminderTask(payload FollowUpReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpReminder, data), nil
}

func ParseFollowUpReminderPayload(task *asynq.Task) (FollowUpReminderPayload, error) {
	var payload FollowUpReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpReminderPayload{}, err
	}
	return payload, nil
}
