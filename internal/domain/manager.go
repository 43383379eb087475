package domain

import (
	"time"

	"github.com/google/uuid"
)

// Manager is a sales operator with their own ledger.
type Manager struct {
	ID         uuid.UUID
	TelegramID int64
	FullName   string
	LedgerID   string
	Active     bool
	CreatedAt  time.Time
}

// LedgerURL links to the manager's spreadsheet.
func LedgerURL(ledgerID string) string {
	return "https://docs.google.com/spreadsheets/d/" + ledgerID
}

// LedgerTitle is the spreadsheet title given to a new manager ledger.
func LedgerTitle(fullName string) string {
	return "CRM - " + fullName
}
