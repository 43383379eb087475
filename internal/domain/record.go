package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnknownCompany is stored when the registry returned no name.
const UnknownCompany = "Не указано"

// SessionKind tells whether a record came from a first contact or a follow-up.
type SessionKind string

const (
	SessionNew    SessionKind = "new"
	SessionRepeat SessionKind = "repeat"
)

// CallRecord is one captured call. It is never edited after it is written;
// a later call on the same company produces a new record.
type CallRecord struct {
	ID              uuid.UUID   `json:"id"`
	OperatorID      int64       `json:"operatorId" validate:"required"`
	Kind            SessionKind `json:"kind" validate:"required,oneof=new repeat"`
	TaxID           string      `json:"taxId" validate:"required,taxid"`
	CompanyName     string      `json:"companyName" validate:"required"`
	ContactName     string      `json:"contactName"`
	ContactPhone    string      `json:"contactPhone"`
	ContactEmail    string      `json:"contactEmail" validate:"omitempty,email"`
	Comment         string      `json:"comment" validate:"required"`
	NextContactDate *time.Time  `json:"nextContactDate,omitempty"`
	CreatedAt       time.Time   `json:"createdAt" validate:"required"`
}

// NextContactLiteral renders the follow-up date, or "" when none is scheduled.
func (r CallRecord) NextContactLiteral() string {
	if r.NextContactDate == nil {
		return ""
	}
	return FormatDate(*r.NextContactDate)
}

// Draft accumulates fields while a conversation is in progress.
type Draft struct {
	Kind            SessionKind      `json:"kind"`
	TaxID           string           `json:"taxId"`
	CompanyName     string           `json:"companyName"`
	ContactName     string           `json:"contactName"`
	ContactPhone    string           `json:"contactPhone"`
	ContactEmail    string           `json:"contactEmail"`
	Comment         string           `json:"comment"`
	NextContactDate *time.Time       `json:"nextContactDate,omitempty"`
	Snapshot        *CompanySnapshot `json:"snapshot,omitempty"`
}

// Finalize turns a draft into an immutable record. The comment is stamped with
// the capture date and a missing company name becomes UnknownCompany. The
// contact email is taken from the draft only; the snapshot email is chosen
// by the caller once it has been validated.
func (d Draft) Finalize(operatorID int64, now time.Time) CallRecord {
	name := d.CompanyName
	if name == "" && d.Snapshot != nil && d.Snapshot.Name != nil {
		name = *d.Snapshot.Name
	}
	if name == "" {
		name = UnknownCompany
	}
	return CallRecord{
		ID:              uuid.New(),
		OperatorID:      operatorID,
		Kind:            d.Kind,
		TaxID:           d.TaxID,
		CompanyName:     name,
		ContactName:     d.ContactName,
		ContactPhone:    d.ContactPhone,
		ContactEmail:    d.ContactEmail,
		Comment:         StampComment(now, d.Comment),
		NextContactDate: d.NextContactDate,
		CreatedAt:       now,
	}
}
