package domain

import "time"

// CompanySnapshot is the registry profile fetched at capture time.
// Every field is independently optional; nil means the provider did not supply it.
// Financial figures are thousands of rubles, contract and litigation sums are rubles.
type CompanySnapshot struct {
	Name                *string    `json:"name,omitempty"`
	ClassificationCode  *string    `json:"classificationCode,omitempty"`
	ClassificationLabel *string    `json:"classificationLabel,omitempty"`
	Region              *string    `json:"region,omitempty"`
	RegistrationID      *string    `json:"registrationId,omitempty"`
	Email               *string    `json:"email,omitempty"`
	Bankrupt            *bool      `json:"bankrupt,omitempty"`
	RevenueCurrent      *int64     `json:"revenueCurrent,omitempty"`
	RevenuePrior        *int64     `json:"revenuePrior,omitempty"`
	Equity              *int64     `json:"equity,omitempty"`
	FixedAssets         *int64     `json:"fixedAssets,omitempty"`
	Receivables         *int64     `json:"receivables,omitempty"`
	Payables            *int64     `json:"payables,omitempty"`
	GovContractsSum     *int64     `json:"govContractsSum,omitempty"`
	ProcurementLabel    *string    `json:"procurementLabel,omitempty"`
	LitigationOpenCount *int64     `json:"litigationOpenCount,omitempty"`
	LitigationOpenSum   *int64     `json:"litigationOpenSum,omitempty"`
	LitigationLastFiled *time.Time `json:"litigationLastFiled,omitempty"`
}

// IsEmpty reports whether no field is set.
func (s *CompanySnapshot) IsEmpty() bool {
	if s == nil {
		return true
	}
	return *s == CompanySnapshot{}
}

// Merge copies every field of other that is set and still nil on s.
// Sub-fetch results are merged this way so a failed part never clears another.
func (s *CompanySnapshot) Merge(other *CompanySnapshot) {
	if other == nil {
		return
	}
	fillString(&s.Name, other.Name)
	fillString(&s.ClassificationCode, other.ClassificationCode)
	fillString(&s.ClassificationLabel, other.ClassificationLabel)
	fillString(&s.Region, other.Region)
	fillString(&s.RegistrationID, other.RegistrationID)
	fillString(&s.Email, other.Email)
	if s.Bankrupt == nil && other.Bankrupt != nil {
		v := *other.Bankrupt
		s.Bankrupt = &v
	}
	fillInt(&s.RevenueCurrent, other.RevenueCurrent)
	fillInt(&s.RevenuePrior, other.RevenuePrior)
	fillInt(&s.Equity, other.Equity)
	fillInt(&s.FixedAssets, other.FixedAssets)
	fillInt(&s.Receivables, other.Receivables)
	fillInt(&s.Payables, other.Payables)
	fillInt(&s.GovContractsSum, other.GovContractsSum)
	fillString(&s.ProcurementLabel, other.ProcurementLabel)
	fillInt(&s.LitigationOpenCount, other.LitigationOpenCount)
	fillInt(&s.LitigationOpenSum, other.LitigationOpenSum)
	if s.LitigationLastFiled == nil && other.LitigationLastFiled != nil {
		v := *other.LitigationLastFiled
		s.LitigationLastFiled = &v
	}
}

func fillString(dst **string, src *string) {
	if *dst == nil && src != nil && *src != "" {
		v := *src
		*dst = &v
	}
}

func fillInt(dst **int64, src *int64) {
	if *dst == nil && src != nil {
		v := *src
		*dst = &v
	}
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
