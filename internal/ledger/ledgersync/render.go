package ledgersync

import (
	"strconv"
	"strings"

	"crmbot/internal/domain"
	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
)

// HistorySeparator sits between history entries, newest entry first.
const HistorySeparator = "\n---\n"

// MergeHistory prepends entry to existing. An empty entry, or one equal to the
// current newest entry, leaves the history unchanged so replays never stack.
func MergeHistory(existing, entry string) string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return entry
	}
	if HeadEntry(existing) == entry {
		return existing
	}
	return entry + HistorySeparator + existing
}

// HeadEntry returns the newest history entry.
func HeadEntry(history string) string {
	head, _, _ := strings.Cut(history, HistorySeparator)
	return strings.TrimSpace(head)
}

// TagOperator marks an aggregated-ledger entry with the operator's name.
func TagOperator(name, comment string) string {
	if name == "" || comment == "" {
		return comment
	}
	return "[" + name + "] " + comment
}

// RenderRecord maps a record and its snapshot onto every operator-ledger field.
// Fields the snapshot lacks render as "" so the row is always complete.
func RenderRecord(rec domain.CallRecord, snap *domain.CompanySnapshot) store.Values {
	v := store.Values{
		schema.CompanyName:      rec.CompanyName,
		schema.TaxID:            rec.TaxID,
		schema.ContactName:      rec.ContactName,
		schema.ContactPhone:     rec.ContactPhone,
		schema.NextContactDate:  rec.NextContactLiteral(),
		schema.History:          rec.Comment,
		schema.ContactEmail:     rec.ContactEmail,
		schema.FirstContactDate: domain.FormatDate(rec.CreatedAt),
	}
	for f, val := range RenderSnapshot(snap) {
		v[f] = val
	}
	if v[schema.CompanyName] == "" {
		v[schema.CompanyName] = domain.UnknownCompany
	}
	return v
}

// RenderSnapshot renders every enrichment field, absent ones as "".
func RenderSnapshot(snap *domain.CompanySnapshot) store.Values {
	if snap == nil {
		snap = &domain.CompanySnapshot{}
	}
	return store.Values{
		schema.RevenueCurrent:       intCell(snap.RevenueCurrent),
		schema.RevenuePrior:         intCell(snap.RevenuePrior),
		schema.Equity:               intCell(snap.Equity),
		schema.FixedAssets:          intCell(snap.FixedAssets),
		schema.Receivables:          intCell(snap.Receivables),
		schema.Payables:             intCell(snap.Payables),
		schema.GovContractsSum:      intCell(snap.GovContractsSum),
		schema.ProcurementLabel:     strCell(snap.ProcurementLabel),
		schema.Region:               strCell(snap.Region),
		schema.ClassificationCode:   strCell(snap.ClassificationCode),
		schema.ClassificationLabel:  strCell(snap.ClassificationLabel),
		schema.LitigationOpenCount:  intCell(snap.LitigationOpenCount),
		schema.LitigationOpenSum:    intCell(snap.LitigationOpenSum),
		schema.LitigationLastFiling: dateCell(snap),
		schema.Bankruptcy:           boolCell(snap.Bankrupt),
		schema.RegistrationID:       strCell(snap.RegistrationID),
	}
}

// refreshValues keeps only the enrichment fields the provider actually supplied.
func refreshValues(s *schema.Schema, snap *domain.CompanySnapshot) store.Values {
	all := RenderSnapshot(snap)
	out := store.Values{}
	for _, f := range s.EnrichmentFields() {
		if v := all[f]; v != "" {
			out[f] = v
		}
	}
	return out
}

func intCell(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func strCell(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func boolCell(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "да"
	default:
		return "нет"
	}
}

func dateCell(snap *domain.CompanySnapshot) string {
	if snap.LitigationLastFiled == nil {
		return ""
	}
	return domain.FormatDate(*snap.LitigationLastFiled)
}
