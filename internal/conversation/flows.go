package conversation

import (
	"context"
	"fmt"
	"strings"

	"crmbot/internal/domain"
	"crmbot/internal/enrichment/service"
	"crmbot/internal/events"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/platform/apperr"
	"crmbot/platform/phone"
	"crmbot/platform/sanitize"
)

func (m *Machine) startCall(ctx context.Context, t *turn, flow Flow) (Reply, error) {
	if t.manager == nil {
		return Reply{Text: msgNotManager}, nil
	}
	if err := m.begin(ctx, t, flow, StateAwaitingTaxID); err != nil {
		return Reply{}, err
	}
	return prompt(msgAskTaxID), nil
}

func (m *Machine) onTaxID(ctx context.Context, t *turn) (Reply, error) {
	taxID, ok := domain.ParseTaxID(t.in.Text)
	if t.in.Action != ActionNone || !ok {
		t.log.Debug("rejected tax id", "input", t.in.Text)
		return prompt(msgBadTaxID), nil
	}
	if t.sess.Flow == FlowRepeatCall {
		return m.lookupPriorCall(ctx, t, taxID)
	}

	var result service.Result
	if m.deps.Enricher != nil {
		result = m.deps.Enricher.Fetch(ctx, taxID)
	}
	if err := m.advance(ctx, t, func(s *Session) {
		s.Draft = domain.Draft{Kind: domain.SessionNew, TaxID: taxID, Snapshot: result.Snapshot}
		if result.Snapshot != nil && result.Snapshot.Name != nil {
			s.Draft.CompanyName = *result.Snapshot.Name
		}
		s.State = StateAwaitingConfirmation
	}); err != nil {
		return Reply{}, err
	}

	text := companyCard(taxID, result.Snapshot)
	switch {
	case result.Snapshot == nil:
		text += "\n\n" + msgCompanyNotFound
	case result.Status == service.StatusPartial:
		text += "\n\n" + msgEnrichmentPartial
	}
	return confirmPrompt(text + "\n\n" + msgConfirmCompany), nil
}

func (m *Machine) lookupPriorCall(ctx context.Context, t *turn, taxID string) (Reply, error) {
	prior, err := m.deps.Calls.Latest(ctx, t.manager.TelegramID, taxID)
	found := err == nil
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		t.log.DatabaseError("latest call", err)
	}

	if err := m.advance(ctx, t, func(s *Session) {
		s.Draft = domain.Draft{Kind: domain.SessionRepeat, TaxID: taxID}
		if found {
			s.Draft.CompanyName = prior.CompanyName
			s.Draft.ContactName = prior.ContactName
			s.Draft.ContactPhone = prior.ContactPhone
			s.Draft.ContactEmail = prior.ContactEmail
		}
		s.State = StateAwaitingComment
	}); err != nil {
		return Reply{}, err
	}

	if !found {
		return prompt(msgNoPriorCall + "\n\n" + msgAskComment), nil
	}
	return prompt(priorCallSummary(prior) + "\n\n" + msgAskComment), nil
}

func (m *Machine) onConfirmation(ctx context.Context, t *turn) (Reply, error) {
	switch t.in.Action {
	case ActionConfirm:
		if err := m.advance(ctx, t, func(s *Session) { s.State = StateAwaitingContactName }); err != nil {
			return Reply{}, err
		}
		return prompt(msgAskContactName), nil
	case ActionReject:
		if err := m.advance(ctx, t, func(s *Session) {
			s.Draft = domain.Draft{Kind: s.Draft.Kind}
			s.State = StateAwaitingTaxID
		}); err != nil {
			return Reply{}, err
		}
		return prompt(msgAskTaxID), nil
	}
	return confirmPrompt(msgUseButtons + "\n" + msgConfirmCompany), nil
}

func (m *Machine) onContactName(ctx context.Context, t *turn) (Reply, error) {
	name := sanitize.Text(t.in.Text)
	if t.in.Action != ActionNone || !atLeastRunes(name, 2) {
		return prompt(msgBadContactName), nil
	}
	if err := m.advance(ctx, t, func(s *Session) {
		s.Draft.ContactName = name
		s.State = StateAwaitingPhone
	}); err != nil {
		return Reply{}, err
	}
	return skippablePrompt(msgAskPhone), nil
}

func (m *Machine) onPhone(ctx context.Context, t *turn) (Reply, error) {
	var number string
	switch t.in.Action {
	case ActionSkip:
	case ActionNone:
		number = phone.NormalizeE164(sanitize.Text(t.in.Text))
	default:
		return skippablePrompt(msgAskPhone), nil
	}

	known := m.snapshotEmail(t.sess.Draft.Snapshot)
	needEmail := known == ""
	if err := m.advance(ctx, t, func(s *Session) {
		s.Draft.ContactPhone = number
		s.Draft.ContactEmail = known
		s.State = StateAwaitingComment
		if needEmail {
			s.State = StateAwaitingEmail
		}
	}); err != nil {
		return Reply{}, err
	}
	if needEmail {
		return skippablePrompt(msgAskEmail), nil
	}
	return prompt(msgAskComment), nil
}

// snapshotEmail returns the registry email when it is a single valid address.
// Anything else sends the operator to the email step.
func (m *Machine) snapshotEmail(snap *domain.CompanySnapshot) string {
	if snap == nil || snap.Email == nil {
		return ""
	}
	email := strings.TrimSpace(*snap.Email)
	if m.deps.Validator.Var(email, "required,email") != nil {
		return ""
	}
	return email
}

func (m *Machine) onEmail(ctx context.Context, t *turn) (Reply, error) {
	var email string
	switch t.in.Action {
	case ActionSkip:
	case ActionNone:
		email = strings.TrimSpace(t.in.Text)
		if err := m.deps.Validator.Var(email, "required,email"); err != nil {
			return skippablePrompt(msgBadEmail), nil
		}
	default:
		return skippablePrompt(msgAskEmail), nil
	}
	if err := m.advance(ctx, t, func(s *Session) {
		s.Draft.ContactEmail = email
		s.State = StateAwaitingComment
	}); err != nil {
		return Reply{}, err
	}
	return prompt(msgAskComment), nil
}

func (m *Machine) onComment(ctx context.Context, t *turn) (Reply, error) {
	comment := sanitize.Text(t.in.Text)
	if t.in.Action != ActionNone || comment == "" {
		return prompt(msgEmptyComment), nil
	}
	if err := m.advance(ctx, t, func(s *Session) {
		s.Draft.Comment = comment
		s.State = StateAwaitingNextDate
	}); err != nil {
		return Reply{}, err
	}
	return skippablePrompt(msgAskNextDate), nil
}

func (m *Machine) onNextDate(ctx context.Context, t *turn) (Reply, error) {
	switch t.in.Action {
	case ActionSkip:
		t.sess.Draft.NextContactDate = nil
	case ActionNone:
		d, err := domain.ParseDate(t.in.Text)
		if err != nil {
			return skippablePrompt(msgBadNextDate), nil
		}
		t.sess.Draft.NextContactDate = &d
	default:
		return skippablePrompt(msgAskNextDate), nil
	}
	return m.completeCall(ctx, t)
}

// completeCall emits the record: one write-behind save, one upsert per ledger.
// Ledger failures are reported but the capture itself stands.
func (m *Machine) completeCall(ctx context.Context, t *turn) (Reply, error) {
	now := m.deps.Now().In(m.deps.Location)
	rec := t.sess.Draft.Finalize(t.manager.TelegramID, now)
	if err := m.deps.Validator.Struct(rec); err != nil {
		return Reply{}, fmt.Errorf("finalized record invalid: %w", err)
	}

	if err := m.finish(ctx, t); err != nil {
		return Reply{}, err
	}

	if err := m.deps.Calls.Save(ctx, rec); err != nil {
		t.log.DatabaseError("save call", err)
	}
	out := m.deps.Syncer.Upsert(ctx, ledgersync.Target{
		OperatorLedgerID: t.manager.LedgerID,
		OperatorName:     t.manager.FullName,
	}, rec, t.sess.Draft.Snapshot)

	m.publish(ctx, events.CallCaptured{
		BaseEvent:    events.NewBaseEvent(),
		Record:       rec,
		ChatID:       t.in.ChatID,
		OperatorName: t.manager.FullName,
		Source:       "chat",
		Synced:       out.OK(),
	})

	var b strings.Builder
	fmt.Fprintf(&b, msgCallSaved, sanitize.EscapeHTML(rec.CompanyName), rec.TaxID)
	if lit := rec.NextContactLiteral(); lit != "" {
		b.WriteString("\n" + fmt.Sprintf(msgNextContact, lit))
	}
	if !out.Operator.OK() {
		b.WriteString("\n" + msgLedgerFailed)
	}
	if !out.Aggregate.OK() {
		b.WriteString("\n" + msgAggregateFailed)
	}
	return Reply{Text: b.String(), Buttons: m.menu(t)}, nil
}
