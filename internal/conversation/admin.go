package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"crmbot/internal/adapters/storage"
	"crmbot/internal/domain"
	"crmbot/internal/events"
	"crmbot/platform/apperr"
	"crmbot/platform/sanitize"
)

func (m *Machine) startAddManager(ctx context.Context, t *turn) (Reply, error) {
	if !t.isAdmin {
		return Reply{Text: msgAdminOnly}, nil
	}
	if err := m.begin(ctx, t, FlowAddManager, StateAwaitingManagerID); err != nil {
		return Reply{}, err
	}
	return prompt(msgAskManagerID), nil
}

func (m *Machine) onManagerID(ctx context.Context, t *turn) (Reply, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(t.in.Text), 10, 64)
	if t.in.Action != ActionNone || err != nil || id <= 0 {
		return prompt(msgBadManagerID), nil
	}

	_, err = m.deps.Managers.GetByTelegramID(ctx, id)
	switch {
	case err == nil:
		if err := m.finish(ctx, t); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fmt.Sprintf(msgManagerExists, id), Buttons: m.menu(t)}, nil
	case !apperr.Is(err, apperr.KindNotFound):
		return Reply{}, err
	}

	if err := m.advance(ctx, t, func(s *Session) {
		s.PendingManagerID = id
		s.State = StateAwaitingManagerName
	}); err != nil {
		return Reply{}, err
	}
	return prompt(msgAskManagerName), nil
}

// onManagerName provisions the ledger first; a manager without a ledger is
// never stored.
func (m *Machine) onManagerName(ctx context.Context, t *turn) (Reply, error) {
	name := sanitize.Text(t.in.Text)
	if t.in.Action != ActionNone || !atLeastRunes(name, 2) {
		return prompt(msgBadManagerName), nil
	}
	if err := m.finish(ctx, t); err != nil {
		return Reply{}, err
	}

	ledgerID, err := m.deps.Provisioner.CreateLedger(ctx, domain.LedgerTitle(name))
	if err != nil {
		t.log.Error("provision ledger", "manager", name, "error", err)
		return Reply{Text: msgLedgerCreateFail, Buttons: m.menu(t)}, nil
	}

	mgr, err := m.deps.Managers.Create(ctx, domain.Manager{
		TelegramID: t.sess.PendingManagerID,
		FullName:   name,
		LedgerID:   ledgerID,
		Active:     true,
	})
	switch {
	case apperr.Is(err, apperr.KindConflict):
		return Reply{Text: fmt.Sprintf(msgManagerExists, t.sess.PendingManagerID), Buttons: m.menu(t)}, nil
	case err != nil:
		t.log.DatabaseError("create manager", err)
		return Reply{Text: msgManagerSaveFail, Buttons: m.menu(t)}, nil
	}

	m.publish(ctx, events.ManagerOnboarded{
		BaseEvent:  events.NewBaseEvent(),
		ManagerID:  mgr.ID,
		TelegramID: mgr.TelegramID,
		FullName:   mgr.FullName,
		LedgerID:   mgr.LedgerID,
	})
	t.log.Info("manager onboarded", "telegram_id", mgr.TelegramID, "ledger", mgr.LedgerID)
	return Reply{
		Text:    fmt.Sprintf(msgManagerAdded, sanitize.EscapeHTML(mgr.FullName), domain.LedgerURL(mgr.LedgerID)),
		Buttons: m.menu(t),
	}, nil
}

func (m *Machine) startImport(ctx context.Context, t *turn) (Reply, error) {
	if !t.isAdmin {
		return Reply{Text: msgAdminOnly}, nil
	}
	if m.deps.Importer == nil {
		return Reply{Text: fmt.Sprintf(msgImportFailed, "импорт отключён"), Buttons: m.menu(t)}, nil
	}
	managers, err := m.deps.Managers.ListActive(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(managers) == 0 {
		return Reply{Text: msgNoManagers, Buttons: m.menu(t)}, nil
	}
	if err := m.begin(ctx, t, FlowImport, StateAwaitingImportTarget); err != nil {
		return Reply{}, err
	}
	return Reply{Text: msgPickManager, Buttons: managerButtons(managers)}, nil
}

func managerButtons(managers []domain.Manager) [][]Button {
	rows := make([][]Button, 0, len(managers)+1)
	for _, mgr := range managers {
		rows = append(rows, []Button{button(mgr.FullName, ActionPickManager, strconv.FormatInt(mgr.TelegramID, 10))})
	}
	return append(rows, cancelRow())
}

func (m *Machine) onImportTarget(ctx context.Context, t *turn) (Reply, error) {
	retry := func() (Reply, error) {
		managers, err := m.deps.Managers.ListActive(ctx)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: msgBadManagerPick, Buttons: managerButtons(managers)}, nil
	}
	if t.in.Action != ActionPickManager {
		return retry()
	}
	id, err := strconv.ParseInt(t.in.Arg, 10, 64)
	if err != nil {
		return retry()
	}
	mgr, err := m.deps.Managers.GetByTelegramID(ctx, id)
	switch {
	case apperr.Is(err, apperr.KindNotFound), err == nil && !mgr.Active:
		return retry()
	case err != nil:
		return Reply{}, err
	}

	if err := m.advance(ctx, t, func(s *Session) {
		s.ImportManagerID = id
		s.State = StateAwaitingImportFile
	}); err != nil {
		return Reply{}, err
	}
	return prompt(fmt.Sprintf(msgAskImportFile, sanitize.EscapeHTML(mgr.FullName))), nil
}

func (m *Machine) onImportFile(ctx context.Context, t *turn) (Reply, error) {
	doc := t.in.Document
	if doc == nil {
		return prompt(fmt.Sprintf(msgBadImportFile, "Нужен файл")), nil
	}
	if err := storage.ValidateImportFile(doc.FileName, doc.Size); err != nil {
		return prompt(fmt.Sprintf(msgBadImportFile, sanitize.EscapeHTML(err.Error()))), nil
	}

	mgr, err := m.deps.Managers.GetByTelegramID(ctx, t.sess.ImportManagerID)
	if err != nil {
		return Reply{}, err
	}
	if err := m.finish(ctx, t); err != nil {
		return Reply{}, err
	}

	rc, err := doc.Open(ctx)
	if err != nil {
		t.log.Error("download import file", "file", doc.FileName, "error", err)
		return Reply{Text: fmt.Sprintf(msgImportFailed, "файл недоступен"), Buttons: m.menu(t)}, nil
	}
	defer rc.Close()

	report, err := m.deps.Importer.Import(ctx, mgr, doc.FileName, rc)
	if err != nil {
		return Reply{Text: fmt.Sprintf(msgImportFailed, sanitize.EscapeHTML(err.Error())), Buttons: m.menu(t)}, nil
	}
	return Reply{Text: importReportText(report), Buttons: m.menu(t)}, nil
}
