package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"crmbot/internal/domain"
	"crmbot/internal/enrichment/service"
	"crmbot/internal/events"
	"crmbot/internal/importer"
	"crmbot/internal/ledger/agenda"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/platform/apperr"
	"crmbot/platform/logger"
	"crmbot/platform/validator"
)

// Managers is the operator directory. GetByTelegramID returns a KindNotFound
// error for unknown users.
type Managers interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (domain.Manager, error)
	ListActive(ctx context.Context) ([]domain.Manager, error)
	Create(ctx context.Context, m domain.Manager) (domain.Manager, error)
}

// CallLog is the write-behind store of captured records. Latest returns a
// KindNotFound error when the operator never called the company.
type CallLog interface {
	Save(ctx context.Context, rec domain.CallRecord) error
	Latest(ctx context.Context, operatorID int64, taxID string) (domain.CallRecord, error)
}

type Enricher interface {
	Fetch(ctx context.Context, taxID string) service.Result
}

type Syncer interface {
	Upsert(ctx context.Context, t ledgersync.Target, rec domain.CallRecord, snap *domain.CompanySnapshot) ledgersync.Outcome
}

// LedgerProvisioner creates a spreadsheet with the current header layout.
type LedgerProvisioner interface {
	CreateLedger(ctx context.Context, title string) (string, error)
}

type Importer interface {
	Import(ctx context.Context, m domain.Manager, fileName string, r io.Reader) (importer.Report, error)
}

type Agenda interface {
	Due(ctx context.Context, ledgerID string, day time.Time) ([]agenda.Entry, error)
}

// Deps are the collaborators of a Machine. Enricher, Importer, Agenda and
// Bus may be nil; the matching features are then disabled.
type Deps struct {
	Managers    Managers
	Calls       CallLog
	Enricher    Enricher
	Syncer      Syncer
	Provisioner LedgerProvisioner
	Importer    Importer
	Agenda      Agenda
	Bus         events.Bus
	Validator   *validator.Validator
	Log         *logger.Logger
	Location    *time.Location
	Now         func() time.Time
	Admins      []int64
}

// Machine runs conversations. Turns of one chat are serialized; turns of
// different chats run concurrently.
type Machine struct {
	deps   Deps
	store  Store
	admins map[int64]bool

	mu    sync.Mutex
	chats map[int64]*chatLocks
}

// chatLocks: turn serializes whole turns of one chat, commit guards the
// short load-check-store sections. Cancel takes only commit, so it is never
// stuck behind a turn waiting on the network.
type chatLocks struct {
	turn   sync.Mutex
	commit sync.Mutex
}

// errFlowChanged means the flow was cancelled or replaced while a turn was
// waiting on I/O. The turn's result is discarded.
var errFlowChanged = errors.New("conversation: flow changed during turn")

// New creates a Machine.
func New(deps Deps, store Store) *Machine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	admins := make(map[int64]bool, len(deps.Admins))
	for _, id := range deps.Admins {
		admins[id] = true
	}
	return &Machine{
		deps:   deps,
		store:  store,
		admins: admins,
		chats:  make(map[int64]*chatLocks),
	}
}

func (m *Machine) locks(chatID int64) *chatLocks {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.chats[chatID]
	if !ok {
		l = &chatLocks{}
		m.chats[chatID] = l
	}
	return l
}

// turn carries what one Handle call knows about the caller.
type turn struct {
	in        Input
	log       *logger.Logger
	manager   *domain.Manager
	isAdmin   bool
	sess      *Session
	chatLocks *chatLocks
}

// Handle processes one inbound update and returns the reply to send.
func (m *Machine) Handle(ctx context.Context, in Input) Reply {
	ctx = context.WithValue(ctx, logger.ChatIDKey, in.ChatID)
	t := &turn{in: in, log: m.deps.Log.WithContext(ctx), chatLocks: m.locks(in.ChatID)}

	if in.Action == ActionWhoAmI {
		return Reply{Text: fmt.Sprintf(msgWhoAmI, in.UserID)}
	}

	if err := m.identify(ctx, t); err != nil {
		t.log.Error("identify user", "user_id", in.UserID, "error", err)
		return Reply{Text: msgInternal}
	}
	if t.manager == nil && !t.isAdmin {
		return Reply{Text: fmt.Sprintf(msgAccessDenied, in.UserID)}
	}

	if in.Action == ActionCancel {
		return m.cancel(ctx, t)
	}

	t.chatLocks.turn.Lock()
	defer t.chatLocks.turn.Unlock()

	reply, err := m.dispatch(ctx, t)
	switch {
	case errors.Is(err, errFlowChanged):
		t.log.Debug("turn discarded after flow change")
		return Reply{}
	case err != nil:
		t.log.Error("conversation turn failed", "state", stateOf(t.sess), "error", err)
		return Reply{Text: msgInternal, Buttons: m.menu(t)}
	}
	return reply
}

func (m *Machine) identify(ctx context.Context, t *turn) error {
	t.isAdmin = m.admins[t.in.UserID]
	mgr, err := m.deps.Managers.GetByTelegramID(ctx, t.in.UserID)
	switch {
	case err == nil && mgr.Active:
		t.manager = &mgr
		t.log = t.log.WithOperator(mgr.FullName)
	case err == nil, apperr.Is(err, apperr.KindNotFound):
	default:
		return err
	}
	return nil
}

func (m *Machine) cancel(ctx context.Context, t *turn) Reply {
	t.chatLocks.commit.Lock()
	defer t.chatLocks.commit.Unlock()
	if err := m.store.Delete(ctx, t.in.ChatID); err != nil {
		t.log.Error("delete session", "error", err)
	}
	return Reply{Text: msgCancelled, Buttons: m.menu(t)}
}

func (m *Machine) dispatch(ctx context.Context, t *turn) (Reply, error) {
	switch t.in.Action {
	case ActionMenu:
		if err := m.clear(ctx, t); err != nil {
			return Reply{}, err
		}
		return Reply{Text: msgNoFlow, Buttons: m.menu(t)}, nil
	case ActionNewCall:
		return m.startCall(ctx, t, FlowNewCall)
	case ActionRepeatCall:
		return m.startCall(ctx, t, FlowRepeatCall)
	case ActionToday:
		return m.today(ctx, t)
	case ActionLedger:
		if t.manager == nil {
			return Reply{Text: msgNotManager}, nil
		}
		return Reply{Text: fmt.Sprintf(msgYourLedger, domain.LedgerURL(t.manager.LedgerID)), Buttons: m.menu(t)}, nil
	case ActionAddManager:
		return m.startAddManager(ctx, t)
	case ActionImport:
		return m.startImport(ctx, t)
	}

	sess, err := m.store.Get(ctx, t.in.ChatID)
	if err != nil {
		return Reply{}, err
	}
	if sess == nil || sess.State == StateIdle {
		return Reply{Text: msgNoFlow, Buttons: m.menu(t)}, nil
	}
	t.sess = sess

	switch sess.State {
	case StateAwaitingTaxID:
		return m.onTaxID(ctx, t)
	case StateAwaitingConfirmation:
		return m.onConfirmation(ctx, t)
	case StateAwaitingContactName:
		return m.onContactName(ctx, t)
	case StateAwaitingPhone:
		return m.onPhone(ctx, t)
	case StateAwaitingEmail:
		return m.onEmail(ctx, t)
	case StateAwaitingComment:
		return m.onComment(ctx, t)
	case StateAwaitingNextDate:
		return m.onNextDate(ctx, t)
	case StateAwaitingManagerID:
		return m.onManagerID(ctx, t)
	case StateAwaitingManagerName:
		return m.onManagerName(ctx, t)
	case StateAwaitingImportTarget:
		return m.onImportTarget(ctx, t)
	case StateAwaitingImportFile:
		return m.onImportFile(ctx, t)
	}
	t.log.Warn("unknown session state, resetting", "state", sess.State)
	return Reply{Text: msgNoFlow, Buttons: m.menu(t)}, m.clear(ctx, t)
}

// begin replaces whatever flow the chat had with a fresh one.
func (m *Machine) begin(ctx context.Context, t *turn, flow Flow, state State) error {
	sess := newSession(t.in.ChatID, t.in.UserID, flow, state, m.deps.Now())
	t.chatLocks.commit.Lock()
	defer t.chatLocks.commit.Unlock()
	if err := m.store.Put(ctx, sess); err != nil {
		return err
	}
	t.sess = sess
	return nil
}

// advance stores the session if its flow is still the current one.
func (m *Machine) advance(ctx context.Context, t *turn, mutate func(*Session)) error {
	t.chatLocks.commit.Lock()
	defer t.chatLocks.commit.Unlock()
	current, err := m.store.Get(ctx, t.in.ChatID)
	if err != nil {
		return err
	}
	if current == nil || current.FlowID != t.sess.FlowID {
		return errFlowChanged
	}
	mutate(t.sess)
	t.sess.UpdatedAt = m.deps.Now()
	return m.store.Put(ctx, t.sess)
}

// finish ends the flow if it is still current. Work done after finish can no
// longer be cancelled.
func (m *Machine) finish(ctx context.Context, t *turn) error {
	t.chatLocks.commit.Lock()
	defer t.chatLocks.commit.Unlock()
	current, err := m.store.Get(ctx, t.in.ChatID)
	if err != nil {
		return err
	}
	if current == nil || current.FlowID != t.sess.FlowID {
		return errFlowChanged
	}
	return m.store.Delete(ctx, t.in.ChatID)
}

func (m *Machine) clear(ctx context.Context, t *turn) error {
	t.chatLocks.commit.Lock()
	defer t.chatLocks.commit.Unlock()
	return m.store.Delete(ctx, t.in.ChatID)
}

func (m *Machine) menu(t *turn) [][]Button {
	return mainMenu(t.manager != nil, t.isAdmin)
}

func (m *Machine) today(ctx context.Context, t *turn) (Reply, error) {
	if t.manager == nil {
		return Reply{Text: msgNotManager}, nil
	}
	if m.deps.Agenda == nil {
		return Reply{Text: msgNothingToday, Buttons: m.menu(t)}, nil
	}
	entries, err := m.deps.Agenda.Due(ctx, t.manager.LedgerID, m.deps.Now().In(m.deps.Location))
	if err != nil {
		t.log.Error("read agenda", "ledger", t.manager.LedgerID, "error", err)
		return Reply{Text: msgAgendaFailed, Buttons: m.menu(t)}, nil
	}
	return Reply{Text: agendaText(entries), Buttons: m.menu(t)}, nil
}

func (m *Machine) publish(ctx context.Context, e events.Event) {
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(ctx, e)
	}
}

func stateOf(s *Session) State {
	if s == nil {
		return StateIdle
	}
	return s.State
}

func atLeastRunes(s string, n int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= n
}
