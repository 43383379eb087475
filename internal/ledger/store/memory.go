package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend keeps ledgers in process memory. It backs LEDGER_BACKEND=memory
// and the tests of everything above the store.
type MemoryBackend struct {
	mu      sync.RWMutex
	ledgers map[string]*memoryLedger
}

type memoryLedger struct {
	title     string
	rows      [][]string
	format    Format
	mutations int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{ledgers: make(map[string]*memoryLedger)}
}

// AddLedger registers an empty ledger under id.
func (m *MemoryBackend) AddLedger(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ledgers[id]; !ok {
		m.ledgers[id] = &memoryLedger{}
	}
}

// Seed replaces the content of ledger id with rows, header included.
func (m *MemoryBackend) Seed(id string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([][]string, len(rows))
	for i, r := range rows {
		copied[i] = append([]string(nil), r...)
	}
	m.ledgers[id] = &memoryLedger{rows: copied}
}

// Snapshot returns a copy of every row of ledger id, header included.
func (m *MemoryBackend) Snapshot(id string) [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.ledgers[id]
	if !ok {
		return nil
	}
	out := make([][]string, len(l.rows))
	for i, r := range l.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Mutations counts write calls made against ledger id.
func (m *MemoryBackend) Mutations(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.ledgers[id]; ok {
		return l.mutations
	}
	return 0
}

// FormatOf returns the last format applied to ledger id.
func (m *MemoryBackend) FormatOf(id string) Format {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.ledgers[id]; ok {
		return l.format
	}
	return Format{}
}

func (m *MemoryBackend) ReadRange(_ context.Context, ledgerID string, r Range) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, err := m.ledger(ledgerID)
	if err != nil {
		return nil, err
	}

	last := len(l.rows)
	if r.ToRow > 0 && r.ToRow < last {
		last = r.ToRow
	}
	var out [][]string
	for row := r.FromRow; row <= last; row++ {
		src := l.rows[row-1]
		var cells []string
		for col := r.FromCol; col <= r.ToCol && col < len(src); col++ {
			cells = append(cells, src[col])
		}
		out = append(out, trimTrailing(cells))
	}
	return trimTrailingRows(out), nil
}

func (m *MemoryBackend) WriteRows(_ context.Context, ledgerID string, fromRow int, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(ledgerID)
	if err != nil {
		return err
	}
	for i, r := range rows {
		idx := fromRow - 1 + i
		for len(l.rows) <= idx {
			l.rows = append(l.rows, nil)
		}
		l.rows[idx] = mergeCells(l.rows[idx], 0, r)
	}
	l.mutations++
	return nil
}

func (m *MemoryBackend) AppendRow(_ context.Context, ledgerID string, row []any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(ledgerID)
	if err != nil {
		return 0, err
	}
	l.rows = trimTrailingRows(l.rows)
	l.rows = append(l.rows, mergeCells(nil, 0, row))
	l.mutations++
	return len(l.rows), nil
}

func (m *MemoryBackend) BatchWrite(_ context.Context, ledgerID string, updates []CellUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(ledgerID)
	if err != nil {
		return err
	}
	for _, u := range updates {
		for len(l.rows) < u.Row {
			l.rows = append(l.rows, nil)
		}
		l.rows[u.Row-1] = mergeCells(l.rows[u.Row-1], u.Col, []any{u.Value})
	}
	l.mutations++
	return nil
}

func (m *MemoryBackend) ApplyFormat(_ context.Context, ledgerID string, f Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.ledger(ledgerID)
	if err != nil {
		return err
	}
	l.format = f
	l.mutations++
	return nil
}

func (m *MemoryBackend) Create(_ context.Context, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.ledgers[id] = &memoryLedger{title: title}
	return id, nil
}

func (m *MemoryBackend) ledger(id string) (*memoryLedger, error) {
	l, ok := m.ledgers[id]
	if !ok {
		return nil, fmt.Errorf("ledger %q not found", id)
	}
	return l, nil
}

func mergeCells(dst []string, at int, values []any) []string {
	for len(dst) < at+len(values) {
		dst = append(dst, "")
	}
	for i, v := range values {
		dst[at+i] = cellString(v)
	}
	return dst
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(t)
	}
}

// Sheets omits trailing empty cells and rows; the memory backend mirrors that.
func trimTrailing(cells []string) []string {
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

func trimTrailingRows(rows [][]string) [][]string {
	for len(rows) > 0 && len(trimTrailing(append([]string(nil), rows[len(rows)-1]...))) == 0 {
		rows = rows[:len(rows)-1]
	}
	return rows
}
