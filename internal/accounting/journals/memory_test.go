package journals

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
)

// memoryRepo layers journals, accounts and cost centres over the shared in-memory ledger.
type memoryRepo struct {
	*ledgertest.Ledger
	journals    map[int64]Journal
	accounts    map[int64]accounts.Account
	centers     map[int64]bool
	nextJournal int64
	nextLine    int64
}

func newMemoryRepo() *memoryRepo {
	m := &memoryRepo{
		Ledger:   ledgertest.New(),
		journals: map[int64]Journal{},
		accounts: map[int64]accounts.Account{},
		centers:  map[int64]bool{},
	}
	m.Ledger.History = m.history
	m.Ledger.Unposted = m.unposted
	return m
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.Ledger.Tx(func() error {
		saved := make(map[int64]Journal, len(m.journals))
		for k, v := range m.journals {
			saved[k] = v
		}
		nextJournal, nextLine := m.nextJournal, m.nextLine
		if err := fn(ctx, m); err != nil {
			m.journals, m.nextJournal, m.nextLine = saved, nextJournal, nextLine
			return err
		}
		return nil
	})
}

func (m *memoryRepo) addAccount(id int64, code string, typ accounts.AccountType) {
	m.accounts[id] = accounts.Account{ID: id, CompanyID: 1, Code: code, Name: code, Type: typ, IsActive: true}
}

func (m *memoryRepo) history(companyID int64) []balances.HistoryLine {
	var ids []int64
	for id, j := range m.journals {
		if j.CompanyID == companyID && (j.Status == StatusPosted || j.Status == StatusVoided) && j.DeletedAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })
	var out []balances.HistoryLine
	for _, id := range ids {
		j := m.journals[id]
		for _, l := range j.Lines {
			out = append(out, balances.HistoryLine{
				Movement: balances.Movement{AccountID: l.AccountID, BranchID: j.BranchID, Debit: l.Debit, Credit: l.Credit},
				PeriodID: j.PeriodID,
			})
		}
	}
	return out
}

func (m *memoryRepo) unposted(companyID, _ int64, start, end time.Time) int {
	n := 0
	for _, j := range m.journals {
		if j.CompanyID != companyID || j.DeletedAt != nil {
			continue
		}
		if (j.Status == StatusDraft || j.Status == StatusPending) && !j.TransactionDate.Before(start) && !j.TransactionDate.After(end) {
			n++
		}
	}
	return n
}

func (m *memoryRepo) GetAccounts(_ context.Context, companyID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := map[int64]accounts.Account{}
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok && a.CompanyID == companyID {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memoryRepo) CountCostCenters(_ context.Context, _ int64, ids []int64) (int, error) {
	n := 0
	for _, id := range ids {
		if m.centers[id] {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) assignLines(journalID int64, lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		m.nextLine++
		l.ID = m.nextLine
		l.JournalID = journalID
		out[i] = l
	}
	return out
}

func (m *memoryRepo) InsertJournal(_ context.Context, j Journal) (Journal, error) {
	m.nextJournal++
	j.ID = m.nextJournal
	j.Version = 1
	j.CreatedAt, j.UpdatedAt = time.Now(), time.Now()
	j.Lines = m.assignLines(j.ID, j.Lines)
	m.journals[j.ID] = j
	return j, nil
}

func (m *memoryRepo) ReplaceLines(_ context.Context, journalID int64, lines []Line) ([]Line, error) {
	j, ok := m.journals[journalID]
	if !ok {
		return nil, ErrJournalNotFound
	}
	j.Lines = m.assignLines(journalID, lines)
	m.journals[journalID] = j
	return j.Lines, nil
}

func (m *memoryRepo) GetJournal(_ context.Context, companyID, id int64) (Journal, error) {
	j, ok := m.journals[id]
	if !ok || j.CompanyID != companyID || j.DeletedAt != nil {
		return Journal{}, ErrJournalNotFound
	}
	return j, nil
}

func (m *memoryRepo) GetJournalForUpdate(ctx context.Context, companyID, id int64) (Journal, error) {
	return m.GetJournal(ctx, companyID, id)
}

func (m *memoryRepo) UpdateJournal(_ context.Context, j Journal, expected int) error {
	stored, ok := m.journals[j.ID]
	if !ok || stored.Version != expected {
		return ErrVersionConflict
	}
	j.Version = expected + 1
	j.Lines = stored.Lines
	m.journals[j.ID] = j
	return nil
}

func (m *memoryRepo) ListJournals(_ context.Context, companyID int64, filter ListFilter) ([]Journal, int, error) {
	var out []Journal
	for _, j := range m.journals {
		if j.CompanyID != companyID || j.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.PeriodID != nil && j.PeriodID != *filter.PeriodID {
			continue
		}
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out, len(out), nil
}
