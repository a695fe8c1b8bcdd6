// Package ledgertest provides an in-memory ledger store for service tests.
// Transactions are serialised by a mutex and roll back by restoring a snapshot.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger holds periods, balance snapshots, audit rows, idempotency keys and sequences.
type Ledger struct {
	mu sync.Mutex

	Periods  map[int64]periods.Period
	Balances map[balances.Key]balances.AccountBalance
	Audit    []shared.AuditLog
	Keys     map[string]shared.IdempotencyRecord
	Seq      map[string]int64

	// History feeds LoadHistory; journal fakes install it.
	History func(companyID int64) []balances.HistoryLine
	// Unposted feeds CountUnpostedJournals; journal fakes install it.
	Unposted func(companyID, periodID int64, start, end time.Time) int

	// ChainLocks records every LockChain call in order; PeriodID is always zero.
	ChainLocks []balances.Key

	held          map[balances.Key]bool
	nextPeriodID  int64
	nextBalanceID int64
}

var errChainNotHeld = shared.Consistency("balance.chain_not_held", "prior balance read outside the chain lock")

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		Periods:  map[int64]periods.Period{},
		Balances: map[balances.Key]balances.AccountBalance{},
		Keys:     map[string]shared.IdempotencyRecord{},
		Seq:      map[string]int64{},
	}
}

type snapshot struct {
	periods       map[int64]periods.Period
	balances      map[balances.Key]balances.AccountBalance
	audit         []shared.AuditLog
	keys          map[string]shared.IdempotencyRecord
	seq           map[string]int64
	nextPeriodID  int64
	nextBalanceID int64
}

func (l *Ledger) save() snapshot {
	s := snapshot{
		periods:       make(map[int64]periods.Period, len(l.Periods)),
		balances:      make(map[balances.Key]balances.AccountBalance, len(l.Balances)),
		audit:         append([]shared.AuditLog(nil), l.Audit...),
		keys:          make(map[string]shared.IdempotencyRecord, len(l.Keys)),
		seq:           make(map[string]int64, len(l.Seq)),
		nextPeriodID:  l.nextPeriodID,
		nextBalanceID: l.nextBalanceID,
	}
	for k, v := range l.Periods {
		s.periods[k] = v
	}
	for k, v := range l.Balances {
		s.balances[k] = v
	}
	for k, v := range l.Keys {
		s.keys[k] = v
	}
	for k, v := range l.Seq {
		s.seq[k] = v
	}
	return s
}

func (l *Ledger) restore(s snapshot) {
	l.Periods, l.Balances, l.Audit, l.Keys, l.Seq = s.periods, s.balances, s.audit, s.keys, s.seq
	l.nextPeriodID, l.nextBalanceID = s.nextPeriodID, s.nextBalanceID
}

// Tx runs fn exclusively and restores the ledger when fn fails.
func (l *Ledger) Tx(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = map[balances.Key]bool{}
	defer func() { l.held = nil }()
	saved := l.save()
	if err := fn(); err != nil {
		l.restore(saved)
		return err
	}
	return nil
}

// AddPeriod seeds a period directly.
func (l *Ledger) AddPeriod(p periods.Period) periods.Period {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPeriodID++
	if p.ID == 0 {
		p.ID = l.nextPeriodID
	}
	if p.Status == "" {
		p.Status = periods.PeriodStatusOpen
	}
	p.StartDate, p.EndDate = periods.Day(p.StartDate), periods.Day(p.EndDate)
	l.Periods[p.ID] = p
	return p
}

// Month seeds a calendar month period.
func (l *Ledger) Month(companyID int64, year int, month time.Month, status periods.PeriodStatus) periods.Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return l.AddPeriod(periods.Period{
		CompanyID:  companyID,
		FiscalYear: year,
		Number:     int(month),
		Name:       start.Format("2006-01"),
		StartDate:  start,
		EndDate:    start.AddDate(0, 1, -1),
		Status:     status,
	})
}

// PeriodsPort adapts the ledger to periods.RepositoryPort.
func (l *Ledger) PeriodsPort() periods.RepositoryPort { return periodsPort{l} }

// BalancesPort adapts the ledger to balances.RepositoryPort.
func (l *Ledger) BalancesPort() balances.RepositoryPort { return balancesPort{l} }

type periodsPort struct{ l *Ledger }

func (p periodsPort) WithTx(ctx context.Context, fn func(context.Context, periods.TxRepository) error) error {
	return p.l.Tx(func() error { return fn(ctx, p.l) })
}

type balancesPort struct{ l *Ledger }

func (p balancesPort) WithTx(ctx context.Context, fn func(context.Context, balances.TxRepository) error) error {
	return p.l.Tx(func() error { return fn(ctx, p.l) })
}

// --- audit, idempotency, sequences

func (l *Ledger) InsertAudit(_ context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	l.Audit = append(l.Audit, log)
	return nil
}

// AuditActions lists recorded actions in order.
func (l *Ledger) AuditActions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.Audit))
	for _, a := range l.Audit {
		out = append(out, a.Action)
	}
	return out
}

func idemKey(companyID int64, module, key string) string {
	return fmt.Sprintf("%d|%s|%s", companyID, module, key)
}

func (l *Ledger) LookupIdempotency(_ context.Context, companyID int64, module, key string) (*shared.IdempotencyRecord, error) {
	rec, ok := l.Keys[idemKey(companyID, module, key)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *Ledger) SaveIdempotency(_ context.Context, rec shared.IdempotencyRecord) error {
	k := idemKey(rec.CompanyID, rec.Module, rec.Key)
	if _, ok := l.Keys[k]; ok {
		return shared.Conflict("db.unique_violation", "duplicate idempotency key")
	}
	rec.CreatedAt = time.Now()
	l.Keys[k] = rec
	return nil
}

func (l *Ledger) NextReference(_ context.Context, companyID int64, prefix string, day time.Time) (string, error) {
	k := fmt.Sprintf("%d|%s|%s", companyID, prefix, day.Format("20060102"))
	l.Seq[k]++
	return sequence.Format(prefix, day, l.Seq[k]), nil
}

// --- periods

func (l *Ledger) GetPeriod(_ context.Context, companyID, id int64) (periods.Period, error) {
	p, ok := l.Periods[id]
	if !ok || p.CompanyID != companyID {
		return periods.Period{}, periods.ErrPeriodNotFound
	}
	return p, nil
}

func (l *Ledger) GetPeriodForShare(ctx context.Context, companyID, id int64) (periods.Period, error) {
	return l.GetPeriod(ctx, companyID, id)
}

func (l *Ledger) GetPeriodForUpdate(ctx context.Context, companyID, id int64) (periods.Period, error) {
	return l.GetPeriod(ctx, companyID, id)
}

func (l *Ledger) sortedPeriods(companyID int64) []periods.Period {
	var out []periods.Period
	for _, p := range l.Periods {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (l *Ledger) FindPeriodForDate(_ context.Context, companyID int64, date time.Time) (periods.Period, error) {
	for _, p := range l.sortedPeriods(companyID) {
		if p.Contains(date) {
			return p, nil
		}
	}
	return periods.Period{}, periods.ErrNoOpenPeriod.With("%s", date.Format("2006-01-02"))
}

func (l *Ledger) FindNextOpenPeriod(_ context.Context, companyID int64, after time.Time) (periods.Period, error) {
	for _, p := range l.sortedPeriods(companyID) {
		if p.Status == periods.PeriodStatusOpen && p.StartDate.After(periods.Day(after)) {
			return p, nil
		}
	}
	return periods.Period{}, periods.ErrNoOpenPeriod
}

func (l *Ledger) ListPeriods(_ context.Context, companyID int64, fiscalYear int) ([]periods.Period, error) {
	var out []periods.Period
	for _, p := range l.sortedPeriods(companyID) {
		if fiscalYear == 0 || p.FiscalYear == fiscalYear {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *Ledger) FindOverlapping(_ context.Context, companyID int64, start, end time.Time) ([]periods.Period, error) {
	var out []periods.Period
	for _, p := range l.sortedPeriods(companyID) {
		if p.Overlaps(start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *Ledger) InsertPeriod(_ context.Context, p periods.Period) (periods.Period, error) {
	for _, existing := range l.Periods {
		if existing.CompanyID == p.CompanyID && existing.FiscalYear == p.FiscalYear && existing.Number == p.Number {
			return periods.Period{}, shared.Conflict("db.unique_violation", "duplicate period number")
		}
	}
	l.nextPeriodID++
	p.ID = l.nextPeriodID
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	l.Periods[p.ID] = p
	return p, nil
}

func (l *Ledger) UpdatePeriodStatus(_ context.Context, p periods.Period) error {
	if _, ok := l.Periods[p.ID]; !ok {
		return periods.ErrPeriodNotFound
	}
	l.Periods[p.ID] = p
	return nil
}

func (l *Ledger) CountUnpostedJournals(_ context.Context, companyID, periodID int64, start, end time.Time) (int, error) {
	if l.Unposted == nil {
		return 0, nil
	}
	return l.Unposted(companyID, periodID, start, end), nil
}

// --- balances

func (l *Ledger) GetBalanceForUpdate(_ context.Context, key balances.Key) (*balances.AccountBalance, error) {
	b, ok := l.Balances[key]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// LockChain marks the chain held for the rest of the running Tx.
func (l *Ledger) LockChain(_ context.Context, accountID, branchID int64) error {
	k := balances.Key{AccountID: accountID, BranchID: branchID}
	l.ChainLocks = append(l.ChainLocks, k)
	if l.held != nil {
		l.held[k] = true
	}
	return nil
}

// GetPriorBalance fails unless the chain was locked in the same Tx, as an unlocked read can miss
// a concurrent posting into the prior period.
func (l *Ledger) GetPriorBalance(_ context.Context, accountID, branchID int64, before time.Time) (*balances.AccountBalance, error) {
	if !l.held[balances.Key{AccountID: accountID, BranchID: branchID}] {
		return nil, errChainNotHeld.With("account %d branch %d", accountID, branchID)
	}
	var best *balances.AccountBalance
	for _, b := range l.Balances {
		if b.AccountID != accountID || b.BranchID != branchID || !b.PeriodStart.Before(before) {
			continue
		}
		if best == nil || b.PeriodStart.After(best.PeriodStart) {
			b := b
			best = &b
		}
	}
	return best, nil
}

func (l *Ledger) InsertBalance(_ context.Context, seed balances.AccountBalance) (balances.AccountBalance, error) {
	if existing, ok := l.Balances[seed.Key()]; ok {
		return existing, nil
	}
	l.nextBalanceID++
	seed.ID = l.nextBalanceID
	l.Balances[seed.Key()] = seed
	return seed, nil
}

func (l *Ledger) IncrementBalance(_ context.Context, id int64, debit, credit decimal.Decimal) error {
	for k, b := range l.Balances {
		if b.ID == id {
			b.AddMovement(debit, credit)
			l.Balances[k] = b
			return nil
		}
	}
	return shared.NotFound("balance.not_found", "balance row not found")
}

func (l *Ledger) ShiftLaterBalances(_ context.Context, accountID, branchID int64, periodStart time.Time, fiscalYear int, debit, credit decimal.Decimal) error {
	for k, b := range l.Balances {
		if b.AccountID != accountID || b.BranchID != branchID || !b.PeriodStart.After(periodStart) {
			continue
		}
		b.OpeningDebit = b.OpeningDebit.Add(debit)
		b.OpeningCredit = b.OpeningCredit.Add(credit)
		b.ClosingDebit = b.ClosingDebit.Add(debit)
		b.ClosingCredit = b.ClosingCredit.Add(credit)
		if b.FiscalYear == fiscalYear {
			b.YTDDebit = b.YTDDebit.Add(debit)
			b.YTDCredit = b.YTDCredit.Add(credit)
		}
		l.Balances[k] = b
	}
	return nil
}

func (l *Ledger) GetPeriodRef(_ context.Context, companyID, periodID int64) (balances.PeriodRef, error) {
	p, ok := l.Periods[periodID]
	if !ok || p.CompanyID != companyID {
		return balances.PeriodRef{}, balances.ErrPeriodNotFound
	}
	return balances.PeriodRef{ID: p.ID, FiscalYear: p.FiscalYear, StartDate: p.StartDate}, nil
}

func (l *Ledger) ListPeriodRefs(_ context.Context, companyID int64) ([]balances.PeriodRef, error) {
	var out []balances.PeriodRef
	for _, p := range l.sortedPeriods(companyID) {
		out = append(out, balances.PeriodRef{ID: p.ID, FiscalYear: p.FiscalYear, StartDate: p.StartDate})
	}
	return out, nil
}

func (l *Ledger) LockPeriodRefs(ctx context.Context, companyID int64) ([]balances.PeriodRef, error) {
	return l.ListPeriodRefs(ctx, companyID)
}

func (l *Ledger) LatestBalances(_ context.Context, companyID int64, accountID, branchID *int64, periodStart time.Time) ([]balances.AccountBalance, error) {
	type chain struct{ account, branch int64 }
	latest := map[chain]balances.AccountBalance{}
	for _, b := range l.Balances {
		if b.CompanyID != companyID || b.PeriodStart.After(periodStart) {
			continue
		}
		if accountID != nil && b.AccountID != *accountID {
			continue
		}
		if branchID != nil && b.BranchID != *branchID {
			continue
		}
		c := chain{b.AccountID, b.BranchID}
		if cur, ok := latest[c]; !ok || b.PeriodStart.After(cur.PeriodStart) {
			latest[c] = b
		}
	}
	out := make([]balances.AccountBalance, 0, len(latest))
	for _, b := range latest {
		out = append(out, b)
	}
	sortBalances(out)
	return out, nil
}

func (l *Ledger) ListBalances(_ context.Context, companyID int64) ([]balances.AccountBalance, error) {
	var out []balances.AccountBalance
	for _, b := range l.Balances {
		if b.CompanyID == companyID {
			out = append(out, b)
		}
	}
	sortBalances(out)
	return out, nil
}

func (l *Ledger) LoadHistory(_ context.Context, companyID int64) ([]balances.HistoryLine, error) {
	if l.History == nil {
		return nil, nil
	}
	return l.History(companyID), nil
}

func (l *Ledger) DeleteBalances(_ context.Context, companyID int64) error {
	for k, b := range l.Balances {
		if b.CompanyID == companyID {
			delete(l.Balances, k)
		}
	}
	return nil
}

func (l *Ledger) InsertBalances(ctx context.Context, rows []balances.AccountBalance) error {
	for _, b := range rows {
		if _, err := l.InsertBalance(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Balance returns a stored row, for assertions.
func (l *Ledger) Balance(accountID, periodID, branchID int64) (balances.AccountBalance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.Balances[balances.Key{AccountID: accountID, PeriodID: periodID, BranchID: branchID}]
	return b, ok
}

func sortBalances(rows []balances.AccountBalance) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.BranchID != b.BranchID {
			return a.BranchID < b.BranchID
		}
		return a.PeriodStart.Before(b.PeriodStart)
	})
}
