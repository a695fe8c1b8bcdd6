package balances

import (
	"sort"
)

// Replay recomputes every snapshot row from history. It is pure, so rebuilding twice yields the same rows.
// Lines whose period is unknown are ignored.
func Replay(companyID int64, periods []PeriodRef, lines []HistoryLine) []AccountBalance {
	byID := make(map[int64]PeriodRef, len(periods))
	for _, p := range periods {
		byID[p.ID] = p
	}
	type cell struct {
		chain  chainKey
		period PeriodRef
	}
	sums := make(map[cell]*Movement)
	for _, l := range lines {
		p, ok := byID[l.PeriodID]
		if !ok {
			continue
		}
		c := cell{chain: chainKey{accountID: l.AccountID, branchID: l.BranchID}, period: p}
		m, ok := sums[c]
		if !ok {
			m = &Movement{AccountID: l.AccountID, BranchID: l.BranchID}
			sums[c] = m
		}
		m.Debit = m.Debit.Add(l.Debit)
		m.Credit = m.Credit.Add(l.Credit)
	}

	cells := make([]cell, 0, len(sums))
	for c := range sums {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.chain.accountID != b.chain.accountID {
			return a.chain.accountID < b.chain.accountID
		}
		if a.chain.branchID != b.chain.branchID {
			return a.chain.branchID < b.chain.branchID
		}
		if !a.period.StartDate.Equal(b.period.StartDate) {
			return a.period.StartDate.Before(b.period.StartDate)
		}
		return a.period.ID < b.period.ID
	})

	out := make([]AccountBalance, 0, len(cells))
	var prior *AccountBalance
	for _, c := range cells {
		if prior != nil && (prior.AccountID != c.chain.accountID || prior.BranchID != c.chain.branchID) {
			prior = nil
		}
		key := Key{AccountID: c.chain.accountID, PeriodID: c.period.ID, BranchID: c.chain.branchID}
		row := Seed(companyID, key, c.period, prior)
		m := sums[c]
		row.AddMovement(m.Debit, m.Credit)
		out = append(out, row)
		prior = &out[len(out)-1]
	}
	return out
}

// Compare lists rows where stored and expected disagree, including rows missing on either side.
func Compare(stored, expected []AccountBalance) []Drift {
	index := make(map[Key]AccountBalance, len(stored))
	for _, s := range stored {
		index[s.Key()] = s
	}
	var drifts []Drift
	for i := range expected {
		e := expected[i]
		s, ok := index[e.Key()]
		if !ok {
			drifts = append(drifts, Drift{Key: e.Key(), Expected: &e})
			continue
		}
		delete(index, e.Key())
		if !sameFigures(s, e) {
			s := s
			drifts = append(drifts, Drift{Key: e.Key(), Stored: &s, Expected: &e})
		}
	}
	for k, s := range index {
		s := s
		if s.Verify() == nil && s.ClosingDebit.IsZero() && s.ClosingCredit.IsZero() && s.YTDDebit.IsZero() && s.YTDCredit.IsZero() {
			continue
		}
		drifts = append(drifts, Drift{Key: k, Stored: &s})
	}
	sort.Slice(drifts, func(i, j int) bool {
		a, b := drifts[i].Key, drifts[j].Key
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.BranchID != b.BranchID {
			return a.BranchID < b.BranchID
		}
		return a.PeriodID < b.PeriodID
	})
	return drifts
}

func sameFigures(a, b AccountBalance) bool {
	return a.OpeningDebit.Equal(b.OpeningDebit) && a.OpeningCredit.Equal(b.OpeningCredit) &&
		a.PeriodDebit.Equal(b.PeriodDebit) && a.PeriodCredit.Equal(b.PeriodCredit) &&
		a.ClosingDebit.Equal(b.ClosingDebit) && a.ClosingCredit.Equal(b.ClosingCredit) &&
		a.YTDDebit.Equal(b.YTDDebit) && a.YTDCredit.Equal(b.YTDCredit)
}
