package journals

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Idempotency modules of the journal engine.
const (
	moduleCreate = "journals.create"
	modulePost   = "journals.post"
)

// Invalidator drops cached reports after balances change.
type Invalidator interface {
	Bump(ctx context.Context, scope string) error
}

// Recorder counts journal lifecycle events.
type Recorder interface {
	JournalEvent(action string)
}

// Service coordinates drafting, posting and voiding of journals.
type Service struct {
	repo    RepositoryPort
	cache   Invalidator
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the journal engine.
func NewService(repo RepositoryPort, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches an event recorder.
func (s *Service) WithMetrics(m Recorder) *Service {
	s.metrics = m
	return s
}

// Create stores a draft journal dated into an OPEN period. A non-empty key makes the call idempotent.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, in CreateInput, key string) (Journal, error) {
	if err := tenant.RequireBranch(); err != nil {
		return Journal{}, err
	}
	if err := in.Validate(); err != nil {
		return Journal{}, err
	}
	var out Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, _, err := s.createInTx(ctx, tx, tenant, in, moduleCreate, key)
		out = j
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	return out, nil
}

// CreateAndPost drafts and posts in one transaction. It is the entry point for system postings;
// integrations pass the source document id as key so retries return the first journal.
func (s *Service) CreateAndPost(ctx context.Context, tenant shared.Tenant, in CreateInput, key string) (PostResult, error) {
	if err := tenant.RequireBranch(); err != nil {
		return PostResult{}, err
	}
	if err := in.Validate(); err != nil {
		return PostResult{}, err
	}
	var out PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, replay, err := s.createInTx(ctx, tx, tenant, in, modulePost, key)
		if err != nil {
			return err
		}
		out.Replay = replay
		if replay {
			out.Journal = j
			return nil
		}
		posted, err := s.postInTx(ctx, tx, tenant, j)
		out.Journal = posted
		return err
	})
	if err != nil {
		return PostResult{}, err
	}
	if !out.Replay {
		s.afterPost(ctx, tenant, out.Journal, "post")
	}
	return out, nil
}

func (s *Service) createInTx(ctx context.Context, tx TxRepository, tenant shared.Tenant, in CreateInput, module, key string) (Journal, bool, error) {
	var fingerprint string
	if key != "" {
		fp, err := shared.Fingerprint(in)
		if err != nil {
			return Journal{}, false, err
		}
		fingerprint = fp
		rec, err := tx.LookupIdempotency(ctx, tenant.CompanyID, module, key)
		if err != nil {
			return Journal{}, false, err
		}
		id, replay, err := shared.CheckReplay(rec, fingerprint)
		if err != nil {
			return Journal{}, false, err
		}
		if replay {
			j, err := tx.GetJournal(ctx, tenant.CompanyID, id)
			return j, true, err
		}
	}

	lines, err := toLines(in.Lines)
	if err != nil {
		return Journal{}, false, err
	}
	period, err := tx.FindPeriodForDate(ctx, tenant.CompanyID, in.TransactionDate)
	if err != nil {
		return Journal{}, false, err
	}
	if err := period.EnsurePosting(); err != nil {
		return Journal{}, false, err
	}
	if err := s.checkAccounts(ctx, tx, tenant.CompanyID, lines); err != nil {
		return Journal{}, false, err
	}
	date := periods.Day(in.TransactionDate)
	ref, err := tx.NextReference(ctx, tenant.CompanyID, in.Type.Prefix(), date)
	if err != nil {
		return Journal{}, false, err
	}
	draft := Journal{
		CompanyID:       tenant.CompanyID,
		BranchID:        tenant.BranchID,
		PeriodID:        period.ID,
		Reference:       ref,
		Type:            in.Type,
		Status:          StatusDraft,
		TransactionDate: date,
		Description:     strings.TrimSpace(in.Description),
		Source:          in.Source,
		CreatedBy:       tenant.ActorID,
		Lines:           lines,
	}
	draft.TotalDebit, draft.TotalCredit = draft.Sums()
	created, err := tx.InsertJournal(ctx, draft)
	if err != nil {
		return Journal{}, false, err
	}
	if key != "" {
		if err := tx.SaveIdempotency(ctx, shared.IdempotencyRecord{
			Key: key, Module: module, CompanyID: tenant.CompanyID, Fingerprint: fingerprint, ResultID: created.ID,
		}); err != nil {
			return Journal{}, false, err
		}
	}
	return created, false, s.audit(ctx, tx, tenant, "journal.create", created, map[string]any{"reference": created.Reference, "type": created.Type})
}

// UpdateDraft replaces the date, description and lines of a draft when the caller saw the current version.
func (s *Service) UpdateDraft(ctx context.Context, tenant shared.Tenant, id int64, in UpdateInput) (Journal, error) {
	if err := tenant.Validate(); err != nil {
		return Journal{}, err
	}
	lines, err := toLines(in.Lines)
	if err != nil {
		return Journal{}, err
	}
	var out Journal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournalForUpdate(ctx, tenant.CompanyID, id)
		if err != nil {
			return err
		}
		if !j.IsEditable() {
			return ErrNotEditable.With("%s is %s", j.Reference, j.Status)
		}
		if j.Version != in.Version {
			return ErrVersionConflict
		}
		period, err := tx.FindPeriodForDate(ctx, tenant.CompanyID, in.TransactionDate)
		if err != nil {
			return err
		}
		if err := period.EnsurePosting(); err != nil {
			return err
		}
		if err := s.checkAccounts(ctx, tx, tenant.CompanyID, lines); err != nil {
			return err
		}
		stored, err := tx.ReplaceLines(ctx, j.ID, lines)
		if err != nil {
			return err
		}
		j.Lines = stored
		j.PeriodID = period.ID
		j.TransactionDate = periods.Day(in.TransactionDate)
		j.Description = strings.TrimSpace(in.Description)
		j.TotalDebit, j.TotalCredit = j.Sums()
		if err := tx.UpdateJournal(ctx, j, in.Version); err != nil {
			return err
		}
		j.Version = in.Version + 1
		out = j
		return s.audit(ctx, tx, tenant, "journal.update", j, map[string]any{"version": j.Version})
	})
	if err != nil {
		return Journal{}, err
	}
	return out, nil
}

// Submit moves a balanced draft to PENDING for approval.
func (s *Service) Submit(ctx context.Context, tenant shared.Tenant, id int64) (Journal, error) {
	return s.transition(ctx, tenant, id, "journal.submit", func(j *Journal) error {
		if !j.IsEditable() {
			return ErrNotEditable.With("%s is %s", j.Reference, j.Status)
		}
		if err := checkLines(*j); err != nil {
			return err
		}
		j.Status = StatusPending
		return nil
	})
}

// DeleteDraft soft deletes a draft. Its reference stays consumed.
func (s *Service) DeleteDraft(ctx context.Context, tenant shared.Tenant, id int64) error {
	_, err := s.transition(ctx, tenant, id, "journal.delete", func(j *Journal) error {
		if !j.IsEditable() {
			return ErrNotEditable.With("%s is %s", j.Reference, j.Status)
		}
		now := s.now()
		j.DeletedAt = &now
		return nil
	})
	return err
}

func (s *Service) transition(ctx context.Context, tenant shared.Tenant, id int64, action string, mutate func(*Journal) error) (Journal, error) {
	if err := tenant.Validate(); err != nil {
		return Journal{}, err
	}
	var out Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournalForUpdate(ctx, tenant.CompanyID, id)
		if err != nil {
			return err
		}
		version := j.Version
		if err := mutate(&j); err != nil {
			return err
		}
		if err := tx.UpdateJournal(ctx, j, version); err != nil {
			return err
		}
		j.Version = version + 1
		out = j
		return s.audit(ctx, tx, tenant, action, j, map[string]any{"status": j.Status})
	})
	if err != nil {
		return Journal{}, err
	}
	return out, nil
}

// CanPost reports whether id would post right now. Only infrastructure failures are returned as errors.
func (s *Service) CanPost(ctx context.Context, tenant shared.Tenant, id int64) (bool, error) {
	if err := tenant.Validate(); err != nil {
		return false, err
	}
	var ok bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournal(ctx, tenant.CompanyID, id)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriod(ctx, tenant.CompanyID, j.PeriodID)
		if err != nil {
			return err
		}
		ok = CheckPostable(j, period) == nil
		return nil
	})
	return ok, err
}

// CheckPostable returns the first reason j cannot post into period.
func CheckPostable(j Journal, period periods.Period) error {
	switch j.Status {
	case StatusDraft, StatusPending:
	default:
		return ErrNotPostable.With("%s is %s", j.Reference, j.Status)
	}
	if j.DeletedAt != nil {
		return ErrJournalNotFound
	}
	if err := period.EnsurePosting(); err != nil {
		return err
	}
	if !period.Contains(j.TransactionDate) {
		return periods.ErrDateOutOfRange.With("%s", j.TransactionDate.Format("2006-01-02"))
	}
	return checkLines(j)
}

func checkLines(j Journal) error {
	if len(j.Lines) == 0 {
		return ErrNoLines
	}
	debit, credit := j.Sums()
	if !debit.Equal(credit) {
		return ErrUnbalanced.With("debit %s credit %s", debit.String(), credit.String())
	}
	if !debit.IsPositive() {
		return ErrZeroAmountLine
	}
	return nil
}

// Post finalises a draft or pending journal and updates account balances in the same transaction.
func (s *Service) Post(ctx context.Context, tenant shared.Tenant, id int64) (Journal, error) {
	if err := tenant.Validate(); err != nil {
		return Journal{}, err
	}
	var out Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournalForUpdate(ctx, tenant.CompanyID, id)
		if err != nil {
			return err
		}
		posted, err := s.postInTx(ctx, tx, tenant, j)
		out = posted
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	s.afterPost(ctx, tenant, out, "post")
	return out, nil
}

func (s *Service) postInTx(ctx context.Context, tx TxRepository, tenant shared.Tenant, j Journal) (Journal, error) {
	period, err := tx.GetPeriodForShare(ctx, tenant.CompanyID, j.PeriodID)
	if err != nil {
		return Journal{}, err
	}
	if err := CheckPostable(j, period); err != nil {
		return Journal{}, err
	}
	// Reversals must go through even when an account was deactivated after the original posted.
	if j.Type != TypeReversal {
		if err := s.checkAccounts(ctx, tx, tenant.CompanyID, j.Lines); err != nil {
			return Journal{}, err
		}
	}
	movements := make([]balances.Movement, 0, len(j.Lines))
	for _, l := range j.Lines {
		movements = append(movements, balances.Movement{AccountID: l.AccountID, BranchID: j.BranchID, Debit: l.Debit, Credit: l.Credit})
	}
	ref := balances.PeriodRef{ID: period.ID, FiscalYear: period.FiscalYear, StartDate: period.StartDate}
	if err := balances.Apply(ctx, tx, tenant.CompanyID, ref, movements); err != nil {
		return Journal{}, err
	}

	now := s.now()
	postingDate := periods.Day(now)
	actor := tenant.ActorID
	version := j.Version
	j.Status = StatusPosted
	j.TotalDebit, j.TotalCredit = j.Sums()
	j.PostingDate = &postingDate
	j.PostedAt, j.PostedBy = &now, &actor
	if err := tx.UpdateJournal(ctx, j, version); err != nil {
		return Journal{}, err
	}
	j.Version = version + 1
	return j, s.audit(ctx, tx, tenant, "journal.post", j, map[string]any{
		"reference": j.Reference,
		"total":     j.TotalDebit.String(),
		"period_id": j.PeriodID,
	})
}

// Void reverses a posted journal. The reversal is dated on the original date when its period is
// still OPEN, otherwise on the first day of the next OPEN period.
func (s *Service) Void(ctx context.Context, tenant shared.Tenant, id int64, reason string) (VoidResult, error) {
	if err := tenant.Validate(); err != nil {
		return VoidResult{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return VoidResult{}, ErrVoidReasonRequired
	}
	var out VoidResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalForUpdate(ctx, tenant.CompanyID, id)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return ErrNotVoidable.With("%s is %s", original.Reference, original.Status)
		}
		origPeriod, err := tx.GetPeriodForShare(ctx, tenant.CompanyID, original.PeriodID)
		if err != nil {
			return err
		}
		target, date := origPeriod, original.TransactionDate
		if !origPeriod.AllowsPosting() {
			target, err = tx.FindNextOpenPeriod(ctx, tenant.CompanyID, origPeriod.EndDate)
			if err != nil {
				return err
			}
			date = target.StartDate
		}
		ref, err := tx.NextReference(ctx, tenant.CompanyID, TypeReversal.Prefix(), date)
		if err != nil {
			return err
		}
		originalID := original.ID
		draft := Journal{
			CompanyID:       tenant.CompanyID,
			BranchID:        original.BranchID,
			PeriodID:        target.ID,
			Reference:       ref,
			Type:            TypeReversal,
			Status:          StatusDraft,
			TransactionDate: periods.Day(date),
			Description:     fmt.Sprintf("Reversal of %s: %s", original.Reference, reason),
			Source:          &SourceRef{Kind: SourceJournal, ID: original.ID},
			ReversalOfID:    &originalID,
			CreatedBy:       tenant.ActorID,
			Lines:           reversalLines(original.Lines),
		}
		draft.TotalDebit, draft.TotalCredit = draft.Sums()
		inserted, err := tx.InsertJournal(ctx, draft)
		if err != nil {
			return err
		}
		reversal, err := s.postInTx(ctx, tx, tenant, inserted)
		if err != nil {
			return err
		}

		now := s.now()
		actor := tenant.ActorID
		version := original.Version
		original.Status = StatusVoided
		original.VoidReason = reason
		original.VoidedAt, original.VoidedBy = &now, &actor
		original.ReversedByID = &reversal.ID
		if err := tx.UpdateJournal(ctx, original, version); err != nil {
			return err
		}
		original.Version = version + 1
		out = VoidResult{Voided: original, Reversal: reversal}
		return s.audit(ctx, tx, tenant, "journal.void", original, map[string]any{
			"reason":   reason,
			"reversal": reversal.Reference,
		})
	})
	if err != nil {
		return VoidResult{}, err
	}
	s.afterPost(ctx, tenant, out.Reversal, "void")
	return out, nil
}

// Get returns a journal with its lines.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, id int64) (Journal, error) {
	if err := tenant.Validate(); err != nil {
		return Journal{}, err
	}
	var out Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := tx.GetJournal(ctx, tenant.CompanyID, id)
		out = j
		return err
	})
	return out, err
}

// List returns one page of journals and the pagination metadata.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, filter ListFilter) ([]Journal, shared.Pagination, error) {
	if err := tenant.Validate(); err != nil {
		return nil, shared.Pagination{}, err
	}
	var (
		out   []Journal
		total int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, total, err = tx.ListJournals(ctx, tenant.CompanyID, filter)
		return err
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, companyID int64, lines []Line) error {
	ids := make([]int64, 0, len(lines))
	seen := map[int64]bool{}
	var centers []int64
	seenCenter := map[int64]bool{}
	for _, l := range lines {
		if !seen[l.AccountID] {
			seen[l.AccountID] = true
			ids = append(ids, l.AccountID)
		}
		if l.CostCenterID != nil && !seenCenter[*l.CostCenterID] {
			seenCenter[*l.CostCenterID] = true
			centers = append(centers, *l.CostCenterID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	found, err := tx.GetAccounts(ctx, companyID, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		acc, ok := found[id]
		if !ok {
			return accounts.ErrAccountNotFound.With("%d", id)
		}
		if err := acc.EnsurePostable(); err != nil {
			return err
		}
	}
	if len(centers) > 0 {
		n, err := tx.CountCostCenters(ctx, companyID, centers)
		if err != nil {
			return err
		}
		if n != len(centers) {
			return accounts.ErrCostCenterNotFound
		}
	}
	return nil
}

func (s *Service) audit(ctx context.Context, tx TxRepository, tenant shared.Tenant, action string, j Journal, meta map[string]any) error {
	return tx.InsertAudit(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.ActorID,
		Action:    action,
		Entity:    "journal",
		EntityID:  fmt.Sprintf("%d", j.ID),
		Meta:      meta,
		At:        s.now(),
	})
}

func (s *Service) afterPost(ctx context.Context, tenant shared.Tenant, j Journal, action string) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx, shared.LedgerScope(tenant.CompanyID)); err != nil {
			s.logger.Warn("report cache bump failed", slog.Int64("company_id", tenant.CompanyID), slog.Any("error", err))
		}
	}
	if s.metrics != nil {
		s.metrics.JournalEvent(action)
	}
	s.logger.Info("journal "+action,
		slog.Int64("company_id", tenant.CompanyID),
		slog.Int64("journal_id", j.ID),
		slog.String("reference", j.Reference),
		slog.String("total", j.TotalDebit.String()),
	)
}
