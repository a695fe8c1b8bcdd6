package journals

import "github.com/odyssey-erp/odyssey-ledger/internal/shared"

var (
	ErrJournalNotFound    = shared.NotFound("journal.not_found", "journal not found")
	ErrInvalidType        = shared.Validation("journal.invalid_type", "invalid journal type")
	ErrInvalidSource      = shared.Validation("journal.invalid_source", "invalid source reference")
	ErrNoLines            = shared.Validation("journal.no_lines", "journal requires at least one line")
	ErrInvalidLine        = shared.Validation("journal.invalid_line", "line must carry exactly one positive debit or credit")
	ErrZeroAmountLine     = shared.Validation("journal.zero_amount_line", "line has no financial effect")
	ErrNegativeAmount     = shared.Validation("journal.negative_amount", "line amounts must not be negative")
	ErrLinePrecision      = shared.Validation("journal.precision", "amounts allow at most 4 decimal places")
	ErrInvalidForeign     = shared.Validation("journal.invalid_foreign", "foreign amounts need a currency, a positive rate and the same side as the base amount")
	ErrInvalidSubledger   = shared.Validation("journal.invalid_subledger", "invalid sub-ledger reference")
	ErrUnbalanced         = shared.Validation("journal.unbalanced", "journal debits and credits differ")
	ErrNotEditable        = shared.Validation("journal.not_editable", "only draft journals can be changed")
	ErrNotPostable        = shared.Validation("journal.not_postable", "journal status does not allow posting")
	ErrNotVoidable        = shared.Validation("journal.not_voidable", "only posted journals can be voided")
	ErrVoidReasonRequired = shared.Validation("journal.void_reason_required", "void reason required")
	ErrVersionConflict    = shared.Conflict("journal.version", "journal was modified concurrently")
)
