package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"microfin-go/events"
	"microfin-go/metrics"
	"microfin-go/models"
	"microfin-go/utils"
)

// Engine applies loan lifecycle rules on top of the relational store.
// Every mutation of an existing loan runs under that loan's lock and inside one
// database transaction.
type Engine struct {
	db        *gorm.DB
	locker    Locker
	publisher events.Publisher
	logger    *zap.Logger
	lockWait  time.Duration
	now       func() time.Time
}

type Option func(*Engine)

func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLockWait bounds how long a mutation waits for a busy loan.
func WithLockWait(d time.Duration) Option {
	return func(e *Engine) { e.lockWait = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		locker:   NewLocalLocker(),
		logger:   zap.NewNop(),
		lockWait: 10 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.publisher == nil {
		e.publisher = events.NewLogPublisher(e.logger)
	}
	return e
}

// LoanInput carries the editable attributes of a loan.
type LoanInput struct {
	BorrowerID         string
	ProductID          string
	Principal          decimal.Decimal
	InterestRate       *decimal.Decimal
	Duration           int
	RepaymentCycle     models.RepaymentCycle
	DisbursedAt        *time.Time
	FirstRepaymentDate *time.Time
	CustomFields       map[string]interface{}
}

type Decision struct {
	Action string
	Notes  string
	Actor  string
}

type RepaymentInput struct {
	LoanID string
	Amount decimal.Decimal
	Date   time.Time
	Method models.RepaymentMethod
	Notes  string
	Actor  string
}

type RepaymentResult struct {
	Repayment      *models.Repayment
	Loan           *models.Loan
	PreviousStatus models.LoanStatus
	Summary        Summary
}

// LoanDetail is a loan with its associations and settlement position.
type LoanDetail struct {
	models.Loan
	Summary
}

// CreateLoan records a new PENDING loan. The branch is always the borrower's
// branch; the interest rate falls back to the product's rate.
func (e *Engine) CreateLoan(ctx context.Context, actor string, in LoanInput) (*models.Loan, error) {
	db := e.db.WithContext(ctx)

	borrower, err := findBorrower(db, in.BorrowerID)
	if err != nil {
		return nil, err
	}
	product, err := findProduct(db, in.ProductID)
	if err != nil {
		return nil, err
	}

	rate := product.InterestRate
	if in.InterestRate != nil {
		rate = *in.InterestRate
	}

	loan := models.Loan{
		BorrowerID:         borrower.ID,
		ProductID:          product.ID,
		BranchID:           borrower.BranchID,
		Principal:          in.Principal,
		InterestRate:       rate,
		Duration:           in.Duration,
		RepaymentCycle:     in.RepaymentCycle,
		Status:             models.LoanPending,
		DisbursedAt:        in.DisbursedAt,
		FirstRepaymentDate: in.FirstRepaymentDate,
		CustomFields:       in.CustomFields,
		CreatedBy:          actor,
	}
	if err := db.Omit(clause.Associations).Create(&loan).Error; err != nil {
		return nil, utils.Internal("Failed to create loan", err)
	}

	e.logger.Info("loan created",
		zap.String("loan_id", loan.ID),
		zap.String("borrower_id", loan.BorrowerID),
		zap.String("principal", loan.Principal.String()),
		zap.String("actor", actor),
	)
	e.publish(ctx, events.Event{
		Type:  events.LoanCreated,
		Key:   loan.ID,
		Actor: actor,
		Data: map[string]interface{}{
			"borrower_id": loan.BorrowerID,
			"product_id":  loan.ProductID,
			"branch_id":   loan.BranchID,
			"principal":   loan.Principal.String(),
		},
	})

	loan.Borrower = borrower
	loan.Product = product
	return &loan, nil
}

// UpdateLoan edits a PENDING loan. The branch is re-derived from the
// (possibly new) borrower. Custom fields are merged, never replaced.
func (e *Engine) UpdateLoan(ctx context.Context, actor, id string, in LoanInput) (*models.Loan, error) {
	var loan models.Loan

	err := e.withLoanTx(ctx, id, func(tx *gorm.DB) error {
		if err := lockLoan(tx, id, &loan); err != nil {
			return err
		}
		if !CanEdit(&loan) {
			return invalidState("Can only edit loans in PENDING status")
		}

		borrower, err := findBorrower(tx, in.BorrowerID)
		if err != nil {
			return err
		}
		product, err := findProduct(tx, in.ProductID)
		if err != nil {
			return err
		}

		loan.BorrowerID = borrower.ID
		loan.BranchID = borrower.BranchID
		loan.ProductID = product.ID
		loan.Principal = in.Principal
		if in.InterestRate != nil {
			loan.InterestRate = *in.InterestRate
		}
		loan.Duration = in.Duration
		loan.RepaymentCycle = in.RepaymentCycle
		loan.DisbursedAt = in.DisbursedAt
		loan.FirstRepaymentDate = in.FirstRepaymentDate
		if len(in.CustomFields) > 0 {
			loan.CustomFields = mergeFields(loan.CustomFields, in.CustomFields)
		}

		if err := tx.Omit(clause.Associations).Save(&loan).Error; err != nil {
			return utils.Internal("Failed to update loan", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events.Event{
		Type:  events.LoanUpdated,
		Key:   loan.ID,
		Actor: actor,
		Data: map[string]interface{}{
			"borrower_id": loan.BorrowerID,
			"branch_id":   loan.BranchID,
			"principal":   loan.Principal.String(),
		},
	})

	return e.loadLoan(ctx, id)
}

// DeleteLoan removes a PENDING loan that has no repayments.
func (e *Engine) DeleteLoan(ctx context.Context, actor, id string) error {
	err := e.withLoanTx(ctx, id, func(tx *gorm.DB) error {
		var loan models.Loan
		if err := lockLoan(tx, id, &loan); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Repayment{}).Where("loan_id = ?", id).Count(&count).Error; err != nil {
			return utils.Internal("Failed to count repayments", err)
		}
		if count > 0 {
			return invalidState("Cannot delete loan with existing repayments")
		}
		if !CanDelete(&loan, count) {
			return invalidState("Can only delete loans in PENDING status")
		}

		if err := tx.Delete(&loan).Error; err != nil {
			return utils.Internal("Failed to delete loan", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.publish(ctx, events.Event{Type: events.LoanDeleted, Key: id, Actor: actor})
	return nil
}

// Decide approves or rejects a PENDING loan and stamps the approval record.
// A loan in any other status is left untouched.
func (e *Engine) Decide(ctx context.Context, id string, d Decision) (*models.Loan, error) {
	target, err := DecisionTarget(d.Action)
	if err != nil {
		return nil, invalidAction()
	}

	var from models.LoanStatus
	err = e.withLoanTx(ctx, id, func(tx *gorm.DB) error {
		var loan models.Loan
		if err := lockLoan(tx, id, &loan); err != nil {
			return err
		}
		if loan.Status != models.LoanPending || !CanTransition(loan.Status, target) {
			return invalidState("Can only approve/reject loans in PENDING status")
		}
		from = loan.Status

		now := e.now().UTC()
		loan.Status = target
		loan.Approval = &models.ApprovalRecord{
			Action:     d.Action,
			Notes:      d.Notes,
			ApprovedBy: d.Actor,
			ApprovedAt: now,
		}

		var notes interface{}
		if d.Notes != "" {
			notes = d.Notes
		}
		loan.CustomFields = mergeFields(loan.CustomFields, map[string]interface{}{
			models.FieldApprovalAction: d.Action,
			models.FieldApprovalNotes:  notes,
			models.FieldApprovedBy:     d.Actor,
			models.FieldApprovedAt:     now.Format(time.RFC3339),
		})

		if err := tx.Omit(clause.Associations).Save(&loan).Error; err != nil {
			return utils.Internal("Failed to update loan", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition(string(from), string(target))
	e.logger.Info("loan decided",
		zap.String("loan_id", id),
		zap.String("action", d.Action),
		zap.String("status", string(target)),
		zap.String("actor", d.Actor),
	)
	e.publish(ctx,
		events.Event{
			Type:  events.LoanDecided,
			Key:   id,
			Actor: d.Actor,
			Data:  map[string]interface{}{"action": d.Action, "notes": d.Notes},
		},
		statusChanged(id, d.Actor, from, target, "decision"),
	)

	return e.loadLoan(ctx, id)
}

// PostRepayment records a repayment and recomputes the loan status from the
// full repayment history, all in one transaction under the loan's lock.
func (e *Engine) PostRepayment(ctx context.Context, in RepaymentInput) (*RepaymentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, &utils.AppError{
			Kind:    utils.KindValidation,
			Message: "Validation failed",
			Details: map[string]string{"amount": ErrInvalidAmount.Error()},
			Err:     ErrInvalidAmount,
		}
	}

	var (
		loan      models.Loan
		repayment models.Repayment
		result    RepaymentResult
	)

	err := e.withLoanTx(ctx, in.LoanID, func(tx *gorm.DB) error {
		if err := lockLoan(tx, in.LoanID, &loan); err != nil {
			return err
		}

		repayment = models.Repayment{
			LoanID:     loan.ID,
			Amount:     in.Amount,
			Date:       in.Date,
			Method:     in.Method,
			Notes:      in.Notes,
			RecordedBy: in.Actor,
		}
		if err := tx.Omit(clause.Associations).Create(&repayment).Error; err != nil {
			return utils.Internal("Failed to create repayment", err)
		}

		var all []models.Repayment
		if err := tx.Select("amount").Where("loan_id = ?", loan.ID).Find(&all).Error; err != nil {
			return utils.Internal("Failed to load repayments", err)
		}

		result.PreviousStatus = loan.Status
		result.Summary = Summarize(&loan, all)

		next := NextStatusAfterRepayment(loan.Status, result.Summary.TotalPaid, result.Summary.TotalDue)
		if next == loan.Status {
			return nil
		}
		if !CanTransition(loan.Status, next) {
			return invalidState("Repayment cannot move loan from " + string(loan.Status) + " to " + string(next))
		}

		updates := map[string]interface{}{"status": next}
		if loan.DisbursedAt == nil {
			disbursedAt := e.now().UTC()
			updates["disbursed_at"] = disbursedAt
			loan.DisbursedAt = &disbursedAt
		}
		if err := tx.Model(&loan).Omit(clause.Associations).Updates(updates).Error; err != nil {
			return utils.Internal("Failed to update loan status", err)
		}
		loan.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	amount, _ := repayment.Amount.Float64()
	metrics.ObserveRepayment(string(repayment.Method), amount)

	evts := []events.Event{{
		Type:  events.RepaymentPosted,
		Key:   loan.ID,
		Actor: in.Actor,
		Data: map[string]interface{}{
			"repayment_id": repayment.ID,
			"reference":    repayment.Reference,
			"amount":       repayment.Amount.String(),
			"method":       string(repayment.Method),
			"total_paid":   result.Summary.TotalPaid.String(),
			"total_due":    result.Summary.TotalDue.String(),
		},
	}}
	if loan.Status != result.PreviousStatus {
		metrics.ObserveTransition(string(result.PreviousStatus), string(loan.Status))
		evts = append(evts, statusChanged(loan.ID, in.Actor, result.PreviousStatus, loan.Status, "repayment"))
	}

	e.logger.Info("repayment posted",
		zap.String("loan_id", loan.ID),
		zap.String("reference", repayment.Reference),
		zap.String("amount", repayment.Amount.String()),
		zap.String("total_paid", result.Summary.TotalPaid.String()),
		zap.String("total_due", result.Summary.TotalDue.String()),
		zap.String("status", string(loan.Status)),
	)
	e.publish(ctx, evts...)

	result.Repayment = &repayment
	result.Loan = &loan
	return &result, nil
}

// GetLoan returns a loan with borrower, product, branch and repayments
// (newest first) plus its settlement summary.
func (e *Engine) GetLoan(ctx context.Context, id string) (*LoanDetail, error) {
	var loan models.Loan
	err := e.db.WithContext(ctx).
		Preload("Borrower").
		Preload("Product").
		Preload("Branch").
		Preload("Repayments", func(db *gorm.DB) *gorm.DB {
			return db.Order("date DESC").Order("created_at DESC")
		}).
		First(&loan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loanNotFound()
		}
		return nil, utils.Internal("Failed to fetch loan", err)
	}

	return &LoanDetail{Loan: loan, Summary: Summarize(&loan, loan.Repayments)}, nil
}

func (e *Engine) withLoanTx(ctx context.Context, loanID string, fn func(tx *gorm.DB) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	defer cancel()

	unlock, err := e.locker.Lock(lockCtx, loanID)
	if err != nil {
		return utils.NewError(utils.KindConflict, "Loan is busy, try again", err)
	}
	defer unlock()

	return e.db.WithContext(ctx).Transaction(fn)
}

func (e *Engine) loadLoan(ctx context.Context, id string) (*models.Loan, error) {
	var loan models.Loan
	if err := e.db.WithContext(ctx).Preload("Borrower").Preload("Product").First(&loan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loanNotFound()
		}
		return nil, utils.Internal("Failed to fetch loan", err)
	}
	return &loan, nil
}

func (e *Engine) publish(ctx context.Context, evts ...events.Event) {
	now := e.now().UTC()
	for i := range evts {
		if evts[i].OccurredAt.IsZero() {
			evts[i].OccurredAt = now
		}
	}
	if err := e.publisher.Publish(ctx, evts...); err != nil {
		e.logger.Warn("failed to publish events", zap.Error(err), zap.Int("count", len(evts)))
	}
}

func lockLoan(tx *gorm.DB, id string, loan *models.Loan) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(loan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return loanNotFound()
		}
		return utils.Internal("Failed to fetch loan", err)
	}
	return nil
}

func findBorrower(db *gorm.DB, id string) (*models.Borrower, error) {
	var borrower models.Borrower
	if err := db.First(&borrower, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, borrowerNotFound()
		}
		return nil, utils.Internal("Failed to fetch borrower", err)
	}
	return &borrower, nil
}

func findProduct(db *gorm.DB, id string) (*models.LoanProduct, error) {
	var product models.LoanProduct
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, productNotFound()
		}
		return nil, utils.Internal("Failed to fetch loan product", err)
	}
	return &product, nil
}

// mergeFields returns a copy of base with extra laid over it.
func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func statusChanged(loanID, actor string, from, to models.LoanStatus, trigger string) events.Event {
	return events.Event{
		Type:  events.LoanStatusChanged,
		Key:   loanID,
		Actor: actor,
		Data: map[string]interface{}{
			"from":    string(from),
			"to":      string(to),
			"trigger": trigger,
		},
	}
}
