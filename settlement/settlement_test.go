package settlement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"microfin-go/database"
	"microfin-go/events"
	"microfin-go/models"
	"microfin-go/utils"
)

func TestMain(m *testing.M) {
	if err := utils.InitializeEncryption("0123456789abcdef0123456789abcdef"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.LoanStatus
		want     bool
	}{
		{models.LoanPending, models.LoanApproved, true},
		{models.LoanPending, models.LoanWrittenOff, true},
		{models.LoanPending, models.LoanDisbursed, true},
		{models.LoanPending, models.LoanCompleted, true},
		{models.LoanApproved, models.LoanDisbursed, true},
		{models.LoanApproved, models.LoanCompleted, true},
		{models.LoanDisbursed, models.LoanCompleted, true},
		{models.LoanDisbursed, models.LoanPending, false},
		{models.LoanApproved, models.LoanPending, false},
		{models.LoanCompleted, models.LoanDisbursed, false},
		{models.LoanWrittenOff, models.LoanApproved, false},
		{models.LoanWrittenOff, models.LoanCompleted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDecisionTarget(t *testing.T) {
	if s, err := DecisionTarget("approve"); err != nil || s != models.LoanApproved {
		t.Errorf("approve: got %s, %v", s, err)
	}
	if s, err := DecisionTarget("reject"); err != nil || s != models.LoanWrittenOff {
		t.Errorf("reject: got %s, %v", s, err)
	}
	if _, err := DecisionTarget("Approve"); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
}

func TestNextStatusAfterRepayment(t *testing.T) {
	due := decimal.NewFromInt(1100)
	tests := []struct {
		name    string
		current models.LoanStatus
		paid    int64
		want    models.LoanStatus
	}{
		{"pending partial", models.LoanPending, 500, models.LoanDisbursed},
		{"pending exact", models.LoanPending, 1100, models.LoanCompleted},
		{"pending over", models.LoanPending, 1500, models.LoanCompleted},
		{"approved partial", models.LoanApproved, 1, models.LoanDisbursed},
		{"disbursed partial", models.LoanDisbursed, 800, models.LoanDisbursed},
		{"disbursed settled", models.LoanDisbursed, 1100, models.LoanCompleted},
		{"completed stays", models.LoanCompleted, 2000, models.LoanCompleted},
		{"written off stays", models.LoanWrittenOff, 2000, models.LoanWrittenOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextStatusAfterRepayment(tt.current, decimal.NewFromInt(tt.paid), due)
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	loan := &models.Loan{Principal: decimal.NewFromInt(1000), InterestRate: decimal.NewFromInt(10)}

	s := Summarize(loan, []models.Repayment{{Amount: decimal.NewFromInt(300)}, {Amount: decimal.NewFromInt(200)}})
	if !s.TotalDue.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("total due = %s", s.TotalDue)
	}
	if !s.TotalPaid.Equal(decimal.NewFromInt(500)) || !s.Outstanding.Equal(decimal.NewFromInt(600)) {
		t.Errorf("unexpected summary %+v", s)
	}

	over := Summarize(loan, []models.Repayment{{Amount: decimal.NewFromInt(2000)}})
	if !over.Outstanding.IsZero() {
		t.Errorf("outstanding should floor at zero, got %s", over.Outstanding)
	}
}

type fixture struct {
	db       *gorm.DB
	engine   *Engine
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "settlement.db"), "silent")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := database.Seed(db); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	rec := &events.Recorder{}
	clock := func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return &fixture{
		db:       db,
		engine:   NewEngine(db, WithPublisher(rec), WithClock(clock)),
		recorder: rec,
	}
}

func (f *fixture) borrower(t *testing.T, uniqueID string) models.Borrower {
	t.Helper()
	var b models.Borrower
	if err := f.db.First(&b, "unique_id = ?", uniqueID).Error; err != nil {
		t.Fatalf("load borrower %s: %v", uniqueID, err)
	}
	return b
}

func (f *fixture) createLoan(t *testing.T, principal int64) *models.Loan {
	t.Helper()
	loan, err := f.engine.CreateLoan(context.Background(), "officer_1", LoanInput{
		BorrowerID:     f.borrower(t, "BOR-001").ID,
		ProductID:      database.PersonalLoanID,
		Principal:      decimal.NewFromInt(principal),
		Duration:       12,
		RepaymentCycle: models.CycleMonthly,
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	return loan
}

func (f *fixture) pay(t *testing.T, loanID string, amount int64) *RepaymentResult {
	t.Helper()
	res, err := f.engine.PostRepayment(context.Background(), RepaymentInput{
		LoanID: loanID,
		Amount: decimal.NewFromInt(amount),
		Date:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Method: models.MethodCash,
		Actor:  "cashier_1",
	})
	if err != nil {
		t.Fatalf("PostRepayment(%d): %v", amount, err)
	}
	return res
}

func (f *fixture) status(t *testing.T, loanID string) models.LoanStatus {
	t.Helper()
	var loan models.Loan
	if err := f.db.First(&loan, "id = ?", loanID).Error; err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	return loan.Status
}

func TestCreateLoanDefaults(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)

	if loan.Status != models.LoanPending {
		t.Errorf("expected PENDING, got %s", loan.Status)
	}
	if loan.BranchID != database.MainBranchID {
		t.Errorf("expected borrower's branch, got %q", loan.BranchID)
	}
	if !loan.InterestRate.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected product rate 10, got %s", loan.InterestRate)
	}
	if loan.CreatedBy != "officer_1" {
		t.Errorf("expected creator recorded, got %q", loan.CreatedBy)
	}
	if got := len(f.recorder.OfType(events.LoanCreated)); got != 1 {
		t.Errorf("expected 1 loan.created event, got %d", got)
	}
}

func TestCreateLoanUnknownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateLoan(ctx, "officer_1", LoanInput{
		BorrowerID: "missing",
		ProductID:  database.PersonalLoanID,
		Principal:  decimal.NewFromInt(1000),
		Duration:   1,
	})
	if !errors.Is(err, ErrBorrowerNotFound) || utils.KindOf(err) != utils.KindNotFound {
		t.Errorf("expected borrower not found, got %v", err)
	}

	_, err = f.engine.CreateLoan(ctx, "officer_1", LoanInput{
		BorrowerID: f.borrower(t, "BOR-001").ID,
		ProductID:  "missing",
		Principal:  decimal.NewFromInt(1000),
		Duration:   1,
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Errorf("expected product not found, got %v", err)
	}

	var count int64
	f.db.Model(&models.Loan{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no loans persisted, got %d", count)
	}
}

func TestFullRepaymentCompletesPendingLoan(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)

	res := f.pay(t, loan.ID, 1100)

	if res.Loan.Status != models.LoanCompleted {
		t.Errorf("expected COMPLETED, got %s", res.Loan.Status)
	}
	if res.PreviousStatus != models.LoanPending {
		t.Errorf("expected previous PENDING, got %s", res.PreviousStatus)
	}
	if f.status(t, loan.ID) != models.LoanCompleted {
		t.Errorf("status not persisted")
	}
	if res.Repayment.Reference == "" {
		t.Error("expected a receipt reference")
	}
	changes := f.recorder.OfType(events.LoanStatusChanged)
	if len(changes) != 1 || changes[0].Data["to"] != string(models.LoanCompleted) {
		t.Errorf("unexpected status events %+v", changes)
	}
}

func TestPartialRepaymentDisbursesThenCompletes(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)

	first := f.pay(t, loan.ID, 500)
	if first.Loan.Status != models.LoanDisbursed {
		t.Fatalf("expected DISBURSED, got %s", first.Loan.Status)
	}
	if first.Loan.DisbursedAt == nil {
		t.Error("expected disbursed_at to be stamped")
	}
	if !first.Summary.Outstanding.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected 600 outstanding, got %s", first.Summary.Outstanding)
	}

	second := f.pay(t, loan.ID, 600)
	if second.Loan.Status != models.LoanCompleted {
		t.Errorf("expected COMPLETED, got %s", second.Loan.Status)
	}
	if !second.Summary.TotalPaid.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("expected 1100 paid, got %s", second.Summary.TotalPaid)
	}
}

func TestRepaymentOnTerminalLoanKeepsStatus(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)
	if _, err := f.engine.Decide(context.Background(), loan.ID, Decision{Action: ActionReject, Actor: "admin_1"}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	res := f.pay(t, loan.ID, 2000)
	if res.Loan.Status != models.LoanWrittenOff {
		t.Errorf("expected WRITTEN_OFF to stick, got %s", res.Loan.Status)
	}

	var count int64
	f.db.Model(&models.Repayment{}).Where("loan_id = ?", loan.ID).Count(&count)
	if count != 1 {
		t.Errorf("expected repayment persisted, got %d", count)
	}
}

func TestRepaymentUnknownLoanPersistsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.PostRepayment(context.Background(), RepaymentInput{
		LoanID: "missing",
		Amount: decimal.NewFromInt(100),
		Date:   time.Now(),
		Method: models.MethodCash,
	})
	if !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected loan not found, got %v", err)
	}

	var count int64
	f.db.Model(&models.Repayment{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no repayments, got %d", count)
	}
}

func TestRepaymentRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)

	_, err := f.engine.PostRepayment(context.Background(), RepaymentInput{LoanID: loan.ID, Amount: decimal.Zero})
	if utils.KindOf(err) != utils.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestConcurrentRepaymentsAreSerialised(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.PostRepayment(context.Background(), RepaymentInput{
				LoanID: loan.ID,
				Amount: decimal.NewFromInt(110),
				Date:   time.Now(),
				Method: models.MethodMobileMoney,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("PostRepayment: %v", err)
		}
	}

	if got := f.status(t, loan.ID); got != models.LoanCompleted {
		t.Errorf("expected COMPLETED after ten 110 payments, got %s", got)
	}
	if got := len(f.recorder.OfType(events.RepaymentPosted)); got != 10 {
		t.Errorf("expected 10 repayment events, got %d", got)
	}
	if got := len(f.recorder.OfType(events.LoanStatusChanged)); got != 2 {
		t.Errorf("expected PENDING->DISBURSED and DISBURSED->COMPLETED, got %d changes", got)
	}
}

func TestUpdateLoan(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)
	ctx := context.Background()

	branch := models.Branch{Name: "Kumasi"}
	if err := f.db.Create(&branch).Error; err != nil {
		t.Fatalf("create branch: %v", err)
	}
	moved := models.Borrower{
		FirstName: "Yaw",
		LastName:  "Darko",
		UniqueID:  "BOR-300",
		Mobile:    "+233200000300",
		BranchID:  branch.ID,
	}
	if err := f.db.Create(&moved).Error; err != nil {
		t.Fatalf("create borrower: %v", err)
	}
	if loan.BranchID != database.MainBranchID {
		t.Fatalf("expected new loan in main branch, got %q", loan.BranchID)
	}

	rate := decimal.NewFromInt(12)
	updated, err := f.engine.UpdateLoan(ctx, "officer_2", loan.ID, LoanInput{
		BorrowerID:     moved.ID,
		ProductID:      database.BusinessLoanID,
		Principal:      decimal.NewFromInt(2000),
		InterestRate:   &rate,
		Duration:       6,
		RepaymentCycle: models.CycleWeekly,
		CustomFields:   map[string]interface{}{"purpose": "stock"},
	})
	if err != nil {
		t.Fatalf("UpdateLoan: %v", err)
	}
	if !updated.Principal.Equal(decimal.NewFromInt(2000)) || !updated.InterestRate.Equal(rate) {
		t.Errorf("unexpected terms %s @ %s", updated.Principal, updated.InterestRate)
	}
	if updated.BranchID != branch.ID || updated.BorrowerID != moved.ID {
		t.Errorf("branch must follow borrower, got branch %q borrower %q", updated.BranchID, updated.BorrowerID)
	}
	var stored models.Loan
	if err := f.db.First(&stored, "id = ?", loan.ID).Error; err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	if stored.BranchID != branch.ID {
		t.Errorf("stored branch not moved, got %q", stored.BranchID)
	}
	if updated.CustomFields["purpose"] != "stock" {
		t.Errorf("custom fields not merged: %v", updated.CustomFields)
	}

	f.pay(t, loan.ID, 100)
	_, err = f.engine.UpdateLoan(ctx, "officer_2", loan.ID, LoanInput{
		BorrowerID: f.borrower(t, "BOR-002").ID,
		ProductID:  database.BusinessLoanID,
		Principal:  decimal.NewFromInt(3000),
		Duration:   6,
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected invalid state for DISBURSED loan, got %v", err)
	}
}

func TestDeleteLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.createLoan(t, 1000)
	f.pay(t, paid.ID, 100)
	if err := f.engine.DeleteLoan(ctx, "officer_1", paid.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected invalid state for loan with repayments, got %v", err)
	}

	fresh := f.createLoan(t, 1000)
	if err := f.engine.DeleteLoan(ctx, "officer_1", fresh.ID); err != nil {
		t.Fatalf("DeleteLoan: %v", err)
	}
	if _, err := f.engine.GetLoan(ctx, fresh.ID); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("expected deleted loan to be gone, got %v", err)
	}
	if err := f.engine.DeleteLoan(ctx, "officer_1", "missing"); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeleteLoanRequiresPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, action := range []string{ActionApprove, ActionReject} {
		t.Run(action, func(t *testing.T) {
			loan := f.createLoan(t, 1000)
			if _, err := f.engine.Decide(ctx, loan.ID, Decision{Action: action, Actor: "admin_1"}); err != nil {
				t.Fatalf("Decide: %v", err)
			}

			err := f.engine.DeleteLoan(ctx, "officer_1", loan.ID)
			if !errors.Is(err, ErrInvalidState) {
				t.Fatalf("expected invalid state, got %v", err)
			}
			var appErr *utils.AppError
			if !errors.As(err, &appErr) || appErr.Message != "Can only delete loans in PENDING status" {
				t.Errorf("expected status check to reject, got %v", err)
			}
			if _, err := f.engine.GetLoan(ctx, loan.ID); err != nil {
				t.Errorf("expected loan to survive, got %v", err)
			}
		})
	}
}

func TestDecideApprove(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)

	approved, err := f.engine.Decide(context.Background(), loan.ID, Decision{Action: ActionApprove, Notes: "ok", Actor: "admin_1"})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if approved.Status != models.LoanApproved {
		t.Errorf("expected APPROVED, got %s", approved.Status)
	}
	if approved.Approval == nil || approved.Approval.ApprovedBy != "admin_1" {
		t.Errorf("expected approval record, got %+v", approved.Approval)
	}
	cf := approved.CustomFields
	if cf[models.FieldApprovalAction] != "approve" || cf[models.FieldApprovalNotes] != "ok" || cf[models.FieldApprovedBy] != "admin_1" {
		t.Errorf("approval keys not merged: %v", cf)
	}
	if cf[models.FieldApprovedAt] != "2025-03-01T09:00:00Z" {
		t.Errorf("unexpected approvedAt %v", cf[models.FieldApprovedAt])
	}
}

func TestDecideRequiresPending(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)
	ctx := context.Background()

	if _, err := f.engine.Decide(ctx, loan.ID, Decision{Action: ActionApprove, Actor: "admin_1"}); err != nil {
		t.Fatalf("first Decide: %v", err)
	}
	before, _ := f.engine.GetLoan(ctx, loan.ID)

	_, err := f.engine.Decide(ctx, loan.ID, Decision{Action: ActionReject, Notes: "late", Actor: "admin_2"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	after, _ := f.engine.GetLoan(ctx, loan.ID)
	if after.Status != models.LoanApproved {
		t.Errorf("status changed to %s", after.Status)
	}
	if after.CustomFields[models.FieldApprovedBy] != before.CustomFields[models.FieldApprovedBy] {
		t.Errorf("custom fields modified: %v", after.CustomFields)
	}
}

func TestDecideInvalidAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Decide(context.Background(), "missing", Decision{Action: "maybe"})
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("action must be checked before the loan lookup, got %v", err)
	}
}

func TestGetLoanDetail(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, 1000)
	f.pay(t, loan.ID, 300)
	f.pay(t, loan.ID, 200)

	detail, err := f.engine.GetLoan(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("GetLoan: %v", err)
	}
	if detail.Borrower == nil || detail.Product == nil || detail.Branch == nil {
		t.Fatal("expected associations to be loaded")
	}
	if len(detail.Repayments) != 2 {
		t.Errorf("expected 2 repayments, got %d", len(detail.Repayments))
	}
	if !detail.Outstanding.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected 600 outstanding, got %s", detail.Outstanding)
	}
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "loan-1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "loan-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	other, err := l.Lock(context.Background(), "loan-2")
	if err != nil {
		t.Fatalf("independent key should not block: %v", err)
	}
	other()

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "loan-1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()

	if n := len(l.locks); n != 0 {
		t.Errorf("expected lock table to drain, %d left", n)
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLocker(client, 5*time.Second)
	key := "test-" + time.Now().Format("150405.000000000")

	unlock, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, key); err == nil {
		t.Fatal("expected second lock to time out")
	}

	unlock()
	again, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	again()
}
