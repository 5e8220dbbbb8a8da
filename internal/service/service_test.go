package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/repository"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	svc := NewService(repo, Options{
		Now:                   func() time.Time { return testNow },
		StaffKey:              "123456",
		RequireFutureDeadline: true,
	})
	return svc, repo
}

func registerCustomer(t *testing.T, svc *Service, email string) int64 {
	t.Helper()
	id, err := svc.RegisterUser(context.Background(), Registration{
		Email:    email,
		Name:     "Customer " + email,
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return id
}

func registerStaff(t *testing.T, svc *Service) int64 {
	t.Helper()
	id, err := svc.RegisterStaff(context.Background(), Registration{
		Email:    "staff@bank.test",
		Name:     "Anna Petrova",
		Password: "secret",
	}, "123456")
	if err != nil {
		t.Fatalf("register staff: %v", err)
	}
	return id
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user@bank.test", "pass")
	b := hashPassword("user@bank.test", "pass")
	c := hashPassword("user@bank.test", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestRegisterUser_OpensAccount(t *testing.T) {
	svc, _ := newTestService(t)
	id := registerCustomer(t, svc, "Alice@Bank.test ")

	snap, err := svc.Snapshot(context.Background(), id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.AccountNumber) != 10 {
		t.Fatalf("expected 10-digit account number, got %q", snap.AccountNumber)
	}
	if !snap.Balance.IsZero() {
		t.Fatalf("new account must be empty, got %s", snap.Balance)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "alice@bank.test", "secret"); err != nil {
		t.Fatalf("email must be normalized, got %v", err)
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	svc, _ := newTestService(t)
	registerCustomer(t, svc, "dup@bank.test")

	_, err := svc.RegisterUser(context.Background(), Registration{Email: "dup@bank.test", Name: "Dup", Password: "x"})
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterUser_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		reg  Registration
	}{
		{name: "no email", reg: Registration{Name: "A", Password: "x"}},
		{name: "bad email", reg: Registration{Email: "nope", Name: "A", Password: "x"}},
		{name: "no password", reg: Registration{Email: "a@b.c", Name: "A"}},
		{name: "no name", reg: Registration{Email: "a@b.c", Password: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.RegisterUser(context.Background(), tt.reg); !errors.Is(err, ErrInvalidRegistration) {
				t.Fatalf("expected ErrInvalidRegistration, got %v", err)
			}
		})
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	registerCustomer(t, svc, "user@bank.test")

	if _, err := svc.AuthenticateUser(context.Background(), "user@bank.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.AuthenticateUser(context.Background(), "ghost@bank.test", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterStaff(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RegisterStaff(context.Background(), Registration{Email: "s@bank.test", Name: "S", Password: "x"}, "wrong")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for wrong key, got %v", err)
	}

	id := registerStaff(t, svc)
	u, err := svc.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get staff: %v", err)
	}
	if !u.IsStaff {
		t.Fatalf("expected staff flag")
	}
	if len(u.Username) != len("annapetrova")+4 {
		t.Fatalf("unexpected generated username %q", u.Username)
	}
	if _, err := svc.Snapshot(context.Background(), id); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("staff must not get an account, got %v", err)
	}
}

func TestStaffOnlyOperations(t *testing.T) {
	svc, _ := newTestService(t)
	customer := registerCustomer(t, svc, "c@bank.test")
	staff := registerStaff(t, svc)
	ctx := context.Background()

	if _, err := svc.ListCustomers(ctx, customer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer must not list customers, got %v", err)
	}
	if _, err := svc.ListLoans(ctx, customer, model.LoanPending); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer must not list loans, got %v", err)
	}
	if _, err := svc.ListReports(ctx, customer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer must not list reports, got %v", err)
	}
	if _, err := svc.CustomerHistory(ctx, customer, customer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer must not read history via staff path, got %v", err)
	}

	customers, err := svc.ListCustomers(ctx, staff)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(customers) != 1 || customers[0].ID != customer {
		t.Fatalf("expected only the customer, got %+v", customers)
	}
}

func TestLoanTransition(t *testing.T) {
	svc, _ := newTestService(t)
	customer := registerCustomer(t, svc, "c@bank.test")
	staff := registerStaff(t, svc)
	ctx := context.Background()

	loan, err := svc.ApplyForLoan(ctx, customer, money.MustParse("5000.00"), "new roof")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if loan.Status != model.LoanPending {
		t.Fatalf("new loan must be pending, got %s", loan.Status)
	}

	if _, err := svc.SetLoanStatus(ctx, customer, loan.ID, model.LoanApproved); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer must not review loans, got %v", err)
	}

	approved, err := svc.SetLoanStatus(ctx, staff, loan.ID, model.LoanApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.LoanApproved || approved.ReviewedBy == nil || *approved.ReviewedBy != staff {
		t.Fatalf("unexpected reviewed loan %+v", approved)
	}

	for _, next := range []model.LoanStatus{model.LoanPending, model.LoanRejected, model.LoanApproved} {
		if _, err := svc.SetLoanStatus(ctx, staff, loan.ID, next); !errors.Is(err, ErrInvalidLoanTransition) {
			t.Fatalf("transition to %s after approval: expected ErrInvalidLoanTransition, got %v", next, err)
		}
	}

	pending, err := svc.ListLoans(ctx, staff, "")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending loans, got %d", len(pending))
	}
	approvedList, err := svc.ListLoans(ctx, staff, model.LoanApproved)
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(approvedList) != 1 {
		t.Fatalf("expected one approved loan, got %d", len(approvedList))
	}

	if _, err := svc.ListLoans(ctx, staff, "Archived"); !errors.Is(err, ErrUnknownLoanStatus) {
		t.Fatalf("expected ErrUnknownLoanStatus, got %v", err)
	}
	if _, err := svc.SetLoanStatus(ctx, staff, 9999, model.LoanRejected); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected ErrLoanNotFound, got %v", err)
	}
}

func TestApplyForLoan_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	customer := registerCustomer(t, svc, "c@bank.test")

	if _, err := svc.ApplyForLoan(context.Background(), customer, money.Zero, "x"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.ApplyForLoan(context.Background(), customer, money.MustParse("10"), "   "); !errors.Is(err, ErrEmptyReason) {
		t.Fatalf("expected ErrEmptyReason, got %v", err)
	}
}

func TestCalculateEMI(t *testing.T) {
	svc, _ := newTestService(t)

	s, err := svc.CalculateEMI(money.MustParse("100000"), money.MustParse("12").Decimal(), 1, "years")
	if err != nil {
		t.Fatalf("emi: %v", err)
	}
	if s.EMI.String() != "8884.88" || s.Months != 12 {
		t.Fatalf("unexpected schedule %+v", s)
	}

	if _, err := svc.CalculateEMI(money.MustParse("1000"), money.MustParse("12").Decimal(), 1, "weeks"); !errors.Is(err, money.ErrInvalidLoanTerms) {
		t.Fatalf("expected ErrInvalidLoanTerms, got %v", err)
	}
}

// conflictRepo имитирует конфликт сериализации в первых failures единицах работы.
type conflictRepo struct {
	*repository.MemoryRepository
	failures int
	calls    int
}

func (r *conflictRepo) WithinTx(ctx context.Context, fn func(repository.Tx) error) error {
	r.calls++
	if r.failures > 0 {
		r.failures--
		// fn выполняется, но результат откатывается, как при ошибке коммита.
		_ = r.MemoryRepository.WithinTx(ctx, func(tx repository.Tx) error {
			if err := fn(tx); err != nil {
				return err
			}
			return errors.New("rollback")
		})
		return fmt.Errorf("commit: %w", repository.ErrConflict)
	}
	return r.MemoryRepository.WithinTx(ctx, fn)
}

type recordingMetrics struct {
	outcomes map[string]string
}

func (m *recordingMetrics) ObserveOperation(operation, outcome string, _ time.Duration) {
	m.outcomes[operation] = outcome
}

func TestRetryOnConflict(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantErr   error
		wantCalls int
		wantCents int64
		outcome   string
	}{
		{name: "single conflict is retried", failures: 1, wantCalls: 2, wantCents: 10000, outcome: "success"},
		{name: "repeated conflict is surfaced", failures: 2, wantErr: ErrPersistenceConflict, wantCalls: 2, wantCents: 0, outcome: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := repository.NewMemoryRepository()
			repo := &conflictRepo{MemoryRepository: mem}
			metrics := &recordingMetrics{outcomes: map[string]string{}}
			svc := NewService(repo, Options{Now: func() time.Time { return testNow }, Metrics: metrics})
			id := registerCustomer(t, svc, "retry@bank.test")

			repo.failures, repo.calls = tt.failures, 0
			_, err := svc.Deposit(context.Background(), id, money.MustParse("100.00"))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if repo.calls != tt.wantCalls {
				t.Fatalf("expected %d attempts, got %d", tt.wantCalls, repo.calls)
			}
			if metrics.outcomes["deposit"] != tt.outcome {
				t.Fatalf("expected outcome %q, got %q", tt.outcome, metrics.outcomes["deposit"])
			}

			snap, err := svc.Snapshot(context.Background(), id)
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if snap.Balance.Cents() != tt.wantCents {
				t.Fatalf("expected balance %d cents, got %s", tt.wantCents, snap.Balance)
			}
			history, _ := svc.History(context.Background(), id)
			if want := int(tt.wantCents / 10000); len(history) != want {
				t.Fatalf("expected %d transactions, got %d", want, len(history))
			}
		})
	}
}

func TestReportTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	alice := registerCustomer(t, svc, "alice@bank.test")
	bob := registerCustomer(t, svc, "bob@bank.test")
	staff := registerStaff(t, svc)
	bobSnap, _ := svc.Snapshot(ctx, bob)

	mustDeposit(t, svc, alice, "100.00")
	post, err := svc.Transfer(ctx, alice, TransferRequest{RecipientNumber: bobSnap.AccountNumber, Amount: money.MustParse("10.00")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	received := post.Transactions[1]

	if _, err := svc.ReportTransaction(ctx, alice, received.ID, "spam"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("reporting someone else's transaction: expected ErrTransactionNotFound, got %v", err)
	}
	if _, err := svc.ReportTransaction(ctx, bob, received.ID, " "); !errors.Is(err, ErrEmptyReason) {
		t.Fatalf("expected ErrEmptyReason, got %v", err)
	}

	report, err := svc.ReportTransaction(ctx, bob, received.ID, "unknown sender")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.ReportedUserID == nil || *report.ReportedUserID != alice {
		t.Fatalf("reported user must be the counterparty owner, got %+v", report.ReportedUserID)
	}
	if _, err := svc.ReportTransaction(ctx, bob, received.ID, "again"); !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("expected ErrAlreadyReported, got %v", err)
	}

	reports, err := svc.ListReports(ctx, staff)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 1 || reports[0].Status != ReportPending {
		t.Fatalf("unexpected reports %+v", reports)
	}

	history, _ := svc.History(ctx, bob)
	if !history[0].Reported {
		t.Fatalf("transaction must be marked reported")
	}
}

func TestDeleteUser_RemovesEverything(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := registerCustomer(t, svc, "gone@bank.test")
	mustDeposit(t, svc, id, "50.00")

	if err := svc.DeleteUser(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetUser(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteUser(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	history, _ := svc.History(ctx, id)
	if len(history) != 0 {
		t.Fatalf("history must be removed, got %d rows", len(history))
	}
}

func TestIsRejection(t *testing.T) {
	if !IsRejection(fmt.Errorf("wrap: %w", ErrInsufficientFunds)) {
		t.Fatalf("wrapped business error must be a rejection")
	}
	if IsRejection(errors.New("disk on fire")) {
		t.Fatalf("unexpected storage error must not be a rejection")
	}
	if IsRejection(ErrPersistenceConflict) {
		t.Fatalf("persistence conflict is not a business rejection")
	}
}
