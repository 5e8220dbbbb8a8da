package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
)

var errNegativeBalance = errors.New("balance must be non-negative")

// MemoryRepository хранит данные в памяти процесса. Используется в тестах и при запуске без БД.
// Единицы работы сериализуются мьютексом, изменения применяются только при успешном завершении.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	seq          int64
	users        map[int64]model.User
	accounts     map[int64]model.Account
	transactions map[int64]model.Transaction
	goals        map[int64]model.Goal
	loans        map[int64]model.Loan
	contacts     map[int64]model.Contact
	reports      map[int64]model.SpamReport
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memState{
			users:        make(map[int64]model.User),
			accounts:     make(map[int64]model.Account),
			transactions: make(map[int64]model.Transaction),
			goals:        make(map[int64]model.Goal),
			loans:        make(map[int64]model.Loan),
			contacts:     make(map[int64]model.Contact),
			reports:      make(map[int64]model.SpamReport),
		},
	}
}

func (s *memState) clone() *memState {
	return &memState{
		seq:          s.seq,
		users:        maps.Clone(s.users),
		accounts:     maps.Clone(s.accounts),
		transactions: maps.Clone(s.transactions),
		goals:        maps.Clone(s.goals),
		loans:        maps.Clone(s.loans),
		contacts:     maps.Clone(s.contacts),
		reports:      maps.Clone(s.reports),
	}
}

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// WithinTx выполняет fn над копией состояния и публикует её, если fn вернула nil.
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := r.state.clone()
	if err := fn(&memTx{state: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

type memTx struct {
	state *memState
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func (t *memTx) CreateUser(_ context.Context, u *model.User) error {
	for _, existing := range t.state.users {
		if existing.Email == u.Email || (u.Username != "" && existing.Username == u.Username) {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
	}
	u.ID = t.state.nextID()
	u.CreatedAt = stamp(u.CreatedAt)
	t.state.users[u.ID] = *u
	return nil
}

func (t *memTx) LockAccounts(_ context.Context, ids ...int64) ([]model.Account, error) {
	res := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		a, ok := t.state.accounts[id]
		if !ok {
			return nil, fmt.Errorf("lock account %d: %w", id, ErrNotFound)
		}
		res = append(res, a)
	}
	return res, nil
}

func (t *memTx) AccountByUser(_ context.Context, userID int64) (*model.Account, error) {
	for _, a := range t.state.accounts {
		if a.UserID == userID {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("account by user: %w", ErrNotFound)
}

// AccountByUserShared совпадает с AccountByUser: единицы работы и так выполняются по одной.
func (t *memTx) AccountByUserShared(ctx context.Context, userID int64) (*model.Account, error) {
	return t.AccountByUser(ctx, userID)
}

func (t *memTx) AccountByNumber(_ context.Context, number string) (*model.Account, error) {
	for _, a := range t.state.accounts {
		if a.Number == number {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("account by number: %w", ErrNotFound)
}

func (t *memTx) CreateAccount(_ context.Context, userID int64, number string) (*model.Account, error) {
	if _, ok := t.state.users[userID]; !ok {
		return nil, fmt.Errorf("create account: user %d: %w", userID, ErrNotFound)
	}
	for _, a := range t.state.accounts {
		if a.Number == number {
			return nil, ErrAccountNumberTaken
		}
		if a.UserID == userID {
			return nil, fmt.Errorf("create account: user %d already has an account: %w", userID, ErrConflict)
		}
	}
	a := model.Account{
		ID:        t.state.nextID(),
		UserID:    userID,
		Number:    number,
		CreatedAt: time.Now().UTC(),
	}
	t.state.accounts[a.ID] = a
	return &a, nil
}

func (t *memTx) UpdateAccountBalance(_ context.Context, accountID int64, balance money.Money) error {
	a, ok := t.state.accounts[accountID]
	if !ok {
		return fmt.Errorf("update balance %d: %w", accountID, ErrNotFound)
	}
	if balance.IsNegative() {
		return fmt.Errorf("update balance %d: %w", accountID, errNegativeBalance)
	}
	a.Balance = balance
	t.state.accounts[accountID] = a
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *model.Transaction) error {
	if !tr.Amount.IsPositive() {
		return fmt.Errorf("insert transaction: amount must be positive")
	}
	tr.ID = t.state.nextID()
	tr.CreatedAt = stamp(tr.CreatedAt)
	t.state.transactions[tr.ID] = *tr
	return nil
}

func (t *memTx) TransactionForUpdate(_ context.Context, id int64) (*model.Transaction, error) {
	tr, ok := t.state.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction for update: %w", ErrNotFound)
	}
	return &tr, nil
}

func (t *memTx) MarkTransactionReported(_ context.Context, id int64) error {
	tr, ok := t.state.transactions[id]
	if !ok {
		return fmt.Errorf("mark reported: %w", ErrNotFound)
	}
	tr.Reported = true
	t.state.transactions[id] = tr
	return nil
}

func (t *memTx) GoalForUpdate(_ context.Context, id int64) (*model.Goal, error) {
	g, ok := t.state.goals[id]
	if !ok {
		return nil, fmt.Errorf("goal for update: %w", ErrNotFound)
	}
	return &g, nil
}

func (t *memTx) InsertGoal(_ context.Context, g *model.Goal) error {
	g.ID = t.state.nextID()
	g.CreatedAt = stamp(g.CreatedAt)
	t.state.goals[g.ID] = *g
	return nil
}

func (t *memTx) UpdateGoal(_ context.Context, g *model.Goal) error {
	if _, ok := t.state.goals[g.ID]; !ok {
		return fmt.Errorf("update goal: %w", ErrNotFound)
	}
	if g.Balance.IsNegative() {
		return fmt.Errorf("update goal %d: %w", g.ID, errNegativeBalance)
	}
	t.state.goals[g.ID] = *g
	return nil
}

func (t *memTx) DeleteGoal(_ context.Context, id int64) error {
	delete(t.state.goals, id)
	return nil
}

func (t *memTx) SumGoalBalances(_ context.Context, userID int64) (money.Money, error) {
	total := money.Zero
	for _, g := range t.state.goals {
		if g.UserID == userID {
			total = total.Add(g.Balance)
		}
	}
	return total, nil
}

func (t *memTx) SaveContact(_ context.Context, c *model.Contact) (bool, error) {
	for _, existing := range t.state.contacts {
		if existing.UserID == c.UserID && existing.AccountNumber == c.AccountNumber {
			return false, nil
		}
	}
	c.ID = t.state.nextID()
	c.CreatedAt = stamp(c.CreatedAt)
	t.state.contacts[c.ID] = *c
	return true, nil
}

func (t *memTx) LoanForUpdate(_ context.Context, id int64) (*model.Loan, error) {
	l, ok := t.state.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan for update: %w", ErrNotFound)
	}
	return &l, nil
}

func (t *memTx) InsertLoan(_ context.Context, l *model.Loan) error {
	l.ID = t.state.nextID()
	l.CreatedAt = stamp(l.CreatedAt)
	t.state.loans[l.ID] = *l
	return nil
}

func (t *memTx) UpdateLoan(_ context.Context, l *model.Loan) error {
	if _, ok := t.state.loans[l.ID]; !ok {
		return fmt.Errorf("update loan: %w", ErrNotFound)
	}
	t.state.loans[l.ID] = *l
	return nil
}

func (t *memTx) InsertSpamReport(_ context.Context, r *model.SpamReport) error {
	r.ID = t.state.nextID()
	r.CreatedAt = stamp(r.CreatedAt)
	t.state.reports[r.ID] = *r
	return nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.state.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", ErrNotFound)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.state.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", ErrNotFound)
	}
	return &u, nil
}

// ListCustomers возвращает всех клиентов, кроме сотрудников.
func (r *MemoryRepository) ListCustomers(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedValues(r.state.users, func(u model.User) bool { return !u.IsStaff },
		func(a, b model.User) int { return cmp.Compare(a.ID, b.ID) }), nil
}

// DeleteUser удаляет пользователя вместе со всеми его данными.
func (r *MemoryRepository) DeleteUser(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	maps.DeleteFunc(s.accounts, func(_ int64, a model.Account) bool { return a.UserID == id })
	maps.DeleteFunc(s.transactions, func(_ int64, t model.Transaction) bool { return t.UserID == id })
	maps.DeleteFunc(s.goals, func(_ int64, g model.Goal) bool { return g.UserID == id })
	maps.DeleteFunc(s.loans, func(_ int64, l model.Loan) bool { return l.UserID == id })
	maps.DeleteFunc(s.contacts, func(_ int64, c model.Contact) bool { return c.UserID == id })
	maps.DeleteFunc(s.reports, func(_ int64, rep model.SpamReport) bool {
		_, txExists := s.transactions[rep.TransactionID]
		return rep.ReporterID == id || !txExists
	})
	for k, rep := range s.reports {
		if rep.ReportedUserID != nil && *rep.ReportedUserID == id {
			rep.ReportedUserID = nil
			s.reports[k] = rep
		}
	}
	for k, l := range s.loans {
		if l.ReviewedBy != nil && *l.ReviewedBy == id {
			l.ReviewedBy = nil
			s.loans[k] = l
		}
	}
	return nil
}

// TransactionsByUser возвращает журнал операций пользователя, новые записи первыми.
func (r *MemoryRepository) TransactionsByUser(_ context.Context, userID int64) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedValues(r.state.transactions,
		func(t model.Transaction) bool { return t.UserID == userID },
		func(a, b model.Transaction) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		}), nil
}

// GoalsByUser возвращает цели пользователя.
func (r *MemoryRepository) GoalsByUser(_ context.Context, userID int64) ([]model.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedValues(r.state.goals, func(g model.Goal) bool { return g.UserID == userID },
		func(a, b model.Goal) int { return cmp.Compare(a.ID, b.ID) }), nil
}

// LoansByStatus возвращает заявки с указанным статусом.
func (r *MemoryRepository) LoansByStatus(_ context.Context, status model.LoanStatus) ([]model.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedValues(r.state.loans, func(l model.Loan) bool { return l.Status == status },
		func(a, b model.Loan) int { return cmp.Compare(a.ID, b.ID) }), nil
}

// LoansByUser возвращает заявки пользователя, новые первыми.
func (r *MemoryRepository) LoansByUser(_ context.Context, userID int64) ([]model.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedValues(r.state.loans, func(l model.Loan) bool { return l.UserID == userID },
		func(a, b model.Loan) int { return cmp.Compare(b.ID, a.ID) }), nil
}

// ContactsByUser возвращает сохранённых получателей пользователя.
func (r *MemoryRepository) ContactsByUser(_ context.Context, userID int64) ([]model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedValues(r.state.contacts, func(c model.Contact) bool { return c.UserID == userID },
		func(a, b model.Contact) int { return cmp.Compare(a.ID, b.ID) }), nil
}

// SpamReports возвращает все жалобы, новые первыми.
func (r *MemoryRepository) SpamReports(_ context.Context) ([]model.SpamReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedValues(r.state.reports, func(model.SpamReport) bool { return true },
		func(a, b model.SpamReport) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		}), nil
}

func sortedValues[T any](m map[int64]T, keep func(T) bool, order func(a, b T) int) []T {
	var res []T
	for _, v := range m {
		if keep(v) {
			res = append(res, v)
		}
	}
	slices.SortFunc(res, order)
	return res
}

var _ Tx = (*memTx)(nil)
