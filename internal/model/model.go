// Package model содержит доменные сущности банковского сервиса.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/smartbank/internal/money"
)

// User представляет клиента или сотрудника банка.
type User struct {
	ID           int64
	Email        string
	Username     string
	Name         string
	Mobile       string
	Place        string
	PasswordHash []byte
	IsStaff      bool
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
}

// Account — счёт пользователя. У каждого пользователя не больше одного счёта.
type Account struct {
	ID        int64
	UserID    int64
	Number    string
	Balance   money.Money
	CreatedAt time.Time
}

// SavingSchedule описывает периодичность пополнения цели. Носит справочный характер.
type SavingSchedule string

const (
	ScheduleNone    SavingSchedule = "NONE"
	ScheduleDaily   SavingSchedule = "DAILY"
	ScheduleWeekly  SavingSchedule = "WEEKLY"
	ScheduleMonthly SavingSchedule = "MONTHLY"
	ScheduleYearly  SavingSchedule = "YEARLY"
)

// Valid сообщает, что значение входит в список известных периодичностей.
func (s SavingSchedule) Valid() bool {
	switch s {
	case ScheduleNone, ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleYearly:
		return true
	}
	return false
}

// Goal — финансовая цель (Smart Saver) с отложенным остатком.
type Goal struct {
	ID          int64
	UserID      int64
	Name        string
	Target      money.Money
	Deadline    time.Time
	Schedule    SavingSchedule
	Balance     money.Money
	LastSavedAt *time.Time
	CreatedAt   time.Time
}

// TransactionType описывает вид записи журнала операций.
type TransactionType string

const (
	TransactionDeposit            TransactionType = "Deposit"
	TransactionWithdraw           TransactionType = "Withdraw"
	TransactionTransfer           TransactionType = "Transfer"
	TransactionReceived           TransactionType = "Received"
	TransactionSmartSaverDeposit  TransactionType = "Smart Saver Deposit"
	TransactionSmartSaverWithdraw TransactionType = "Smart Saver Withdrawal"
)

// TransactionStatus описывает итог операции.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "Success"
	TransactionFailed  TransactionStatus = "Failed"
)

// Transaction — неизменяемая запись журнала операций.
type Transaction struct {
	ID               int64
	Ref              uuid.UUID
	PairRef          *uuid.UUID
	UserID           int64
	Type             TransactionType
	Amount           money.Money
	Counterparty     string
	CounterpartyName string
	Description      string
	Status           TransactionStatus
	IsFraud          bool
	Reported         bool
	CreatedAt        time.Time
}

// LoanStatus описывает состояние заявки на кредит.
type LoanStatus string

const (
	LoanPending  LoanStatus = "Pending"
	LoanApproved LoanStatus = "Approved"
	LoanRejected LoanStatus = "Rejected"
)

// Valid сообщает, что статус известен.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanPending, LoanApproved, LoanRejected:
		return true
	}
	return false
}

// Loan — заявка на кредит.
type Loan struct {
	ID         int64
	UserID     int64
	Amount     money.Money
	Reason     string
	Status     LoanStatus
	ReviewedBy *int64
	CreatedAt  time.Time
	ReviewedAt *time.Time
}

// Contact — сохранённый получатель перевода.
type Contact struct {
	ID            int64
	UserID        int64
	Name          string
	AccountNumber string
	CreatedAt     time.Time
}

// SpamReport — жалоба клиента на операцию.
type SpamReport struct {
	ID             int64
	ReporterID     int64
	TransactionID  int64
	ReportedUserID *int64
	Reason         string
	Status         string
	CreatedAt      time.Time
}

// Snapshot — сводка по счёту пользователя.
type Snapshot struct {
	AccountNumber string      `json:"account_number"`
	Balance       money.Money `json:"balance"`
	GoalSavings   money.Money `json:"goal_savings"`
	Usable        money.Money `json:"usable_balance"`
}
