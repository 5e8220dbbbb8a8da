package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/service"
)

type transactionResponse struct {
	ID               int64       `json:"id"`
	Ref              string      `json:"ref"`
	PairRef          string      `json:"pair_ref,omitempty"`
	Type             string      `json:"type"`
	Amount           money.Money `json:"amount"`
	Counterparty     string      `json:"counterparty,omitempty"`
	CounterpartyName string      `json:"counterparty_name,omitempty"`
	Description      string      `json:"description"`
	Status           string      `json:"status"`
	Reported         bool        `json:"reported"`
	CreatedAt        string      `json:"created_at"`
}

func newTransactionResponse(t model.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:               t.ID,
		Ref:              t.Ref.String(),
		Type:             string(t.Type),
		Amount:           t.Amount,
		Counterparty:     t.Counterparty,
		CounterpartyName: t.CounterpartyName,
		Description:      t.Description,
		Status:           string(t.Status),
		Reported:         t.Reported,
		CreatedAt:        t.CreatedAt.Format(time.RFC3339),
	}
	if t.PairRef != nil {
		resp.PairRef = t.PairRef.String()
	}
	return resp
}

func newTransactionsResponse(ts []model.Transaction) []transactionResponse {
	resp := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		resp = append(resp, newTransactionResponse(t))
	}
	return resp
}

type postingResponse struct {
	AccountNumber string                `json:"account_number"`
	Balance       money.Money           `json:"balance"`
	Goal          *goalResponse         `json:"goal,omitempty"`
	Transactions  []transactionResponse `json:"transactions"`
}

func newPostingResponse(p *service.Posting, today time.Time) postingResponse {
	resp := postingResponse{
		AccountNumber: p.Account.Number,
		Balance:       p.Account.Balance,
		Transactions:  newTransactionsResponse(p.Transactions),
	}
	if p.Goal != nil {
		g := newGoalResponse(service.ViewGoal(*p.Goal, today))
		resp.Goal = &g
	}
	return resp
}

type amountRequest struct {
	Amount money.Money `json:"amount"`
}

// GetBalance возвращает баланс, отложенные в цели средства и доступный остаток.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	snap, err := h.service.Snapshot(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get balance", err, zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Deposit зачисляет средства на счёт текущего пользователя.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.Deposit(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeError(w, "deposit", err, zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusOK, newPostingResponse(post, h.service.Today()))
}

// Withdraw списывает средства со счёта текущего пользователя.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.Withdraw(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeError(w, "withdraw", err, zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusOK, newPostingResponse(post, h.service.Today()))
}

type transferRequest struct {
	Recipient       string      `json:"recipient"`
	Amount          money.Money `json:"amount"`
	BeneficiaryName string      `json:"beneficiary_name"`
	SaveContact     bool        `json:"save_contact"`
}

// Transfer переводит средства на счёт другого клиента.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.Transfer(r.Context(), userID, service.TransferRequest{
		RecipientNumber: req.Recipient,
		Amount:          req.Amount,
		BeneficiaryName: req.BeneficiaryName,
		SaveContact:     req.SaveContact,
	})
	if err != nil {
		h.writeError(w, "transfer", err, zap.Int64("userID", userID), zap.String("recipient", req.Recipient))
		return
	}

	// Запись получателя отправителю не показываем.
	if len(post.Transactions) > 1 {
		post.Transactions = post.Transactions[:1]
	}
	writeJSON(w, http.StatusOK, newPostingResponse(post, h.service.Today()))
}

type contactResponse struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
}

// GetContacts возвращает сохранённых получателей текущего пользователя.
func (h *Handler) GetContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	contacts, err := h.service.ListContacts(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get contacts", err, zap.Int64("userID", userID))
		return
	}

	if len(contacts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		resp = append(resp, contactResponse{Name: c.Name, AccountNumber: c.AccountNumber})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTransactions возвращает журнал операций текущего пользователя, новые первыми.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	history, err := h.service.History(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get transactions", err, zap.Int64("userID", userID))
		return
	}

	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionsResponse(history))
}

// GetCustomerTransactions возвращает журнал операций клиента для сотрудника банка.
func (h *Handler) GetCustomerTransactions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	customerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	history, err := h.service.CustomerHistory(r.Context(), actorID, customerID)
	if err != nil {
		h.writeError(w, "get customer transactions", err, zap.Int64("staffID", actorID), zap.Int64("userID", customerID))
		return
	}

	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionsResponse(history))
}

type reportRequest struct {
	Reason string `json:"reason"`
}

type reportResponse struct {
	ID             int64  `json:"id"`
	ReporterID     int64  `json:"reporter_id"`
	TransactionID  int64  `json:"transaction_id"`
	ReportedUserID *int64 `json:"reported_user_id,omitempty"`
	Reason         string `json:"reason"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

func newReportResponse(s model.SpamReport) reportResponse {
	return reportResponse{
		ID:             s.ID,
		ReporterID:     s.ReporterID,
		TransactionID:  s.TransactionID,
		ReportedUserID: s.ReportedUserID,
		Reason:         s.Reason,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
	}
}

// ReportTransaction создаёт жалобу на операцию текущего пользователя.
func (h *Handler) ReportTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	transactionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req reportRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	report, err := h.service.ReportTransaction(r.Context(), userID, transactionID, req.Reason)
	if err != nil {
		h.writeError(w, "report transaction", err, zap.Int64("userID", userID), zap.Int64("transactionID", transactionID))
		return
	}

	writeJSON(w, http.StatusCreated, newReportResponse(*report))
}

// GetReports возвращает все жалобы для сотрудника банка.
func (h *Handler) GetReports(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}

	reports, err := h.service.ListReports(r.Context(), actorID)
	if err != nil {
		h.writeError(w, "get reports", err, zap.Int64("staffID", actorID))
		return
	}

	if len(reports) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]reportResponse, 0, len(reports))
	for _, s := range reports {
		resp = append(resp, newReportResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}
