package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
)

type loanRequest struct {
	Amount money.Money `json:"amount"`
	Reason string      `json:"reason"`
}

type loanStatusRequest struct {
	Status string `json:"status"`
}

type loanResponse struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"user_id"`
	Amount     money.Money `json:"amount"`
	Reason     string      `json:"reason"`
	Status     string      `json:"status"`
	CreatedAt  string      `json:"created_at"`
	ReviewedAt *string     `json:"reviewed_at,omitempty"`
}

func newLoanResponse(l model.Loan) loanResponse {
	resp := loanResponse{
		ID:        l.ID,
		UserID:    l.UserID,
		Amount:    l.Amount,
		Reason:    l.Reason,
		Status:    string(l.Status),
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
	if l.ReviewedAt != nil {
		s := l.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &s
	}
	return resp
}

func (h *Handler) writeLoans(w http.ResponseWriter, loans []model.Loan) {
	if len(loans) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		resp = append(resp, newLoanResponse(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApplyForLoan создаёт заявку на кредит от текущего пользователя.
func (h *Handler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req loanRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	loan, err := h.service.ApplyForLoan(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, "apply for loan", err, zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusCreated, newLoanResponse(*loan))
}

// GetMyLoans возвращает заявки текущего пользователя.
func (h *Handler) GetMyLoans(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	loans, err := h.service.MyLoans(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get loans", err, zap.Int64("userID", userID))
		return
	}
	h.writeLoans(w, loans)
}

// GetLoansByStatus возвращает заявки с указанным в ?status= статусом для сотрудника банка.
func (h *Handler) GetLoansByStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}

	status := model.LoanStatus(r.URL.Query().Get("status"))
	loans, err := h.service.ListLoans(r.Context(), actorID, status)
	if err != nil {
		h.writeError(w, "list loans", err, zap.Int64("staffID", actorID), zap.String("status", string(status)))
		return
	}
	h.writeLoans(w, loans)
}

// SetLoanStatus одобряет или отклоняет заявку.
func (h *Handler) SetLoanStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req loanStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	loan, err := h.service.SetLoanStatus(r.Context(), actorID, loanID, model.LoanStatus(req.Status))
	if err != nil {
		h.writeError(w, "set loan status", err, zap.Int64("staffID", actorID), zap.Int64("loanID", loanID))
		return
	}

	writeJSON(w, http.StatusOK, newLoanResponse(*loan))
}

type emiRequest struct {
	Principal  money.Money     `json:"principal"`
	Rate       decimal.Decimal `json:"rate"`
	Tenure     int             `json:"tenure"`
	TenureType string          `json:"tenure_type"`
}

// CalculateEMI рассчитывает ежемесячный платёж по кредиту.
func (h *Handler) CalculateEMI(w http.ResponseWriter, r *http.Request) {
	var req emiRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	schedule, err := h.service.CalculateEMI(req.Principal, req.Rate, req.Tenure, req.TenureType)
	if err != nil {
		h.writeError(w, "calculate emi", err)
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}
