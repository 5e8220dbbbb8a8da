package handler

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/service"
)

const dateLayout = "2006-01-02"

type goalRequest struct {
	Name           string      `json:"name"`
	Target         money.Money `json:"target_amount"`
	Deadline       string      `json:"deadline"`
	Schedule       string      `json:"saving_schedule"`
	InitialBalance money.Money `json:"initial_balance"`
}

func (r goalRequest) toService() (service.GoalRequest, error) {
	deadline, err := time.Parse(dateLayout, r.Deadline)
	if err != nil {
		return service.GoalRequest{}, fmt.Errorf("%w: %q", service.ErrInvalidDeadline, r.Deadline)
	}
	return service.GoalRequest{
		Name:           r.Name,
		Target:         r.Target,
		Deadline:       deadline,
		Schedule:       model.SavingSchedule(r.Schedule),
		InitialBalance: r.InitialBalance,
	}, nil
}

type goalResponse struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Target       money.Money `json:"target_amount"`
	Balance      money.Money `json:"balance"`
	Deadline     string      `json:"deadline"`
	Schedule     string      `json:"saving_schedule"`
	LastSavedAt  *string     `json:"last_saved_at,omitempty"`
	DaysLeft     int         `json:"days_left"`
	Remaining    money.Money `json:"remaining"`
	Progress     string      `json:"progress_percent"`
	NearDeadline bool        `json:"near_deadline"`
	Warning      string      `json:"warning,omitempty"`
}

func newGoalResponse(v service.GoalView) goalResponse {
	resp := goalResponse{
		ID:           v.Goal.ID,
		Name:         v.Goal.Name,
		Target:       v.Goal.Target,
		Balance:      v.Goal.Balance,
		Deadline:     v.Goal.Deadline.Format(dateLayout),
		Schedule:     string(v.Goal.Schedule),
		DaysLeft:     v.DaysLeft,
		Remaining:    v.Remaining,
		Progress:     v.Progress.StringFixed(2),
		NearDeadline: v.NearDeadline,
		Warning:      v.Warning,
	}
	if v.Goal.LastSavedAt != nil {
		s := v.Goal.LastSavedAt.Format(time.RFC3339)
		resp.LastSavedAt = &s
	}
	return resp
}

// GetGoals возвращает цели текущего пользователя с предупреждениями о сроках.
func (h *Handler) GetGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListGoals(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get goals", err, zap.Int64("userID", userID))
		return
	}

	if len(views) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]goalResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, newGoalResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateGoal создаёт цель для текущего пользователя.
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req goalRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	goal, err := req.toService()
	if err != nil {
		h.writeError(w, "create goal", err, zap.Int64("userID", userID))
		return
	}

	post, err := h.service.CreateGoal(r.Context(), userID, goal)
	if err != nil {
		h.writeError(w, "create goal", err, zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusCreated, newPostingResponse(post, h.service.Today()))
}

// UpdateGoal изменяет параметры цели.
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req goalRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	upd, err := req.toService()
	if err != nil {
		h.writeError(w, "update goal", err, zap.Int64("userID", userID), zap.Int64("goalID", goalID))
		return
	}

	g, err := h.service.UpdateGoal(r.Context(), userID, goalID, upd)
	if err != nil {
		h.writeError(w, "update goal", err, zap.Int64("userID", userID), zap.Int64("goalID", goalID))
		return
	}

	writeJSON(w, http.StatusOK, newGoalResponse(service.ViewGoal(*g, h.service.Today())))
}

// Contribute переносит средства со счёта в цель.
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req amountRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.Contribute(r.Context(), userID, goalID, req.Amount)
	if err != nil {
		h.writeError(w, "contribute", err, zap.Int64("userID", userID), zap.Int64("goalID", goalID))
		return
	}

	writeJSON(w, http.StatusOK, newPostingResponse(post, h.service.Today()))
}

// WithdrawGoal возвращает весь остаток цели на счёт.
func (h *Handler) WithdrawGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	post, err := h.service.WithdrawAll(r.Context(), userID, goalID)
	if err != nil {
		h.writeError(w, "withdraw goal", err, zap.Int64("userID", userID), zap.Int64("goalID", goalID))
		return
	}

	writeJSON(w, http.StatusOK, newPostingResponse(post, h.service.Today()))
}

// DeleteGoal удаляет цель, возвращая её остаток на счёт.
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	post, err := h.service.DeleteGoal(r.Context(), userID, goalID)
	if err != nil {
		h.writeError(w, "delete goal", err, zap.Int64("userID", userID), zap.Int64("goalID", goalID))
		return
	}

	post.Goal = nil
	writeJSON(w, http.StatusOK, newPostingResponse(post, h.service.Today()))
}
