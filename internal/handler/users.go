package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/service"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Place    string `json:"place"`
	Password string `json:"password"`
}

func (r registerRequest) registration() service.Registration {
	return service.Registration{
		Email:    r.Email,
		Username: r.Username,
		Name:     r.Name,
		Mobile:   r.Mobile,
		Place:    r.Place,
		Password: r.Password,
	}
}

type staffRegisterRequest struct {
	registerRequest
	Key string `json:"key"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового клиента.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.registration())
	if err != nil {
		h.writeError(w, "register user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// RegisterStaff обрабатывает регистрацию сотрудника банка по ключу.
func (h *Handler) RegisterStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRegisterRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	userID, err := h.service.RegisterStaff(r.Context(), req.registration(), req.Key)
	if err != nil {
		h.writeError(w, "register staff", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, "login user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// DeleteAccount удаляет текущего пользователя со всеми данными.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		h.writeError(w, "delete user", err, zap.Int64("userID", userID))
		return
	}

	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type customerResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name"`
	Mobile    string `json:"mobile,omitempty"`
	Place     string `json:"place,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// ListCustomers возвращает список клиентов для сотрудника банка.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}

	users, err := h.service.ListCustomers(r.Context(), actorID)
	if err != nil {
		h.writeError(w, "list customers", err, zap.Int64("staffID", actorID))
		return
	}

	if len(users) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]customerResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, customerResponse{
			ID:        u.ID,
			Email:     u.Email,
			Username:  u.Username,
			Name:      u.Name,
			Mobile:    u.Mobile,
			Place:     u.Place,
			IsActive:  u.IsActive,
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
