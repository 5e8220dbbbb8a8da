package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/repository"
)

const accountNumberAttempts = 10

// Registration содержит данные для регистрации клиента или сотрудника.
type Registration struct {
	Email    string
	Username string
	Name     string
	Mobile   string
	Place    string
	Password string
}

func (r Registration) normalized() (Registration, error) {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
	r.Name = strings.TrimSpace(r.Name)
	if r.Email == "" || !strings.Contains(r.Email, "@") || r.Password == "" || r.Name == "" {
		return r, ErrInvalidRegistration
	}
	return r, nil
}

// RegisterUser регистрирует клиента и открывает ему счёт.
func (s *Service) RegisterUser(ctx context.Context, reg Registration) (int64, error) {
	reg, err := reg.normalized()
	if err != nil {
		return 0, err
	}

	var userID int64
	err = s.runTx(ctx, "register", func(tx repository.Tx) error {
		u := &model.User{
			Email:        reg.Email,
			Username:     reg.Username,
			Name:         reg.Name,
			Mobile:       reg.Mobile,
			Place:        reg.Place,
			PasswordHash: hashPassword(reg.Email, reg.Password),
			IsActive:     true,
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if _, err := s.openAccount(ctx, tx, u.ID); err != nil {
			return err
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("user registered", zap.Int64("userID", userID))
	return userID, nil
}

// RegisterStaff регистрирует сотрудника банка. Требует ключ регистрации сотрудников.
func (s *Service) RegisterStaff(ctx context.Context, reg Registration, key string) (int64, error) {
	if s.staffKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.staffKey)) != 1 {
		return 0, ErrForbidden
	}
	reg, err := reg.normalized()
	if err != nil {
		return 0, err
	}
	if reg.Username == "" {
		reg.Username = staffUsername(reg.Name)
	}

	var userID int64
	err = s.runTx(ctx, "register_staff", func(tx repository.Tx) error {
		u := &model.User{
			Email:        reg.Email,
			Username:     reg.Username,
			Name:         reg.Name,
			Mobile:       reg.Mobile,
			Place:        reg.Place,
			PasswordHash: hashPassword(reg.Email, reg.Password),
			IsStaff:      true,
			IsActive:     true,
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("staff registered", zap.Int64("userID", userID))
	return userID, nil
}

func staffUsername(name string) string {
	base := strings.ToLower(strings.Join(strings.Fields(name), ""))
	return fmt.Sprintf("%s%04d", base, rand.IntN(10000))
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(email, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 || !u.IsActive {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// DeleteUser удаляет пользователя вместе со счётом, целями и историей.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.Int64("userID", userID))
	return nil
}

// ListCustomers возвращает список клиентов. Доступно только сотрудникам.
func (s *Service) ListCustomers(ctx context.Context, actorID int64) ([]model.User, error) {
	if err := s.requireStaff(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx)
}

func (s *Service) requireStaff(ctx context.Context, actorID int64) error {
	u, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !u.IsStaff || !u.IsActive {
		return ErrForbidden
	}
	return nil
}

// openAccount создаёт счёт со свободным номером.
func (s *Service) openAccount(ctx context.Context, tx repository.Tx, userID int64) (*model.Account, error) {
	for range accountNumberAttempts {
		a, err := tx.CreateAccount(ctx, userID, s.newAccountNumber())
		if errors.Is(err, repository.ErrAccountNumberTaken) {
			continue
		}
		return a, err
	}
	return nil, fmt.Errorf("open account for user %d: %w", userID, repository.ErrAccountNumberTaken)
}

// lockOwnAccount блокирует счёт пользователя, открывая его при первом обращении.
func (s *Service) lockOwnAccount(ctx context.Context, tx repository.Tx, userID int64) (model.Account, error) {
	a, err := tx.AccountByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		a, err = s.openAccount(ctx, tx, userID)
	}
	if err != nil {
		return model.Account{}, err
	}

	locked, err := tx.LockAccounts(ctx, a.ID)
	if err != nil {
		return model.Account{}, err
	}
	return locked[0], nil
}
