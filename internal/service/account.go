package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/repository"
)

// AccountService manages the bank transfer payee list.
type AccountService struct {
	db       DB
	accounts repository.AccountRepository
}

// NewAccountService creates an AccountService.
func NewAccountService(db DB, accounts repository.AccountRepository) *AccountService {
	return &AccountService{db: db, accounts: accounts}
}

// AccountInput holds the editable account fields.
type AccountInput struct {
	CBU      string `json:"cbu"`
	Alias    string `json:"alias"`
	Titular  string `json:"titular"`
	Banco    string `json:"banco"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp"`
}

func (in AccountInput) toAccount(id uuid.UUID) (*domain.Account, error) {
	a := &domain.Account{
		ID:       id,
		CBU:      strings.TrimSpace(in.CBU),
		Alias:    strings.TrimSpace(in.Alias),
		Titular:  strings.TrimSpace(in.Titular),
		Banco:    strings.TrimSpace(in.Banco),
		Email:    strings.TrimSpace(in.Email),
		Whatsapp: strings.TrimSpace(in.Whatsapp),
	}
	if err := domain.ValidateCBU(a.CBU); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if a.Email != "" {
		if err := domain.ValidateEmail(a.Email); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
	}
	return a, nil
}

func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	list, err := s.accounts.List(ctx, s.db)
	if err != nil {
		return nil, domain.ErrInternal("list accounts", err)
	}
	return list, nil
}

func (s *AccountService) Create(ctx context.Context, in AccountInput) (*domain.Account, error) {
	a, err := in.toAccount(uuid.New())
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, s.db, a); err != nil {
		return nil, internal("create account", err)
	}
	return a, nil
}

func (s *AccountService) Update(ctx context.Context, id uuid.UUID, in AccountInput) (*domain.Account, error) {
	a, err := in.toAccount(id)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Update(ctx, s.db, a); err != nil {
		return nil, internal("update account", err)
	}
	return s.accounts.FindByID(ctx, s.db, id)
}

func (s *AccountService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.accounts.Delete(ctx, s.db, id); err != nil {
		return internal("delete account", err)
	}
	return nil
}
