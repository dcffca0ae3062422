package service

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/guard"
	"github.com/rafflio/platform/internal/repository"
)

// AuthService handles admin login and admin user creation.
type AuthService struct {
	db     DB
	users  repository.AdminUserRepository
	jwtMgr *auth.JWTManager
}

// NewAuthService creates a new AuthService.
func NewAuthService(db DB, users repository.AdminUserRepository, jwtMgr *auth.JWTManager) *AuthService {
	return &AuthService{db: db, users: users, jwtMgr: jwtMgr}
}

// LoginInput holds the login request fields.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned on successful login.
type AuthResult struct {
	Token string            `json:"token"`
	User  *domain.AdminUser `json:"user"`
}

// Login authenticates an admin and returns a JWT. Five failures within the
// lockout window lock the email.
func (s *AuthService) Login(ctx context.Context, input LoginInput, ip string) (*AuthResult, error) {
	email := domain.NormalizeEmail(input.Email)
	if err := guard.CheckLocked(ctx, s.db, email); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, domain.ErrInternal("find admin user", err)
	}
	if !user.CanSignIn() {
		guard.RecordAttempt(ctx, s.db, email, ip, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		guard.RecordAttempt(ctx, s.db, email, ip, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	guard.RecordAttempt(ctx, s.db, email, ip, true)

	token, err := s.jwtMgr.GenerateToken(auth.RealmAdmin, user.ID, user.Email, user.Role)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// CreateAdminInput holds the fields for a new admin user.
type CreateAdminInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// CreateAdmin registers an admin user with a bcrypt password hash.
func (s *AuthService) CreateAdmin(ctx context.Context, input CreateAdminInput) (*domain.AdminUser, error) {
	input.Email = domain.NormalizeEmail(input.Email)
	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if len(input.Password) < 8 {
		return nil, domain.ErrValidation("password must be at least 8 characters")
	}
	if input.Role == "" {
		input.Role = auth.RoleAdmin
	}
	if !auth.IsAdminRole(input.Role) {
		return nil, domain.ErrValidation("role must be one of viewer, admin, superadmin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	user := &domain.AdminUser{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hash),
		DisplayName:  input.DisplayName,
		Role:         input.Role,
		Active:       true,
	}
	if err := s.users.Create(ctx, s.db, user); err != nil {
		return nil, internal("create admin user", err)
	}
	return user, nil
}
