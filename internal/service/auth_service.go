package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"agbado/config"
	"agbado/internal/auth"
	"agbado/internal/models"
	"agbado/internal/repository"
	"agbado/pkg/payment"
)

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type AuthService struct {
	users   *repository.UserRepository
	wallets *WalletService
	jwtCfg  *config.JWTConfig
	log     *zap.Logger
}

func NewAuthService(users *repository.UserRepository, wallets *WalletService, jwtCfg *config.JWTConfig, log *zap.Logger) *AuthService {
	return &AuthService{users: users, wallets: wallets, jwtCfg: jwtCfg, log: log}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register creates the user, provisions their wallet, and makes a
// best-effort attempt at assigning a dedicated deposit account. DVA failure
// never fails registration; the wallet handler retries lazily.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, *TokenPair, error) {
	if _, err := s.users.GetByEmail(in.Email); err == nil {
		return nil, nil, ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	user := &models.User{
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(user); err != nil {
		return nil, nil, err
	}

	wallet, err := s.wallets.Provision(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.wallets.EnsureDedicatedAccount(ctx, user, wallet); err != nil {
		s.log.Warn("dedicated account assignment deferred",
			zap.Uint("user_id", user.ID), zap.Error(err))
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID))
	return user, tokens, nil
}

func (s *AuthService) Login(email, password string) (*models.User, *TokenPair, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

func (s *AuthService) Refresh(refreshToken string) (*TokenPair, error) {
	userID, err := auth.ParseRefreshToken(s.jwtCfg, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	return s.issueTokens(user)
}

func (s *AuthService) issueTokens(user *models.User) (*TokenPair, error) {
	access, err := auth.GenerateAccessToken(s.jwtCfg, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(s.jwtCfg, user.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// providerCustomer builds the provider customer payload from a user record.
func providerCustomer(user *models.User) payment.Customer {
	return payment.Customer{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
	}
}
