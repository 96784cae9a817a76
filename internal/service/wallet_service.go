package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"agbado/internal/models"
	"agbado/internal/repository"
	"agbado/pkg/payment"
)

// WalletService owns wallet provisioning and dedicated deposit account
// assignment.
type WalletService struct {
	wallets  *repository.WalletRepository
	provider payment.TransferProvider
	log      *zap.Logger
}

func NewWalletService(wallets *repository.WalletRepository, provider payment.TransferProvider, log *zap.Logger) *WalletService {
	return &WalletService{wallets: wallets, provider: provider, log: log}
}

// Provision creates the user's wallet if it does not exist yet. Called
// explicitly at registration rather than implicitly on first read.
func (s *WalletService) Provision(userID uint) (*models.Wallet, error) {
	return s.wallets.GetOrCreate(userID)
}

func (s *WalletService) Get(userID uint) (*models.Wallet, error) {
	return s.wallets.GetOrCreate(userID)
}

// EnsureDedicatedAccount registers the user with the provider and assigns a
// virtual deposit account, skipping work already done. Safe to call on every
// wallet read.
func (s *WalletService) EnsureDedicatedAccount(ctx context.Context, user *models.User, wallet *models.Wallet) error {
	if wallet.HasDVA() {
		return nil
	}
	customer := providerCustomer(user)
	if wallet.ProviderCustomerCode == nil || *wallet.ProviderCustomerCode == "" {
		code, err := s.provider.CreateCustomer(ctx, customer)
		if err != nil {
			return err
		}
		wallet.ProviderCustomerCode = &code
		if err := s.wallets.Save(wallet); err != nil {
			return err
		}
	}
	dva, err := s.provider.CreateDedicatedAccount(ctx, *wallet.ProviderCustomerCode, customer)
	if err != nil {
		return err
	}
	now := time.Now()
	wallet.DVAAccountNumber = &dva.AccountNumber
	wallet.DVAAccountName = &dva.AccountName
	wallet.DVABankName = &dva.BankName
	wallet.DVAAssignedAt = &now
	if err := s.wallets.Save(wallet); err != nil {
		return err
	}
	s.log.Info("dedicated account assigned",
		zap.Uint("user_id", user.ID),
		zap.String("bank", dva.BankName))
	return nil
}
