package database

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"agbado/internal/repository"
	"agbado/pkg/payment"
)

// defaultBanks covers the common Nigerian banks so name lookups work before
// the first successful provider sync.
var defaultBanks = []payment.Bank{
	{Name: "Access Bank", Code: "044", Slug: "access-bank"},
	{Name: "Citibank Nigeria", Code: "023", Slug: "citibank-nigeria"},
	{Name: "Ecobank Nigeria", Code: "050", Slug: "ecobank-nigeria"},
	{Name: "Fidelity Bank", Code: "070", Slug: "fidelity-bank"},
	{Name: "First Bank of Nigeria", Code: "011", Slug: "first-bank-of-nigeria"},
	{Name: "First City Monument Bank", Code: "214", Slug: "first-city-monument-bank"},
	{Name: "Guaranty Trust Bank", Code: "058", Slug: "guaranty-trust-bank"},
	{Name: "Keystone Bank", Code: "082", Slug: "keystone-bank"},
	{Name: "Kuda Bank", Code: "50211", Slug: "kuda-bank"},
	{Name: "Opay", Code: "999992", Slug: "paycom"},
	{Name: "Palmpay", Code: "999991", Slug: "palmpay"},
	{Name: "Polaris Bank", Code: "076", Slug: "polaris-bank"},
	{Name: "Providus Bank", Code: "101", Slug: "providus-bank"},
	{Name: "Stanbic IBTC Bank", Code: "221", Slug: "stanbic-ibtc-bank"},
	{Name: "Standard Chartered Bank", Code: "068", Slug: "standard-chartered-bank"},
	{Name: "Sterling Bank", Code: "232", Slug: "sterling-bank"},
	{Name: "Union Bank of Nigeria", Code: "032", Slug: "union-bank-of-nigeria"},
	{Name: "United Bank For Africa", Code: "033", Slug: "united-bank-for-africa"},
	{Name: "Unity Bank", Code: "215", Slug: "unity-bank"},
	{Name: "Wema Bank", Code: "035", Slug: "wema-bank"},
	{Name: "Zenith Bank", Code: "057", Slug: "zenith-bank"},
}

// SeedBanks refreshes the bank directory from the provider, falling back to
// the built-in list when the provider is unreachable. Upserts keyed by code,
// so reruns are safe.
func SeedBanks(db *gorm.DB, provider payment.TransferProvider, log *zap.Logger) {
	repo := repository.NewBankRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	banks, err := provider.ListBanks(ctx)
	if err != nil || len(banks) == 0 {
		if err != nil {
			log.Warn("provider bank sync failed, using built-in list", zap.Error(err))
		}
		banks = defaultBanks
	}
	for _, b := range banks {
		if err := repo.Upsert(b.Name, b.Code, b.Slug); err != nil {
			log.Warn("bank seed upsert failed",
				zap.String("bank", b.Name), zap.Error(err))
		}
	}
	log.Info("bank directory seeded", zap.Int("count", len(banks)))
}
