package domain

import (
	"strings"
	"time"
)

// CustomerTier enumerates service tiers.
type CustomerTier string

const (
	CustomerTierStandard   CustomerTier = "STANDARD"
	CustomerTierPremium    CustomerTier = "PREMIUM"
	CustomerTierEnterprise CustomerTier = "ENTERPRISE"
)

// Customer is keyed by email.
type Customer struct {
	ID          string
	Email       string
	Name        string
	Tier        CustomerTier
	LastContact time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayNameFromEmail derives a fallback name from the local part of an address.
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
