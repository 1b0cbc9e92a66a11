package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type PaymentMethodKind string

const (
	KindBankAccount PaymentMethodKind = "bank_account"
	KindMobileMoney PaymentMethodKind = "mobile_money"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Verification is the trust state of one payout destination.
type Verification struct {
	Status          VerificationStatus `json:"status"`
	VerifiedAt      *time.Time         `json:"verified_at,omitempty"`
	VerifiedBy      string             `json:"verified_by,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
}

// PaymentMethod is either a BankAccount or a MobileMoney destination.
type PaymentMethod interface {
	Kind() PaymentMethodKind
	Verification() Verification
	WithVerification(v Verification) PaymentMethod
	// SameDestination compares payout details, ignoring verification state.
	SameDestination(other PaymentMethod) bool
	isPaymentMethod()
}

type BankAccount struct {
	AccountName   string       `json:"account_name"`
	AccountNumber string       `json:"account_number"`
	BankName      string       `json:"bank_name"`
	BranchCode    string       `json:"branch_code,omitempty"`
	Verify        Verification `json:"verification"`
}

func (BankAccount) Kind() PaymentMethodKind      { return KindBankAccount }
func (b BankAccount) Verification() Verification { return b.Verify }
func (BankAccount) isPaymentMethod()             {}
func (b BankAccount) WithVerification(v Verification) PaymentMethod {
	b.Verify = v
	return b
}

func (b BankAccount) SameDestination(other PaymentMethod) bool {
	o, ok := other.(BankAccount)
	if !ok {
		return false
	}
	return b.AccountName == o.AccountName && b.AccountNumber == o.AccountNumber &&
		b.BankName == o.BankName && b.BranchCode == o.BranchCode
}

type MobileMoney struct {
	Provider    string       `json:"provider"`
	PhoneNumber string       `json:"phone_number"`
	AccountName string       `json:"account_name"`
	Verify      Verification `json:"verification"`
}

func (MobileMoney) Kind() PaymentMethodKind      { return KindMobileMoney }
func (m MobileMoney) Verification() Verification { return m.Verify }
func (MobileMoney) isPaymentMethod()             {}
func (m MobileMoney) WithVerification(v Verification) PaymentMethod {
	m.Verify = v
	return m
}

func (m MobileMoney) SameDestination(other PaymentMethod) bool {
	o, ok := other.(MobileMoney)
	if !ok {
		return false
	}
	return m.Provider == o.Provider && m.PhoneNumber == o.PhoneNumber && m.AccountName == o.AccountName
}

// DecodePaymentMethod rebuilds a PaymentMethod from its kind and JSON details.
func DecodePaymentMethod(kind PaymentMethodKind, raw []byte) (PaymentMethod, error) {
	switch kind {
	case KindBankAccount:
		var b BankAccount
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case KindMobileMoney:
		var m MobileMoney
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown payment method kind %q", kind)
	}
}

func ParsePaymentMethodKind(s string) (PaymentMethodKind, bool) {
	switch PaymentMethodKind(s) {
	case KindBankAccount, KindMobileMoney:
		return PaymentMethodKind(s), true
	}
	return "", false
}
