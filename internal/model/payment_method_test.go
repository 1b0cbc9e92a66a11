package model

import (
	"encoding/json"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestPaymentMethodRoundTripKeepsVariant(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in := MobileMoney{Provider: "mpesa", PhoneNumber: "+254700000001", AccountName: "Shop",
		Verify: Verification{Status: VerificationVerified, VerifiedAt: &at, VerifiedBy: "admin-1"}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := DecodePaymentMethod(KindMobileMoney, raw)
	require.NoError(t, err)
	require.Equal(t, KindMobileMoney, out.Kind())
	require.True(t, out.SameDestination(in))
	require.Equal(t, VerificationVerified, out.Verification().Status)

	_, err = DecodePaymentMethod("cheque", raw)
	require.Error(t, err)
}

func TestSameDestinationIgnoresVerification(t *testing.T) {
	a := BankAccount{AccountName: "A", AccountNumber: "1", BankName: "B"}
	b := a.WithVerification(Verification{Status: VerificationVerified})
	require.True(t, a.SameDestination(b))
	require.False(t, a.SameDestination(BankAccount{AccountName: "A", AccountNumber: "2", BankName: "B"}))
	require.False(t, a.SameDestination(MobileMoney{AccountName: "A"}))
}

func TestSellerBalanceRecompute(t *testing.T) {
	b := SellerBalance{Balance: 1000, Locked: 300, Pending: 200}.Recompute()
	require.EqualValues(t, 500, b.Withdrawable)
	require.True(t, b.Consistent())

	b = SellerBalance{Balance: 100, Locked: 300}.Recompute()
	require.EqualValues(t, 0, b.Withdrawable)

	b.Withdrawable = 7
	require.False(t, b.Consistent())
}
