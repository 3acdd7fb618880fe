package submission_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/opaline-simulator/internal/pricing"
	"github.com/noah-isme/opaline-simulator/internal/submission"
)

func validInput() submission.Input {
	return submission.Input{
		ContactName:        "Durand",
		ContactSurname:     "Alice",
		ContactEmail:       "alice@example.com",
		MonthlyClientCount: submission.DefaultMonthlyClientCount,
		KitCount1Person:    submission.DefaultKitCount1Person,
		KitCount2Person:    submission.DefaultKitCount2Person,
	}
}

func TestNewComputesAmounts(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	sub, err := submission.New(validInput(), at, pricing.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, at, sub.Timestamp())
	require.NotEqual(t, uuid.Nil, sub.ID())
	require.Equal(t, "2500.00", sub.Pricing().Revenue.String())
	require.Equal(t, "1822.50", sub.Pricing().TotalCost.String())
	require.Equal(t, "677.50", sub.Pricing().NetProfit.String())
}

func TestNewTrimsIdentity(t *testing.T) {
	in := validInput()
	in.ContactEmail = "  alice@example.com \n"
	in.ContactName = " Durand"
	sub, err := submission.New(in, time.Now(), pricing.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", sub.ContactEmail())
	require.Equal(t, "Durand", sub.ContactName())
}

func TestValidateMissingIdentity(t *testing.T) {
	in := validInput()
	in.ContactName = ""
	in.ContactEmail = "   "

	err := in.Validate()
	var verr *submission.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"contactEmail", "contactName"}, verr.Fields)

	_, err = submission.New(in, time.Now(), pricing.DefaultConfig())
	require.ErrorAs(t, err, &verr)
}

func TestValidateCounts(t *testing.T) {
	in := validInput()
	in.MonthlyClientCount = 0
	in.KitCount2Person = -1

	var verr *submission.ValidationError
	require.ErrorAs(t, in.Validate(), &verr)
	require.Equal(t, []string{"kitCount2Person", "monthlyClientCount"}, verr.Fields)
	require.True(t, verr.OnlyCounts())
}

func TestValidateCountUpperBound(t *testing.T) {
	in := validInput()
	in.MonthlyClientCount = pricing.MaxKitCount
	in.KitCount1Person = pricing.MaxKitCount
	in.KitCount2Person = pricing.MaxKitCount
	require.NoError(t, in.Validate())

	in.MonthlyClientCount = pricing.MaxKitCount + 1
	in.KitCount1Person = pricing.MaxKitCount + 1
	in.KitCount2Person = 7_000_000_000_000_000

	var verr *submission.ValidationError
	require.ErrorAs(t, in.Validate(), &verr)
	require.Equal(t, []string{"kitCount1Person", "kitCount2Person", "monthlyClientCount"}, verr.Fields)
}

func TestValidationErrorOnlyCounts(t *testing.T) {
	in := validInput()
	in.ContactEmail = ""
	in.KitCount1Person = -1

	var verr *submission.ValidationError
	require.ErrorAs(t, in.Validate(), &verr)
	require.False(t, verr.OnlyCounts())
	require.False(t, (*submission.ValidationError)(nil).OnlyCounts())
}

func TestValidateAcceptsZeroKits(t *testing.T) {
	in := validInput()
	in.KitCount1Person = 0
	in.KitCount2Person = 0
	require.NoError(t, in.Validate())
}
