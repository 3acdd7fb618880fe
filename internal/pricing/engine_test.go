package pricing_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/opaline-simulator/internal/pricing"
)

func TestComputeDefaultPriceList(t *testing.T) {
	res := pricing.Compute(100, 50, pricing.DefaultConfig())
	require.Equal(t, "2500.00", res.Revenue.String())
	require.Equal(t, "1822.50", res.TotalCost.String())
	require.Equal(t, "677.50", res.NetProfit.String())
}

func TestComputeZeroVolumes(t *testing.T) {
	res := pricing.Compute(0, 0, pricing.DefaultConfig())
	require.Equal(t, pricing.Result{}, res)
	require.Equal(t, "0.00", res.NetProfit.String())
}

func TestComputeClampsNegativeCounts(t *testing.T) {
	res := pricing.Compute(-3, 2, pricing.DefaultConfig())
	require.Equal(t, pricing.Compute(0, 2, pricing.DefaultConfig()), res)
}

func TestComputeClampsOversizedCounts(t *testing.T) {
	cfg := pricing.DefaultConfig()
	atMax := pricing.Compute(pricing.MaxKitCount, pricing.MaxKitCount, cfg)
	require.Equal(t, "36000000.00", atMax.Revenue.String())
	require.Equal(t, "24300000.00", atMax.TotalCost.String())
	require.Equal(t, atMax.Revenue-atMax.TotalCost, atMax.NetProfit)

	huge := pricing.Compute(7_000_000_000_000_000, 7_000_000_000_000_000, cfg)
	require.Equal(t, atMax, huge)
	require.Positive(t, int64(huge.Revenue))
}

func TestComputeIsLinear(t *testing.T) {
	cfg := pricing.Config{
		PricePerKit1Person: pricing.MustParseMoney("14"),
		PricePerKit2Person: pricing.MustParseMoney("22"),
		CostPerKit:         pricing.MustParseMoney("12.15"),
	}
	for k1 := 0; k1 <= 40; k1 += 7 {
		for k2 := 0; k2 <= 40; k2 += 5 {
			a := pricing.Compute(k1, k2, cfg)
			b := pricing.Compute(k1+1, k2, cfg)
			c := pricing.Compute(k1, k2+1, cfg)
			require.Equal(t, cfg.PricePerKit1Person, b.Revenue-a.Revenue)
			require.Equal(t, cfg.PricePerKit2Person, c.Revenue-a.Revenue)
			require.Equal(t, cfg.CostPerKit, b.TotalCost-a.TotalCost)
			require.Equal(t, a.Revenue-a.TotalCost, a.NetProfit)

			// Re-deriving profit from the displayed values must not drift.
			rev, err := pricing.ParseMoney(a.Revenue.String())
			require.NoError(t, err)
			cost, err := pricing.ParseMoney(a.TotalCost.String())
			require.NoError(t, err)
			require.Equal(t, a.NetProfit, rev-cost)
		}
	}
}

func TestParseMoney(t *testing.T) {
	cases := map[string]pricing.Money{
		"12.15":  1215,
		"14":     1400,
		" 22.0 ": 2200,
		"0":      0,
		"12,15":  1215,
		"3.100":  310,
	}
	for in, want := range cases {
		got, err := pricing.ParseMoney(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "abc", "-1", "1.005"} {
		_, err := pricing.ParseMoney(bad)
		require.ErrorIs(t, err, pricing.ErrInvalidAmount, bad)
	}
}

func TestMoneyJSON(t *testing.T) {
	res := pricing.Compute(100, 50, pricing.DefaultConfig())
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{"revenue":2500.00,"totalCost":1822.50,"netProfit":677.50}`, string(raw))

	var decoded pricing.Result
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, res, decoded)
}
