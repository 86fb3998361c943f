package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, OverpaymentReject, cfg.Fees.OverpaymentPolicy)
	require.True(t, cfg.Fees.TermsDerivedFromNet)
	require.True(t, cfg.Promotions.RequireFeesPaid)
	require.False(t, cfg.Reservations.RequireApplicationFee)
	require.Equal(t, ReceiptBackendLocal, cfg.Receipts.Backend)
	require.Equal(t, 10*time.Second, cfg.Database.TxTimeout)
	require.Equal(t, 5*time.Minute, cfg.Dashboard.CacheTTL)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("FEE_OVERPAYMENT_POLICY", "ACCEPT")
	v.Set("RECEIPTS_BACKEND", "s3")
	v.Set("DASHBOARD_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)
	require.Equal(t, OverpaymentAccept, cfg.Fees.OverpaymentPolicy)
	require.Equal(t, ReceiptBackendS3, cfg.Receipts.Backend)
	require.Equal(t, 5*time.Minute, cfg.Dashboard.CacheTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestFromViperUnknownPolicyFallsBackToReject(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("FEE_OVERPAYMENT_POLICY", "clamp")

	require.Equal(t, OverpaymentReject, fromViper(v).Fees.OverpaymentPolicy)
}
