package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("SARCASM_CALIBRATION", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "ark", cfg.LLMProvider)
	assert.Equal(t, 0.55, cfg.Sarcasm.StrictThreshold)
	assert.Equal(t, 0.25, cfg.Sarcasm.PossibleThreshold)
	assert.Nil(t, cfg.Sarcasm.Calibration)
	assert.Equal(t, 5*time.Second, cfg.Risk.Timeout)
	assert.Equal(t, 8*time.Second, cfg.Reply.Timeout)
	assert.Len(t, cfg.Reply.CrisisResources, 3)
	assert.Equal(t, 10, cfg.Limits.EphemeralMaxTurns)
	assert.Equal(t, 8, cfg.Memory.CopingCap)
	assert.Equal(t, 12, cfg.Memory.HistoryWindow)
	assert.Equal(t, 5*time.Second, cfg.Limits.RateLimit)
	assert.False(t, cfg.Limits.AnonConsentAllowed)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("SARCASM_STRICT_THRESHOLD", "0.7")
	t.Setenv("RATE_LIMIT_SECONDS", "2.5")
	t.Setenv("CRISIS_RESOURCES", "Samaritans: call 116 123 | Emergency: 999")
	t.Setenv("SARCASM_CALIBRATION", `{"intercept": -1.2, "combo": 2.1}`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, 0.7, cfg.Sarcasm.StrictThreshold)
	assert.Equal(t, 2500*time.Millisecond, cfg.Limits.RateLimit)
	assert.Equal(t, []string{"Samaritans: call 116 123", "Emergency: 999"}, cfg.Reply.CrisisResources)
	require.NotNil(t, cfg.Sarcasm.Calibration)
	assert.Equal(t, 2.1, cfg.Sarcasm.Calibration.Combo)
}

func TestMalformedCalibrationDisablesFeature(t *testing.T) {
	t.Setenv("SARCASM_CALIBRATION", "{not json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Sarcasm.Calibration)
}

func TestReversedThresholdsOnlyWarn(t *testing.T) {
	t.Setenv("SARCASM_STRICT_THRESHOLD", "0.2")
	t.Setenv("SARCASM_POSSIBLE_THRESHOLD", "0.4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.Sarcasm.StrictThreshold)
}

func TestMalformedValuesFail(t *testing.T) {
	cases := map[string]string{
		"SARCASM_STRICT_THRESHOLD": "high",
		"EPHEMERAL_MAX_TURNS":      "0",
		"ANON_CONSENT_ALLOWED":     "maybe",
		"RATE_LIMIT_SECONDS":       "-1",
		"LLM_PROVIDER":             "llama",
		"PORT":                     "80 80",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
