package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_STREAM", "ARK_TIMEOUT",
		"CHAT_RESPONDER", "CHAT_SIM_MIN_DELAY", "CHAT_SIM_MAX_DELAY", "CHAT_HISTORY_LIMIT",
		"CLIPBOARD_RESET_DELAY", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.AI.Enabled())
	assert.True(t, cfg.AI.StreamResponse)
	assert.Nil(t, cfg.AI.Timeout)
	assert.Equal(t, ResponderAuto, cfg.Chat.Responder)
	assert.Equal(t, time.Second, cfg.Chat.SimMinDelay)
	assert.Equal(t, 2*time.Second, cfg.Chat.SimMaxDelay)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.Equal(t, 2*time.Second, cfg.Clipboard.ResetDelay)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Development)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao-pro")
	t.Setenv("ARK_STREAM", "false")
	t.Setenv("ARK_TIMEOUT", "30s")
	t.Setenv("CHAT_RESPONDER", "Simulated")
	t.Setenv("CHAT_SIM_MIN_DELAY", "100")
	t.Setenv("CHAT_SIM_MAX_DELAY", "250ms")
	t.Setenv("CHAT_HISTORY_LIMIT", "0")
	t.Setenv("CLIPBOARD_RESET_DELAY", "1500")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.True(t, cfg.AI.Enabled())
	assert.False(t, cfg.AI.StreamResponse)
	require.NotNil(t, cfg.AI.Timeout)
	assert.Equal(t, 30*time.Second, *cfg.AI.Timeout)
	assert.Equal(t, ResponderSimulated, cfg.Chat.Responder)
	assert.Equal(t, 100*time.Millisecond, cfg.Chat.SimMinDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.Chat.SimMaxDelay)
	assert.Equal(t, 1, cfg.Chat.HistoryLimit)
	assert.Equal(t, 1500*time.Millisecond, cfg.Clipboard.ResetDelay)
	assert.True(t, cfg.Log.Development)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                  "80 80",
		"ARK_STREAM":            "maybe",
		"CHAT_RESPONDER":        "oracle",
		"CHAT_SIM_MIN_DELAY":    "soon",
		"CLIPBOARD_RESET_DELAY": "0",
		"ARK_MAX_TOKENS":        "many",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsInvertedDelays(t *testing.T) {
	t.Setenv("CHAT_SIM_MIN_DELAY", "2s")
	t.Setenv("CHAT_SIM_MAX_DELAY", "1s")

	_, err := Load()
	require.Error(t, err)
}

func TestNewChatModelRequiresCredentials(t *testing.T) {
	_, err := AIConfig{Model: "m"}.NewChatModel(t.Context())
	require.Error(t, err)
}

func TestParseResponder(t *testing.T) {
	for raw, want := range map[string]Responder{
		"auto":        ResponderAuto,
		" Simulated ": ResponderSimulated,
		"PROVIDER":    ResponderProvider,
	} {
		got, err := ParseResponder(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	for _, raw := range []string{"", "simulate", "openai"} {
		_, err := ParseResponder(raw)
		assert.Error(t, err, raw)
	}
}
