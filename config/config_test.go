package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("UNVEIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, []int{10, 30, 50, 80}, cfg.Reveal.Thresholds)
	assert.Equal(t, 400*time.Millisecond, cfg.Chat.MinSendInterval)
	assert.Equal(t, 50, cfg.Chat.DefaultPageSize)
	assert.Equal(t, 100, cfg.Chat.MaxPageSize)
	assert.EqualValues(t, 5, cfg.Chat.Retry.MaxTries)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UNVEIL_CHAT_MAX_CONTENT_LENGTH", "42")
	t.Setenv("UNVEIL_CHAT_MIN_SEND_INTERVAL", "1s")
	t.Setenv("UNVEIL_DATABASE_DRIVER", "sqlite")

	cfg, err := parse(newTestViper())
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Chat.MaxContentLength)
	assert.Equal(t, time.Second, cfg.Chat.MinSendInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  any
	}{
		{"thresholds not ascending", "reveal.thresholds", []int{10, 5, 50, 80}},
		{"thresholds wrong length", "reveal.thresholds", []int{10, 30}},
		{"unknown driver", "database.driver", "mysql"},
		{"short jwt secret", "jwt.secret", "short"},
		{"page size above max", "chat.default_page_size", 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestViper()
			v.Set(tc.key, tc.val)
			_, err := parse(v)
			assert.Error(t, err)
		})
	}
}
