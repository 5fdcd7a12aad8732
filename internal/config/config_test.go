package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"adengine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Storage.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 0.8, cfg.Business.SecondPriceFactor)
	assert.Equal(t, "1", cfg.Business.MinAvailable().String())
	assert.Equal(t, time.Hour, cfg.Scheduler.PriorityRefreshEvery)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.DraftActivationEvery)
	assert.Equal(t, time.UTC, cfg.Business.Location())
	assert.Equal(t, DefaultSlots(), cfg.Slots)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  driver: memory
  targets:
    - { type: coupon, id: 3, owner_id: 42 }
business:
  timezone: Asia/Tokyo
  second_price_factor: 0.9
slots:
  store:    { homepage: 2, category: 1, search: 1, max_active: 5, min_daily_bid: 1 }
  coupon:   { homepage: 3, category: 2, search: 1, max_active: 9, min_daily_bid: 0.2 }
  deal:     { homepage: 3, category: 2, search: 1, max_active: 9, min_daily_bid: 0.2 }
scheduler:
  draft_activation_every: 5m
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, []TargetSeed{{Type: model.CampaignTypeCoupon, ID: 3, OwnerID: 42}}, cfg.Storage.Targets)
	assert.Equal(t, 0.9, cfg.Business.SecondPriceFactor)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.DraftActivationEvery)
	assert.Equal(t, time.Hour, cfg.Scheduler.DailyBudgetCheckEvery)

	store := cfg.Slots[model.CampaignTypeStore]
	assert.Equal(t, 2, store.SlotCount(model.PlacementHomepage))
	assert.Equal(t, 1, store.SlotCount(model.PlacementSearch))
	assert.Equal(t, 2, store.SlotCount(""))
	assert.Equal(t, "1", store.MinBid().String())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("ADENGINE_SERVER_PORT", "7070")
	t.Setenv("ADENGINE_STORAGE_DRIVER", "memory")
	t.Setenv("ADENGINE_MYSQL_HOST", "db.internal")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"driver": `
storage:
  driver: sqlite
`,
		"second price factor": `
business:
  second_price_factor: 1.5
`,
		"timezone": `
business:
  timezone: Mars/Olympus
`,
		"missing slot type": `
slots:
  store: { homepage: 2, max_active: 5 }
`,
		"target seed": `
storage:
  targets:
    - { type: banner, id: 1, owner_id: 1 }
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
