package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "cargo/coldchain/data", cfg.DataTopic)
	assert.Equal(t, "cargo/coldchain/alert", cfg.AlertTopic)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 64, cfg.LaneBuffer)
}

func TestLoadRiskDefaultsMatchCalibration(t *testing.T) {
	cfg := LoadRisk()

	// Provozní kalibrace: pásmo 2-8 °C, eskalace na 0.6 za 600 s,
	// hranice ventilátoru 500/1000 RPM, vibrace 2.0 m/s².
	assert.Equal(t, 2.0, cfg.TempLow)
	assert.Equal(t, 8.0, cfg.TempHigh)
	assert.Equal(t, 600.0, cfg.TempEscalationSecs)
	assert.Equal(t, 500, cfg.FanCriticalRPM)
	assert.Equal(t, 1000, cfg.FanWarnRPM)
	assert.Equal(t, 2.0, cfg.VibrationLimit)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RISK_TEMP_HIGH", "10.5")
	t.Setenv("RISK_FAN_CRITICAL_RPM", "300")
	t.Setenv("DATA_TOPIC", "test/data")

	assert.Equal(t, 10.5, LoadRisk().TempHigh)
	assert.Equal(t, 300, LoadRisk().FanCriticalRPM)
	assert.Equal(t, "test/data", Load().DataTopic)
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("RISK_TEMP_HIGH", "hodně")
	t.Setenv("STORE_TIMEOUT_SECS", "pomalu")

	assert.Equal(t, 8.0, LoadRisk().TempHigh)
	assert.Equal(t, 5*time.Second, Load().StoreTimeout)
}
