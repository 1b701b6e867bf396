package config

import (
	"encoding/json"
	"os"

	"github.com/wikimaint/adminwatch/internal/flagx"
	"github.com/wikimaint/adminwatch/internal/timex"
)

// jsonConfig is the DTO for the optional JSON configuration file. Durations
// accept both strings ("720h") and integer nanoseconds via timex.Duration.
// Only fields present in the file overlay the existing Config.
type jsonConfig struct {
	ListenAddr          string         `json:"listen_addr"`
	DatabaseDSN         string         `json:"database_dsn"`
	SecretKey           string         `json:"secret_key"`
	CORSAllowedOrigins  []string       `json:"cors_allowed_origins"`
	SweepInterval       timex.Duration `json:"sweep_interval"`
	InactivityThreshold timex.Duration `json:"inactivity_threshold"`
	DesysopGrace        timex.Duration `json:"desysop_grace"`
	RiskCeiling         int64          `json:"risk_ceiling"`
	CountWindow         timex.Duration `json:"count_window"`
	Namespaces          []int64        `json:"namespaces"`
}

// parseJSON loads configuration from the file named by the -c/-config flag.
// No flag, no file. A missing or malformed file panics.
func parseJSON(config *Config) {
	path := flagx.JSONConfigFlag()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &jsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.ListenAddr != "" {
		config.ListenAddr = c.ListenAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	if c.SweepInterval.Duration > 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.InactivityThreshold.Duration > 0 {
		config.InactivityThreshold = c.InactivityThreshold.Duration
	}
	if c.DesysopGrace.Duration > 0 {
		config.DesysopGrace = c.DesysopGrace.Duration
	}
	if c.RiskCeiling > 0 {
		config.RiskCeiling = c.RiskCeiling
	}
	if c.CountWindow.Duration > 0 {
		config.CountWindow = c.CountWindow.Duration
	}
	if len(c.Namespaces) > 0 {
		config.Namespaces = c.Namespaces
	}
}
