package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envOverlay mirrors Config for envconfig. Variables are prefixed with
// ADMINWATCH_, e.g. ADMINWATCH_DATABASE_DSN, ADMINWATCH_RISK_CEILING.
// envconfig leaves fields untouched when the variable is absent, so only
// variables that are actually set overlay earlier layers.
type envOverlay struct {
	ListenAddr          string        `split_words:"true"`
	DatabaseDSN         string        `envconfig:"DATABASE_DSN"`
	SecretKey           string        `split_words:"true"`
	CORSAllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	SweepInterval       time.Duration `split_words:"true"`
	InactivityThreshold time.Duration `split_words:"true"`
	DesysopGrace        time.Duration `split_words:"true"`
	RiskCeiling         int64         `split_words:"true"`
	CountWindow         time.Duration `split_words:"true"`
	Namespaces          []int64       `split_words:"true"`
}

func parseEnv(config *Config) {
	var e envOverlay
	if err := envconfig.Process("adminwatch", &e); err != nil {
		panic(err)
	}

	if e.ListenAddr != "" {
		config.ListenAddr = e.ListenAddr
	}
	if e.DatabaseDSN != "" {
		config.DatabaseDSN = e.DatabaseDSN
	}
	if e.SecretKey != "" {
		config.SecretKey = e.SecretKey
	}
	if len(e.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = e.CORSAllowedOrigins
	}
	if e.SweepInterval > 0 {
		config.SweepInterval = e.SweepInterval
	}
	if e.InactivityThreshold > 0 {
		config.InactivityThreshold = e.InactivityThreshold
	}
	if e.DesysopGrace > 0 {
		config.DesysopGrace = e.DesysopGrace
	}
	if e.RiskCeiling > 0 {
		config.RiskCeiling = e.RiskCeiling
	}
	if e.CountWindow > 0 {
		config.CountWindow = e.CountWindow
	}
	if len(e.Namespaces) > 0 {
		config.Namespaces = e.Namespaces
	}
}
