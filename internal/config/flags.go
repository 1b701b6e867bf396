package config

import (
	"flag"
	"os"

	"github.com/wikimaint/adminwatch/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-d string     PostgreSQL DSN
//	-s string     API token secret key
//	-i duration   sweep interval (e.g., "24h")
//
// The arguments are first filtered with flagx.FilterArgs so flags handled
// elsewhere (-c/-config) do not trip the parser.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to serve the API on")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.SweepInterval, "i", config.SweepInterval, "inactivity sweep interval")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
