package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      session validity, minutes
//	-x int      2FA temporary token validity, minutes
//	-i int      cleanup chore interval, minutes (0 disables)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-k string   cron secret for the cleanup endpoint
//	-r string   redis address for sign-in rate limiting
//	-l string   log format: slog or zap
//
// Duration flags are whole minutes.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-t", "-x", "-i", "-u", "-p", "-b", "-g", "-e", "-k", "-r", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session validity (in minutes)")
	tempTokenValidity := fs.Int("x", int(config.TempTokenValidityDuration.Minutes()), "2fa temporary token validity (in minutes)")
	sweepInterval := fs.Int("i", int(config.SweepInterval.Minutes()), "cleanup interval (in minutes, 0 disables)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.CronSecret, "k", config.CronSecret, "cron secret")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogFormat, "l", config.LogFormat, "log format (slog|zap)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.TempTokenValidityDuration = time.Duration(*tempTokenValidity) * time.Minute
	config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
}
