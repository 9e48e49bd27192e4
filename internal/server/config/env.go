package config

import (
	"errors"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envPrefix namespaces every variable read by parseEnv.
const envPrefix = "GOPHBLOG_"

// loadDotEnv copies variables from path into the process environment without
// overriding ones already set. A missing file is not an error; a malformed
// one panics like a malformed JSON config does.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}
}

// parseEnv overlays GOPHBLOG_* variables onto config. lookup is
// os.LookupEnv in production and a map in tests. Unparsable numbers and
// durations panic.
func parseEnv(config *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}
	num := func(key string, dst *int64) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				panic(err)
			}
			*dst = n
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("SECRET_KEY", &config.SecretKey)
	dur("SESSION_VALIDITY", &config.SessionValidityDuration)
	dur("TEMP_TOKEN_VALIDITY", &config.TempTokenValidityDuration)
	str("TOTP_ISSUER", &config.TOTPIssuer)
	dur("MEDIA_RETENTION", &config.MediaRetention)
	dur("ORPHAN_THRESHOLD", &config.OrphanThreshold)
	dur("SWEEP_INTERVAL", &config.SweepInterval)
	dur("STORAGE_TIMEOUT", &config.StorageTimeout)
	str("S3_ROOT_USER", &config.S3RootUser)
	str("S3_ROOT_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	num("MAX_UPLOAD_SIZE", &config.MaxUploadSize)
	str("CRON_SECRET", &config.CronSecret)
	str("REDIS_ADDR", &config.RedisAddr)
	dur("LOGIN_RATE_WINDOW", &config.LoginRateWindow)
	str("LOG_FORMAT", &config.LogFormat)

	concurrency := int64(config.SweepConcurrency)
	num("SWEEP_CONCURRENCY", &concurrency)
	config.SweepConcurrency = int(concurrency)

	limit := int64(config.LoginRateLimit)
	num("LOGIN_RATE_LIMIT", &limit)
	config.LoginRateLimit = int(limit)
}
