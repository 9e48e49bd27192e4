package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/flagx"
	"github.com/dmitrijs2005/gophblog/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations accept
// both "10m"-style strings and integer nanoseconds.
type JsonConfig struct {
	HTTPAddr                  string         `json:"http_addr"`
	DatabaseDSN               string         `json:"database_dsn"`
	SecretKey                 string         `json:"secret_key"`
	SessionValidityDuration   timex.Duration `json:"session_validity_duration"`
	TempTokenValidityDuration timex.Duration `json:"temp_token_validity_duration"`
	TOTPIssuer                string         `json:"totp_issuer"`
	MediaRetention            timex.Duration `json:"media_retention"`
	OrphanThreshold           timex.Duration `json:"orphan_threshold"`
	SweepConcurrency          int            `json:"sweep_concurrency"`
	SweepInterval             timex.Duration `json:"sweep_interval"`
	StorageTimeout            timex.Duration `json:"storage_timeout"`
	S3RootUser                string         `json:"s3_root_user"`
	S3RootPassword            string         `json:"s3_root_password"`
	S3Bucket                  string         `json:"s3_bucket"`
	S3Region                  string         `json:"s3_region"`
	S3BaseEndpoint            string         `json:"s3_base_endpoint"`
	MaxUploadSize             int64          `json:"max_upload_size"`
	CronSecret                string         `json:"cron_secret"`
	RedisAddr                 string         `json:"redis_addr"`
	LoginRateLimit            int            `json:"login_rate_limit"`
	LoginRateWindow           timex.Duration `json:"login_rate_window"`
	LogFormat                 string         `json:"log_format"`
}

// parseJson overlays the file named by -c/-config onto config. Keys absent
// from the file keep their current values. A missing or malformed file
// panics: a config path that was asked for but cannot be used is fatal.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionValidityDuration, c.SessionValidityDuration)
	setDuration(&config.TempTokenValidityDuration, c.TempTokenValidityDuration)
	setString(&config.TOTPIssuer, c.TOTPIssuer)
	setDuration(&config.MediaRetention, c.MediaRetention)
	setDuration(&config.OrphanThreshold, c.OrphanThreshold)
	if c.SweepConcurrency > 0 {
		config.SweepConcurrency = c.SweepConcurrency
	}
	setDuration(&config.SweepInterval, c.SweepInterval)
	setDuration(&config.StorageTimeout, c.StorageTimeout)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	setString(&config.CronSecret, c.CronSecret)
	setString(&config.RedisAddr, c.RedisAddr)
	if c.LoginRateLimit > 0 {
		config.LoginRateLimit = c.LoginRateLimit
	}
	setDuration(&config.LoginRateWindow, c.LoginRateWindow)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
