// Package config handles configuration for the casevault daemon,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the casevault daemon.
//
// Fields:
//   - DatabaseDSN: path to the sqlite database file.
//   - EncryptionKeyHex: hex-encoded 32-byte AES key. Takes precedence over
//     passphrase derivation when set.
//   - KeyPassphrase / KeySalt: inputs for Argon2id key derivation, used when
//     no explicit key is configured.
//   - CacheBudgetBytes: plaintext cache capacity.
//   - BackupDir / BackupPrefix: where snapshots land and how they are named.
//   - BackupCheckInterval: how often the scheduler re-checks for due backups.
//   - MetricsAddr: bind address for the /metrics endpoint.
//   - S3Enabled plus S3* settings: optional offsite copy of every artifact.
type Config struct {
	DatabaseDSN         string
	EncryptionKeyHex    string
	KeyPassphrase       string
	KeySalt             string
	CacheBudgetBytes    int64
	BackupDir           string
	BackupPrefix        string
	BackupCheckInterval time.Duration
	MetricsAddr         string
	S3Enabled           bool
	S3RootUser          string
	S3RootPassword      string
	S3Bucket            string
	S3Region            string
	S3BaseEndpoint      string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "casevault.db"
	c.EncryptionKeyHex = ""
	c.KeyPassphrase = "development-passphrase"
	c.KeySalt = "casevault"
	c.CacheBudgetBytes = 10 << 20
	c.BackupDir = "backups"
	c.BackupPrefix = "casevault"
	c.BackupCheckInterval = 1 * time.Minute
	c.MetricsAddr = ":9090"
	c.S3Enabled = false
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "casevault-backups"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
