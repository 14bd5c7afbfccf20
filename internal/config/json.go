package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/avelichko/casevault/internal/flagx"
	"github.com/avelichko/casevault/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling. It uses timex.Duration
// for interval fields, which allows parsing both string values such as "90s"
// and integer nanoseconds. After unmarshalling, its fields are copied into
// the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN         string         `json:"database_dsn"`
	EncryptionKeyHex    string         `json:"encryption_key_hex"`
	KeyPassphrase       string         `json:"key_passphrase"`
	KeySalt             string         `json:"key_salt"`
	CacheBudgetBytes    int64          `json:"cache_budget_bytes"`
	BackupDir           string         `json:"backup_dir"`
	BackupPrefix        string         `json:"backup_prefix"`
	BackupCheckInterval timex.Duration `json:"backup_check_interval"`
	MetricsAddr         string         `json:"metrics_addr"`
	S3Enabled           bool           `json:"s3_enabled"`
	S3RootUser          string         `json:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Region            string         `json:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint"`
}

// parseJson overlays configuration values from a JSON file named by the -c
// or -config command-line flags. When neither flag is present no file is
// loaded and the Config is left untouched. An unreadable or invalid file
// panics; a daemon must not start on a half-read configuration.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.EncryptionKeyHex = c.EncryptionKeyHex
	config.KeyPassphrase = c.KeyPassphrase
	config.KeySalt = c.KeySalt
	config.CacheBudgetBytes = c.CacheBudgetBytes
	config.BackupDir = c.BackupDir
	config.BackupPrefix = c.BackupPrefix
	config.BackupCheckInterval = time.Duration(c.BackupCheckInterval.Duration)
	config.MetricsAddr = c.MetricsAddr
	config.S3Enabled = c.S3Enabled
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
