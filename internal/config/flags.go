package config

import (
	"flag"
	"os"
	"time"

	"github.com/avelichko/casevault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   sqlite database path
//	-k string   hex-encoded 32-byte encryption key
//	-s string   key derivation passphrase
//	-l int      plaintext cache budget, bytes
//	-o string   backup directory
//	-f string   backup artifact prefix
//	-i int      backup check interval, minutes
//	-m string   metrics bind address (e.g., ":9090")
//	-z          enable offsite S3 copies
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - The interval flag is accepted as an integer in minutes and then
//     converted to a time.Duration value.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-d", "-k", "-s", "-l", "-o", "-f", "-i", "-m", "-z", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "sqlite database path")
	fs.StringVar(&config.EncryptionKeyHex, "k", config.EncryptionKeyHex, "encryption key (hex)")
	fs.StringVar(&config.KeyPassphrase, "s", config.KeyPassphrase, "key derivation passphrase")
	fs.Int64Var(&config.CacheBudgetBytes, "l", config.CacheBudgetBytes, "cache budget (in bytes)")

	fs.StringVar(&config.BackupDir, "o", config.BackupDir, "backup directory")
	fs.StringVar(&config.BackupPrefix, "f", config.BackupPrefix, "backup artifact prefix")
	backupCheckInterval := fs.Int("i", int(config.BackupCheckInterval.Minutes()), "backup check interval (in minutes)")

	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics bind address")

	fs.BoolVar(&config.S3Enabled, "z", config.S3Enabled, "enable offsite S3 copies")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.BackupCheckInterval = time.Duration(*backupCheckInterval) * time.Minute
}
