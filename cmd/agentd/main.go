// Command agentd runs an agent registry deployment: a factory, its deployed
// registries and registrars, the event journal, and the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentcore/internal/blob"
	"agentcore/internal/journal"
)

// Config is populated from AGENTCORE_* environment variables.
type Config struct {
	ListenAddr     string `env:"AGENTCORE_LISTEN_ADDR" envDefault:"localhost:8080"`
	FactoryAddress string `env:"AGENTCORE_FACTORY_ADDRESS" envDefault:"0xfactory"`
	JournalDriver  string `env:"AGENTCORE_JOURNAL_DRIVER" envDefault:"memory"`
	SQLitePath     string `env:"AGENTCORE_SQLITE_PATH"`
	PostgresDSN    string `env:"AGENTCORE_POSTGRES_DSN"`
	BlobDriver     string `env:"AGENTCORE_BLOB_DRIVER" envDefault:"memory"`
	BlobFSRoot     string `env:"AGENTCORE_BLOB_FS_ROOT"`
	S3Bucket       string `env:"AGENTCORE_BLOB_S3_BUCKET"`
	S3Region       string `env:"AGENTCORE_BLOB_S3_REGION"`
	S3Endpoint     string `env:"AGENTCORE_BLOB_S3_ENDPOINT"`
	S3AccessKey    string `env:"AGENTCORE_BLOB_S3_ACCESS_KEY_ID"`
	S3SecretKey    string `env:"AGENTCORE_BLOB_S3_SECRET_ACCESS_KEY"`
	S3PathStyle    bool   `env:"AGENTCORE_BLOB_S3_PATH_STYLE"`
	Debug          bool   `env:"AGENTCORE_DEBUG"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) journalConfig() journal.Config {
	return journal.Config{
		Driver:      journal.Driver(c.JournalDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

func (c Config) blobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.BlobDriver),
		FSRoot: c.BlobFSRoot,
		S3: blob.S3Config{
			Region:          c.S3Region,
			Bucket:          c.S3Bucket,
			Endpoint:        c.S3Endpoint,
			AccessKeyID:     c.S3AccessKey,
			SecretAccessKey: c.S3SecretKey,
			PathStyle:       c.S3PathStyle,
		},
	}
}

func (c Config) newLogger() (*zap.Logger, error) {
	if c.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

var rootCmd = &cobra.Command{
	Use:           "agentd",
	Short:         "Agent registry daemon",
	Long:          "agentd hosts agent registries, minting registrars, and the factory that deploys them, exposing a JSON HTTP API and an append-only event journal.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(deployCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentd:", err)
		os.Exit(1)
	}
}
