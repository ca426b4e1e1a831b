// Package commands implements the spare CLI commands described in spec §6.
package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nyxstorage/spare/internal/cli/output"
	"github.com/nyxstorage/spare/internal/logger"
	"github.com/nyxstorage/spare/pkg/config"
	"github.com/nyxstorage/spare/pkg/envoy"
	"github.com/nyxstorage/spare/pkg/objectstore/s3"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	configFile string
	outputFmt  string
	noColor    bool

	cfg     *config.Config
	printer *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "spare",
	Short: "Encrypted, deduplicating backups to S3-compatible storage",
	Long: `spare backs up a directory tree to an S3-compatible bucket, chunked,
compressed and encrypted, with content-addressed deduplication across
files and across backups. Restores reconstruct the tree, including
hardlinks, from any retained snapshot.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		for _, name := range []string{
			"s3.endpoint", "s3.access_key", "s3.secret_key", "s3.region", "s3.force_path_style",
			"bucket", "password",
		} {
			if err := v.BindPFlag(name, cmd.Flags().Lookup(flagNameFor(name))); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}

		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded

		if err := logger.Init(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		}); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		format, err := output.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		printer = output.NewPrinter(cmd.OutOrStdout(), format, !noColor && !color.NoColor)

		return nil
	},
}

// flagNameFor maps a viper/mapstructure key to the persistent flag that
// overrides it.
func flagNameFor(key string) string {
	switch key {
	case "s3.endpoint":
		return "endpoint"
	case "s3.access_key":
		return "access-key"
	case "s3.secret_key":
		return "secret-key"
	case "s3.region":
		return "region"
	case "s3.force_path_style":
		return "force-path-style"
	case "bucket":
		return "bucket"
	case "password":
		return "password"
	default:
		return key
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "path to a YAML config file")
	flags.String("endpoint", "", "S3-compatible endpoint (env SPARE_S3_ENDPOINT)")
	flags.String("access-key", "", "S3 access key (env SPARE_S3_ACCESS_KEY)")
	flags.String("secret-key", "", "S3 secret key (env SPARE_S3_SECRET_KEY)")
	flags.String("region", "", "S3 region")
	flags.Bool("force-path-style", false, "use path-style S3 addressing")
	flags.String("bucket", "", "bucket name (env SPARE_BUCKET)")
	flags.String("password", "", "encryption password (env SPARE_PASSWORD)")
	flags.StringVarP(&outputFmt, "output", "o", "table", "output format (table|json|yaml)")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(createCmd, restoreCmd, validateCmd, lockCmd, unlockCmd, completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// buildEnvoy constructs the store and Envoy shared by every subcommand.
func buildEnvoy(ctx context.Context, codecID string, blockSize int) (*envoy.Envoy, error) {
	store, err := s3.NewFromConfig(ctx, cfg.S3StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.S3.Endpoint, err)
	}

	e, err := envoy.New(store, envoy.Config{
		Bucket:    cfg.Bucket,
		Password:  []byte(cfg.Password),
		CodecID:   codecID,
		BlockSize: blockSize,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// withLockedEnvoy builds an Envoy, locks the bucket for the duration of fn,
// and always releases the lock afterwards, mirroring the original's
// `with Envoy(...) as envoy:` context manager.
func withLockedEnvoy(ctx context.Context, codecID string, blockSize int, fn func(*envoy.Envoy) error) error {
	e, err := buildEnvoy(ctx, codecID, blockSize)
	if err != nil {
		return err
	}

	if err := e.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := e.Unlock(ctx); err != nil {
			logger.Errorf("release lock: %s", err)
		}
	}()

	return fn(e)
}
