package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aweris/quarry"
)

var rootCmd = &cobra.Command{
	Use:          "quarry",
	Short:        "Content-addressed block store CLI",
	Long:         "CLI for storing files as Merkle DAGs in a quarry page store and reading them back.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/quarry/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "store directory (default: ~/.local/share/quarry)")
	rootCmd.PersistentFlags().String("compression", "lz4", "heap payload compression: none, lz4, zstd")
	rootCmd.PersistentFlags().Int("chunk-size", quarry.DefaultChunkSize, "chunk size in bytes")
	rootCmd.PersistentFlags().Int("page-cache", quarry.DefaultPageCacheSize, "number of pages cached in memory, 0 disables the cache")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("compression", rootCmd.PersistentFlags().Lookup("compression"))
	viper.BindPFlag("chunk_size", rootCmd.PersistentFlags().Lookup("chunk-size"))
	viper.BindPFlag("page_cache", rootCmd.PersistentFlags().Lookup("page-cache"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(quarry.DefaultConfigDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("QUARRY")
	viper.AutomaticEnv()
	viper.SetDefault("data_dir", quarry.DefaultDataDir())
	viper.SetDefault("compression", "lz4")

	viper.ReadInConfig()
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// openStore opens the configured store. The caller closes it.
func openStore() (*quarry.Quarry, *zap.Logger, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	q, err := quarry.Open(viper.GetString("data_dir"),
		quarry.WithCompression(viper.GetString("compression")),
		quarry.WithChunkSize(viper.GetInt("chunk_size")),
		quarry.WithPageCacheSize(viper.GetInt("page_cache")),
		quarry.WithLogger(logger),
	)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	return q, logger, nil
}

// closeStore closes q and reports the first error into err.
func closeStore(q *quarry.Quarry, logger *zap.Logger, err *error) {
	if cerr := q.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
	logger.Sync()
}
