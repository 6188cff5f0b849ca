package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile        string
	dataDir        string
	feedsFile      string
	indicatorsFile string
	historyPath    string
	redisURL       string
	bindAddr       string
	logLevel       string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taxiiwatch",
	Short: "TAXII threat-intelligence feed aggregator",
	Long: `Taxiiwatch aggregates cyber-threat indicators from TAXII 2.x servers
into a local store and serves a searchable view over HTTP.

Features:
- TAXII 2.x collection discovery and paginated STIX object retrieval
- Indicator normalization into a flat, searchable record
- JSON-file feed and indicator stores with atomic replace
- HTTP JSON API with Prometheus metrics
- Refresh history in SQLite and optional Redis Streams notifications
- Terminal indicator browser`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.taxiiwatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Directory for store files")
	rootCmd.PersistentFlags().StringVar(&feedsFile, "feeds-file", "", "Feed store path (default <data-dir>/taxii_feeds.json)")
	rootCmd.PersistentFlags().StringVar(&indicatorsFile, "indicators-file", "", "Indicator store path (default <data-dir>/indicators.json)")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history-db", "", "Refresh history SQLite path (default <data-dir>/history.db)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis URL for refresh notifications (empty disables)")
	rootCmd.PersistentFlags().StringVar(&bindAddr, "bind", "127.0.0.1:8080", "HTTP facade bind address")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("data.feeds_file", rootCmd.PersistentFlags().Lookup("feeds-file"))
	viper.BindPFlag("data.indicators_file", rootCmd.PersistentFlags().Lookup("indicators-file"))
	viper.BindPFlag("data.history_db", rootCmd.PersistentFlags().Lookup("history-db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("http.bind", rootCmd.PersistentFlags().Lookup("bind"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".taxiiwatch" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".taxiiwatch")
	}

	viper.SetEnvPrefix("TAXIIWATCH")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("data.dir", "./data")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("http.bind", "127.0.0.1:8080")
	viper.SetDefault("log.level", "info")
}

// Config represents the application configuration
type Config struct {
	Data  DataConfig  `mapstructure:"data"`
	Redis RedisConfig `mapstructure:"redis"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Log   LogConfig   `mapstructure:"log"`
}

type DataConfig struct {
	Dir            string `mapstructure:"dir"`
	FeedsFile      string `mapstructure:"feeds_file"`
	IndicatorsFile string `mapstructure:"indicators_file"`
	HistoryDB      string `mapstructure:"history_db"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type HTTPConfig struct {
	Bind string `mapstructure:"bind"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// GetConfig returns the current configuration values with store paths
// defaulted under the data directory.
func GetConfig() Config {
	cfg := Config{
		Data: DataConfig{
			Dir:            viper.GetString("data.dir"),
			FeedsFile:      viper.GetString("data.feeds_file"),
			IndicatorsFile: viper.GetString("data.indicators_file"),
			HistoryDB:      viper.GetString("data.history_db"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		HTTP: HTTPConfig{
			Bind: viper.GetString("http.bind"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
	}

	if cfg.Data.FeedsFile == "" {
		cfg.Data.FeedsFile = filepath.Join(cfg.Data.Dir, "taxii_feeds.json")
	}
	if cfg.Data.IndicatorsFile == "" {
		cfg.Data.IndicatorsFile = filepath.Join(cfg.Data.Dir, "indicators.json")
	}
	if cfg.Data.HistoryDB == "" {
		cfg.Data.HistoryDB = filepath.Join(cfg.Data.Dir, "history.db")
	}
	return cfg
}
