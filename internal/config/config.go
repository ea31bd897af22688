package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Artemis    ArtemisConfig    `yaml:"artemis" mapstructure:"artemis"`
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Coins      CoinsConfig      `yaml:"coins" mapstructure:"coins"`
	Treasuries TreasuriesConfig `yaml:"treasuries" mapstructure:"treasuries"`
	ETF        ETFConfig        `yaml:"etf" mapstructure:"etf"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Runlog     RunlogConfig     `yaml:"runlog" mapstructure:"runlog"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ArtemisConfig holds provider API settings.
type ArtemisConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// DataConfig locates the artifact directory the dashboard reads.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// CoinsConfig configures the token metrics sync.
type CoinsConfig struct {
	Tokens  []string `yaml:"tokens" mapstructure:"tokens"`
	Metrics []string `yaml:"metrics" mapstructure:"metrics"`
}

// TreasuriesConfig configures the treasury equities sync.
type TreasuriesConfig struct {
	Equities  []string `yaml:"equities" mapstructure:"equities"`
	Labels    []string `yaml:"labels" mapstructure:"labels"`
	SpecsFile string   `yaml:"specs_file" mapstructure:"specs_file"`
}

// ETFConfig configures the ETF flow scrape.
type ETFConfig struct {
	BTCURLs    []string `yaml:"btc_urls" mapstructure:"btc_urls"`
	ETHURLs    []string `yaml:"eth_urls" mapstructure:"eth_urls"`
	BTCTickers []string `yaml:"btc_tickers" mapstructure:"btc_tickers"`
	ETHTickers []string `yaml:"eth_tickers" mapstructure:"eth_tickers"`
}

// ServerConfig configures the dashboard server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// RunlogConfig configures the run log database.
type RunlogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Artifact paths within the data directory.
func (c DataConfig) TokenCSV() string      { return filepath.Join(c.Dir, "token_data.csv") }
func (c DataConfig) TreasuryCSV() string   { return filepath.Join(c.Dir, "dat_data.csv") }
func (c DataConfig) MappingJSON() string   { return filepath.Join(c.Dir, "dat_data_mapping.json") }
func (c DataConfig) ETFCSV() string        { return filepath.Join(c.Dir, "etf_data.csv") }
func (c DataConfig) ETFValidation() string { return filepath.Join(c.Dir, "etf_validation.csv") }

// LegacyMappingJSON returns older mapping artifact names merged on load.
func (c DataConfig) LegacyMappingJSON() []string {
	return []string{filepath.Join(c.Dir, "dat_equities_mapping.json")}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TOKENDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("artemis.api_key", "")
	v.SetDefault("artemis.base_url", "https://api.artemisxyz.com")
	v.SetDefault("treasuries.specs_file", "")
	v.SetDefault("data.dir", "docs/data")
	v.SetDefault("coins.tokens", []string{"ETH", "BTC", "USDC"})
	v.SetDefault("coins.metrics", []string{"price"})
	v.SetDefault("treasuries.equities", []string{"SBET", "MSTR", "DFDV", "UPXI", "MTPLF", "BMNR"})
	v.SetDefault("treasuries.labels", []string{
		"mNAV",
		"MC / Nav",
		"FDMC / NAV",
		"Net Asset Value",
		"Fully Diluted Market Cap",
		"Fully Diluted Shares",
		"Number of Shares Outstanding",
		"Price",
		"Stock Trading Volume",
		"Convertible Debt",
		"Convertible Debt Shares",
		"Non-Convertible Debt",
		"Historical Volatility",
		"Number of Tokens Held",
		"Token Per Share",
		"Warrants",
	})
	v.SetDefault("etf.btc_urls", []string{
		"https://farside.co.uk/bitcoin-etf-flow-all-data/",
		"https://farside.co.uk/btc/",
	})
	v.SetDefault("etf.eth_urls", []string{
		"https://farside.co.uk/ethereum-etf-flow-all-data/",
		"https://farside.co.uk/eth/",
	})
	v.SetDefault("etf.btc_tickers", []string{"IBIT", "FBTC", "BITB", "ARKB", "BTCO", "EZBC", "BRRR", "HODL", "BTCW", "GBTC"})
	v.SetDefault("etf.eth_tickers", []string{"ETHA", "FETH", "ETHW", "TETH", "ETHV", "QETH", "EZET", "ETHE", "ETH"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("runlog.path", "tokendash.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
