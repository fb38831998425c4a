package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Game     GameConfig     `mapstructure:"game"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Security SecurityConfig `mapstructure:"security"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type GameConfig struct {
	WalletGrant         float64       `mapstructure:"wallet_grant"`
	TurnInterval        time.Duration `mapstructure:"turn_interval"` // 0 disables the scheduled world turn
	TurnParallelism     int           `mapstructure:"turn_parallelism"`
	TurnLockTTL         time.Duration `mapstructure:"turn_lock_ttl"`
	NPCEconomy          bool          `mapstructure:"npc_economy"`
	PlayerActionSeconds int           `mapstructure:"player_action_seconds"`
	MissionDurationS    int           `mapstructure:"mission_duration_s"`
	EventContextSize    int           `mapstructure:"event_context_size"`
}

type OracleConfig struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string        `mapstructure:"openai_base_url"`
	OpenAIModel     string        `mapstructure:"openai_model"`
	GPT5Model       string        `mapstructure:"gpt5_model"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	AnthropicModel  string        `mapstructure:"anthropic_model"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	AdminIPs       []string      `mapstructure:"admin_ips"` // empty allows any address
}

type CatalogConfig struct {
	Path string `mapstructure:"path"` // empty uses the embedded catalog
}

// Load reads config from the given YAML file path. A missing file is not an
// error; defaults and FRACTURE_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FRACTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("oracle.openai_api_key", "FRACTURE_ORACLE_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("oracle.anthropic_api_key", "FRACTURE_ORACLE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/fracture.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("game.wallet_grant", 100.0)
	v.SetDefault("game.turn_interval", "0s")
	v.SetDefault("game.turn_parallelism", 4)
	v.SetDefault("game.turn_lock_ttl", "30s")
	v.SetDefault("game.npc_economy", true)
	v.SetDefault("game.player_action_seconds", 3)
	v.SetDefault("game.mission_duration_s", 60)
	v.SetDefault("game.event_context_size", 3)
	v.SetDefault("oracle.default_provider", "gpt-4o")
	v.SetDefault("oracle.timeout", "15s")
	v.SetDefault("oracle.rate_per_second", 2)
	v.SetDefault("oracle.rate_burst", 4)
	v.SetDefault("oracle.max_tokens", 512)
	v.SetDefault("oracle.openai_model", "gpt-4o")
	v.SetDefault("oracle.gpt5_model", "gpt-5")
	v.SetDefault("oracle.anthropic_model", "claude-sonnet-4-5")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
}
