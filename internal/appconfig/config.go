// Package appconfig loads the configuration shared by the storage-server
// and crafting-server binaries: environment variables take priority over a
// config file, which takes priority over the defaults set here.
package appconfig

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting either binary reads at startup.
type Config struct {
	Routing RoutingConfig  `mapstructure:"routing"`
	Recipes RecipesConfig  `mapstructure:"recipes"`
	Network NetworkConfig  `mapstructure:"network"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Workers []WorkerConfig `mapstructure:"workers"`
}

// WorkerConfig is one entry of the Crafting Server's static worker roster:
// which staging inventories the worker can reach, fixed at deployment time
// since nothing in the packet table (spec.md §6) has a worker announce
// itself over the bus.
type WorkerConfig struct {
	ID       string `mapstructure:"id"`
	Kind     string `mapstructure:"kind"` // "robot" or "drone"
	Adjacent []int  `mapstructure:"adjacent"`
}

// RoutingConfig locates the Storage Server's persisted routing file and the
// default slot count physical inventories get when none is specified.
type RoutingConfig struct {
	ConfigPath       string `mapstructure:"config_path"`
	DefaultSlotCount int    `mapstructure:"default_slot_count"`
	RouterCacheSize  int    `mapstructure:"router_cache_size"`
}

// RecipesConfig locates the Crafting Server's recipe catalog source file
// and its persisted SQLite cache.
type RecipesConfig struct {
	SourcePath string `mapstructure:"source_path"`
	DBPath     string `mapstructure:"db_path"`
}

// NetworkConfig names the bus addresses each server listens on and the
// rate limit applied to every registered LocalBus endpoint.
type NetworkConfig struct {
	StorageAddr    string  `mapstructure:"storage_addr"`
	CraftAddr      string  `mapstructure:"craft_addr"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
	TickIntervalMS int     `mapstructure:"tick_interval_ms"`
}

// LoggingConfig controls the root subsystem's starting verbosity.
type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load reads configuration from, in increasing priority: the defaults set
// below, an optional config file (explicit path, or config.yaml searched
// on a fixed path list), a .env file, and TRANSPOSER_-prefixed environment
// variables.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/transposer-fabric")
	}

	v.SetEnvPrefix("TRANSPOSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("appconfig: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("appconfig: unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("routing.config_path", "data/routing.conf")
	v.SetDefault("routing.default_slot_count", 27)
	v.SetDefault("routing.router_cache_size", 256)

	v.SetDefault("recipes.source_path", "data/recipes.txt")
	v.SetDefault("recipes.db_path", "data/crafting.db")

	v.SetDefault("network.storage_addr", "storage")
	v.SetDefault("network.craft_addr", "craft")
	v.SetDefault("network.rate_per_second", 50.0)
	v.SetDefault("network.burst", 100)
	v.SetDefault("network.tick_interval_ms", 200)

	v.SetDefault("logging.debug", false)
}
