package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from a JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./fleetlogs")

	viper.SetDefault("api.baseUrl", "http://localhost:8080")
	viper.SetDefault("api.fallbackBaseUrl", "")
	viper.SetDefault("api.token", "")

	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.path", "./fleettrack.db")
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("store.pollIntervalMs", 250)

	viper.SetDefault("controller.debounceMs", 300)
	viper.SetDefault("controller.defaultRangeDays", 7)

	viper.SetDefault("playback.defaultSpeed", 1.0)

	viper.SetDefault("stream.enabled", true)
	viper.SetDefault("stream.listenAddr", ":8090")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "fleet-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.batchTimeoutMs", 5000)

	viper.SetConfigName("fleettrack.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetMillis returns a duration config value stored as milliseconds.
func GetMillis(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Millisecond
}
