package config

import "github.com/spf13/viper"

type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	WSToken       string `mapstructure:"WS_TOKEN"`
	WSSendBuffer  int    `mapstructure:"WS_SEND_BUFFER"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	StorageProvider string `mapstructure:"STORAGE_PROVIDER"`
	JSONDir         string `mapstructure:"JSON_DIR"`

	SampleIntervalMs    int `mapstructure:"SAMPLE_INTERVAL_MS"`
	MinMoveBlocks       int `mapstructure:"MIN_MOVE_BLOCKS"`
	MaxIdleIntervalMs   int `mapstructure:"MAX_IDLE_INTERVAL_MS"`
	MaxPointsPerSession int `mapstructure:"MAX_POINTS_PER_SESSION"`

	TileHighPerCycle     int `mapstructure:"TILE_HIGH_PER_CYCLE"`
	TileLowPerCycle      int `mapstructure:"TILE_LOW_PER_CYCLE"`
	TileRenderIntervalMs int `mapstructure:"TILE_RENDER_INTERVAL_MS"`
	TileInnerRadius      int `mapstructure:"TILE_INNER_RADIUS"`
	TileOuterRadius      int `mapstructure:"TILE_OUTER_RADIUS"`
	TileRenderTimeoutMs  int `mapstructure:"TILE_RENDER_TIMEOUT_MS"`

	LogFile  string `mapstructure:"LOG_FILE"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

var defaults = map[string]any{
	"SERVER_PORT":             ":8765",
	"WS_TOKEN":                "change-me-in-production",
	"WS_SEND_BUFFER":          256,
	"POSTGRES_URL":            "",
	"REDIS_ADDR":              "",
	"REDIS_PASSWORD":          "",
	"STORAGE_PROVIDER":        "json",
	"JSON_DIR":                "playerroutes-data",
	"SAMPLE_INTERVAL_MS":      2000,
	"MIN_MOVE_BLOCKS":         2,
	"MAX_IDLE_INTERVAL_MS":    10000,
	"MAX_POINTS_PER_SESSION":  5000,
	"TILE_HIGH_PER_CYCLE":     8,
	"TILE_LOW_PER_CYCLE":      4,
	"TILE_RENDER_INTERVAL_MS": 50,
	"TILE_INNER_RADIUS":       8,
	"TILE_OUTER_RADIUS":       16,
	"TILE_RENDER_TIMEOUT_MS":  2000,
	"LOG_FILE":                "",
	"LOG_LEVEL":               "info",
}

func Load() Config {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.clamp()
	return cfg
}

// clamp pulls tuning values back into their supported ranges.
func (c *Config) clamp() {
	c.SampleIntervalMs = clampInt(c.SampleIntervalMs, 500, 30000)
	c.MinMoveBlocks = clampInt(c.MinMoveBlocks, 1, 50)
	c.MaxIdleIntervalMs = clampInt(c.MaxIdleIntervalMs, 5000, 60000)
	c.MaxPointsPerSession = clampInt(c.MaxPointsPerSession, 100, 50000)
	c.WSSendBuffer = clampInt(c.WSSendBuffer, 16, 4096)
	c.TileHighPerCycle = clampInt(c.TileHighPerCycle, 1, 256)
	c.TileLowPerCycle = clampInt(c.TileLowPerCycle, 0, 256)
	c.TileRenderIntervalMs = clampInt(c.TileRenderIntervalMs, 10, 10000)
	c.TileInnerRadius = clampInt(c.TileInnerRadius, 0, 64)
	c.TileOuterRadius = clampInt(c.TileOuterRadius, c.TileInnerRadius, 128)
	c.TileRenderTimeoutMs = clampInt(c.TileRenderTimeoutMs, 100, 60000)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
