package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀，例如 IMGCACHE_CACHEDIR、IMGCACHE_LISTENPORT。
const EnvPrefix = "IMGCACHE"

// DefaultMaxBodySize 限制单次 PUT 可缓冲的正文大小。
const DefaultMaxBodySize int64 = 32 * 1024 * 1024

// Overrides 保存 CLI 显式设置的字段，优先级高于配置文件与环境变量。
// 键名与 TOML 字段一致，例如 "CacheDir"。
type Overrides map[string]interface{}

// Load 合并默认值、可选的 TOML 配置文件、环境变量与 CLI 覆盖项，然后执行校验。
// path 为空时不读取任何文件。
func Load(path string, overrides Overrides) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		durationDecodeHook(),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.CacheDir = absDir

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Host", "localhost")
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("CacheDir", "")
	v.SetDefault("MaxBodySize", DefaultMaxBodySize)
	v.SetDefault("ShutdownTimeout", "10s")
	v.SetDefault("MetricsListen", "")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
}

func applyDefaults(c *Config) {
	c.Host = strings.TrimSpace(c.Host)
	c.CacheDir = strings.TrimSpace(c.CacheDir)
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.ShutdownTimeout.DurationValue() == 0 {
		c.ShutdownTimeout = Duration(10 * time.Second)
	}
}

// durationDecodeHook 处理 TOML/环境变量中的数值型秒数；字符串已由
// TextUnmarshallerHookFunc 交给 Duration.UnmarshalText 解析。
func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case *Duration:
			return *v, nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
