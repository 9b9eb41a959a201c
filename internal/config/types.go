package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Config 是 TOML 文件、环境变量与 CLI 参数合并后的运行时配置，启动后只读。
type Config struct {
	Host            string   `mapstructure:"Host"`
	ListenPort      int      `mapstructure:"ListenPort"`
	CacheDir        string   `mapstructure:"CacheDir"`
	MaxBodySize     int64    `mapstructure:"MaxBodySize"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`
	MetricsListen   string   `mapstructure:"MetricsListen"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFormat       string   `mapstructure:"LogFormat"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
}

// Addr 返回 HTTP 监听地址（host:port）。
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.ListenPort))
}

// MetricsEnabled 表示是否需要额外启动 Prometheus 监听。
func (c *Config) MetricsEnabled() bool {
	return strings.TrimSpace(c.MetricsListen) != ""
}
