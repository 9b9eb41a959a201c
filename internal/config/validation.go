package config

import (
	"errors"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.Host == "" {
		return newFieldError("Host", "不能为空")
	}
	if strings.ContainsAny(c.Host, "/ ") {
		return newFieldError("Host", "不允许包含路径或空格")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if c.CacheDir == "" {
		return newFieldError("CacheDir", "不能为空，请通过 --cache 或配置文件指定")
	}
	if c.MaxBodySize <= 0 {
		return newFieldError("MaxBodySize", "必须大于 0")
	}
	if c.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError("ShutdownTimeout", "必须大于 0")
	}
	if c.MetricsEnabled() {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			return newFieldError("MetricsListen", "必须是 host:port 形式")
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return newFieldError("LogLevel", "无法识别的日志级别")
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		return newFieldError("LogFormat", "仅支持 json/text")
	}
	if c.LogMaxSize < 0 {
		return newFieldError("LogMaxSize", "不能为负数")
	}
	if c.LogMaxBackups < 0 {
		return newFieldError("LogMaxBackups", "不能为负数")
	}

	return nil
}
