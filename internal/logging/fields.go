package logging

import "github.com/sirupsen/logrus"

// Outcome 描述一次存储操作的结果，用于日志的 outcome 字段。
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
	OutcomeStored  Outcome = "stored"
	OutcomeDeleted Outcome = "deleted"
	OutcomeError   Outcome = "error"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 method/path/request_id 字段，供路由日志复用。
func RequestFields(method, path, requestID string) logrus.Fields {
	return logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	}
}

// OutcomeFields 标记单次读/写/删的结果以及对应的缓存文件名。
func OutcomeFields(op, file string, outcome Outcome) logrus.Fields {
	return logrus.Fields{
		"op":      op,
		"file":    file,
		"outcome": string(outcome),
	}
}
