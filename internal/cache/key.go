package cache

import (
	"errors"
	"regexp"
)

// keyPattern 匹配完整的请求 URI（含查询串），只接受 "/" 加三位十进制数字。
var keyPattern = regexp.MustCompile(`^/(\d{3})$`)

// ErrInvalidKey 表示请求路径不是 /XXX 形式。
var ErrInvalidKey = errors.New("invalid cache key")

// Key 是三位十进制字符串，取值范围 "000".."999"。
type Key string

// ParseKey 从原始请求 URI 中提取缓存键，任何额外的路径段或查询串都会被拒绝。
func ParseKey(rawURI string) (Key, error) {
	m := keyPattern.FindStringSubmatch(rawURI)
	if m == nil {
		return "", ErrInvalidKey
	}
	return Key(m[1]), nil
}

// FileName 返回该键在缓存目录中的文件名。
func (k Key) FileName() string {
	return string(k) + ".jpeg"
}

func (k Key) String() string {
	return string(k)
}
