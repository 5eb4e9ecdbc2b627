package config

import "time"

// Configuration 配置接口，按点分路径访问JSON文档，例如 "channel.compression"。
type Configuration interface {
	Set(path string, value interface{})
	Get(path string) interface{}

	GetString(path string) string
	GetStringWithDefault(path, defaultValue string) string
	GetInt(path string) int
	GetIntWithDefault(path string, defaultValue int) int
	GetLong(path string) int64
	GetLongWithDefault(path string, defaultValue int64) int64
	GetBool(path string) bool
	GetBoolWithDefault(path string, defaultValue bool) bool
	// GetDuration 支持Go时长字符串("500ms")或毫秒数
	GetDurationWithDefault(path string, defaultValue time.Duration) time.Duration

	GetList(path string) []interface{}
	GetStringList(path string) []string
	GetMap(path string) map[string]interface{}

	GetConfiguration(path string) Configuration
	GetListConfiguration(path string) []Configuration

	ToJSON() (string, error)
	Clone() Configuration
	IsExists(path string) bool
}
