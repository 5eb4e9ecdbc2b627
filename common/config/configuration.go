package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultConfiguration 默认配置实现，基于map
type DefaultConfiguration struct {
	data map[string]interface{}
}

func NewConfiguration() Configuration {
	return &DefaultConfiguration{
		data: make(map[string]interface{}),
	}
}

func NewConfigurationFromMap(data map[string]interface{}) Configuration {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &DefaultConfiguration{data: data}
}

func FromJSON(jsonStr string) (Configuration, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return NewConfigurationFromMap(data), nil
}

func FromFile(filename string) (Configuration, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return FromJSON(string(content))
}

func (c *DefaultConfiguration) Set(path string, value interface{}) {
	keys := strings.Split(path, ".")
	current := c.data

	for i, key := range keys {
		if i == len(keys)-1 {
			current[key] = value
			return
		}
		next, ok := current[key].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[key] = next
		}
		current = next
	}
}

func (c *DefaultConfiguration) Get(path string) interface{} {
	keys := strings.Split(path, ".")
	var current interface{} = c.data

	for _, key := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		if current, ok = m[key]; !ok {
			return nil
		}
	}
	return current
}

func (c *DefaultConfiguration) GetString(path string) string {
	value := c.Get(path)
	if value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", value)
}

func (c *DefaultConfiguration) GetStringWithDefault(path, defaultValue string) string {
	if value := c.GetString(path); value != "" {
		return value
	}
	return defaultValue
}

func (c *DefaultConfiguration) GetInt(path string) int {
	return int(c.GetLong(path))
}

func (c *DefaultConfiguration) GetIntWithDefault(path string, defaultValue int) int {
	if c.Get(path) == nil {
		return defaultValue
	}
	return c.GetInt(path)
}

func (c *DefaultConfiguration) GetLong(path string) int64 {
	switch v := c.Get(path).(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		i, _ := v.Int64()
		return i
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

func (c *DefaultConfiguration) GetLongWithDefault(path string, defaultValue int64) int64 {
	if c.Get(path) == nil {
		return defaultValue
	}
	return c.GetLong(path)
}

func (c *DefaultConfiguration) GetBool(path string) bool {
	switch v := c.Get(path).(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

func (c *DefaultConfiguration) GetBoolWithDefault(path string, defaultValue bool) bool {
	if c.Get(path) == nil {
		return defaultValue
	}
	return c.GetBool(path)
}

func (c *DefaultConfiguration) GetDurationWithDefault(path string, defaultValue time.Duration) time.Duration {
	switch v := c.Get(path).(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	}
	return defaultValue
}

func (c *DefaultConfiguration) GetList(path string) []interface{} {
	if list, ok := c.Get(path).([]interface{}); ok {
		return list
	}
	return nil
}

func (c *DefaultConfiguration) GetStringList(path string) []string {
	list := c.GetList(path)
	if list == nil {
		return nil
	}
	result := make([]string, len(list))
	for i, item := range list {
		result[i] = fmt.Sprintf("%v", item)
	}
	return result
}

func (c *DefaultConfiguration) GetMap(path string) map[string]interface{} {
	if m, ok := c.Get(path).(map[string]interface{}); ok {
		return m
	}
	return nil
}

func (c *DefaultConfiguration) GetConfiguration(path string) Configuration {
	if m, ok := c.Get(path).(map[string]interface{}); ok {
		return NewConfigurationFromMap(m)
	}
	return NewConfiguration()
}

func (c *DefaultConfiguration) GetListConfiguration(path string) []Configuration {
	list := c.GetList(path)
	if list == nil {
		return nil
	}
	result := make([]Configuration, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			result = append(result, NewConfigurationFromMap(m))
		}
	}
	return result
}

func (c *DefaultConfiguration) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (c *DefaultConfiguration) Clone() Configuration {
	jsonStr, err := c.ToJSON()
	if err != nil {
		return NewConfiguration()
	}
	clone, err := FromJSON(jsonStr)
	if err != nil {
		return NewConfiguration()
	}
	return clone
}

func (c *DefaultConfiguration) IsExists(path string) bool {
	return c.Get(path) != nil
}
