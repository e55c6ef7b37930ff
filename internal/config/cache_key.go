package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionCheckpointKey returns the cache key for an attempt's engine checkpoint
func (r *CacheKeyStruct) SessionCheckpointKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:checkpoint", attemptID)
}

// SessionPaperKey returns the cache key for the question list an attempt was dealt
func (r *CacheKeyStruct) SessionPaperKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:paper", attemptID)
}

// TakerActiveSessionKey returns the cache key for a taker's currently active attempt
func (r *CacheKeyStruct) TakerActiveSessionKey(takerID int) string {
	return fmt.Sprintf("taker:%d:active_attempt", takerID)
}

// UserDeviceSessionKey returns the cache key holding the JTI of a user's current login
func (r *CacheKeyStruct) UserDeviceSessionKey(userID int) string {
	return fmt.Sprintf("user:%d:session", userID)
}

// CategorySettingsKey returns the cache key for a category's exam settings
func (r *CacheKeyStruct) CategorySettingsKey(category string) string {
	return fmt.Sprintf("exam:%s:settings", category)
}

// ExamMonitorChannel returns the Redis PubSub channel name for a category monitor
func (r *CacheKeyStruct) ExamMonitorChannel(category string) string {
	return fmt.Sprintf("exam:%s:monitor", category)
}

var CacheKey = NewCacheKeyStruct()
