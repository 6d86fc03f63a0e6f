package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding the JTI of a student's active login
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// AttemptDraftKey returns the cache key for a student's unfinished attempt at a test
func (r *CacheKeyStruct) AttemptDraftKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:draft", studentID, testID)
}

// TestDefinitionKey returns the cache key for a test definition
func (r *CacheKeyStruct) TestDefinitionKey(testID string) string {
	return fmt.Sprintf("test:%s:definition", testID)
}

var CacheKey = NewCacheKeyStruct()
