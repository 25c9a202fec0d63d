package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockKeyDefaultsEnv(t *testing.T) {
	assert.Equal(t, "tp:cron-worker:lock:local", lockKey(""))
	assert.Equal(t, "tp:cron-worker:lock:prod", lockKey("prod"))
}

func TestLockTTLExpiresBeforeNextTick(t *testing.T) {
	assert.Equal(t, 55*time.Minute, lockTTL(time.Hour))
	assert.Equal(t, 5*time.Minute, lockTTL(5*time.Minute))
	assert.Less(t, lockTTL(30*time.Minute), 30*time.Minute)
}
