package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	require.True(t, l.Allow(context.Background(), "any-key", 1, time.Minute))
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := NewLimiter(nil, zerolog.Nop())
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(context.Background(), "tenant-a", 1, time.Minute))
	}
}

func TestTenantWriteKeyIsScopedPerTenant(t *testing.T) {
	require.NotEqual(t, TenantWriteKey("aaa"), TenantWriteKey("bbb"))
	require.Contains(t, TenantWriteKey("aaa"), "aaa")
}
