package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveCapacity(t *testing.T) {
	cases := []struct {
		name     string
		pool     LicensePool
		expected int
	}{
		{"tiers add up to total", LicensePool{Total: 20, CommitQty: 5, MaxOverage: 15}, 20},
		{"tiers below total clamp down", LicensePool{Total: 10, CommitQty: 4, MaxOverage: 2}, 6},
		{"tiers above total clamp to total", LicensePool{Total: 10, CommitQty: 8, MaxOverage: 7}, 10},
		{"zero pool", LicensePool{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.pool.EffectiveCapacity())
		})
	}
}

func TestPoolState(t *testing.T) {
	pool := LicensePool{Total: 20, CommitQty: 5, MaxOverage: 15}

	cases := []struct {
		borrowed int
		expected PoolState
	}{
		{0, PoolStateIdle},
		{1, PoolStateCommit},
		{3, PoolStateCommit},
		{5, PoolStateCommit},
		{6, PoolStateOverage},
		{12, PoolStateOverage},
		{20, PoolStateOverage},
	}
	for _, tc := range cases {
		pool.BorrowedCount = tc.borrowed
		assert.Equal(t, tc.expected, pool.State(), "borrowed=%d", tc.borrowed)
	}
}

func TestPoolAvailable(t *testing.T) {
	pool := LicensePool{Total: 20, CommitQty: 5, MaxOverage: 15, BorrowedCount: 12}
	assert.Equal(t, 8, pool.Available())

	// Available reflects the clamped capacity, not the raw total.
	clamped := LicensePool{Total: 10, CommitQty: 4, MaxOverage: 2, BorrowedCount: 1}
	assert.Equal(t, 5, clamped.Available())
}

func TestGrantOutstanding(t *testing.T) {
	grant := Grant{}
	assert.True(t, grant.Outstanding())

	grant.Return(time.Now())
	assert.False(t, grant.Outstanding())
	assert.NotNil(t, grant.ReturnedAt)
}
