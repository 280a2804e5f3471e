package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator(t *testing.T) {
	est := newEstimator(3)
	assert.Nil(t, est.remaining(10))

	est.add(time.Second)
	est.add(3 * time.Second)
	r := est.remaining(4)
	require.NotNil(t, r)
	assert.InDelta(t, 8.0, *r, 1e-9)

	// the window only keeps the latest samples
	est.add(2 * time.Second)
	est.add(4 * time.Second)
	est.add(6 * time.Second)
	r = est.remaining(1)
	require.NotNil(t, r)
	assert.InDelta(t, 4.0, *r, 1e-9)
	assert.Len(t, est.samples, 3)
}
