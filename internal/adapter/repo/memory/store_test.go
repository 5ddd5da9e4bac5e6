package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := NewStore(4)
	ctx := context.Background()

	want := domain.AnalysisResult{ID: "r1", Summary: "s", OverallScore: 77}
	require.NoError(t, s.Put(ctx, want))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetMissing(t *testing.T) {
	s := NewStore(4)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvictionOrder(t *testing.T) {
	s := NewStore(3)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Put(ctx, domain.AnalysisResult{ID: fmt.Sprintf("r%d", i)}))
	}
	assert.Equal(t, 3, s.Len())
	_, err := s.Get(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(ctx, "r4")
	assert.NoError(t, err)
}

func TestGetRefreshesRecency(t *testing.T) {
	s := NewStore(2)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, domain.AnalysisResult{ID: "a"}))
	require.NoError(t, s.Put(ctx, domain.AnalysisResult{ID: "b"}))

	_, err := s.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, domain.AnalysisResult{ID: "c"}))
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestPutSameIDUpdates(t *testing.T) {
	s := NewStore(2)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, domain.AnalysisResult{ID: "a", OverallScore: 10}))
	require.NoError(t, s.Put(ctx, domain.AnalysisResult{ID: "a", OverallScore: 20}))
	assert.Equal(t, 1, s.Len())
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 20, got.OverallScore)
}

func TestZeroCapacityUsesDefault(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()
	for i := 0; i < DefaultCapacity+10; i++ {
		require.NoError(t, s.Put(ctx, domain.AnalysisResult{ID: fmt.Sprintf("r%d", i)}))
	}
	assert.Equal(t, DefaultCapacity, s.Len())
}
