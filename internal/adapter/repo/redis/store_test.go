package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, ttl), mr
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	want := domain.AnalysisResult{
		ID:           "r1",
		Mode:         domain.ModeCognitiveShort,
		Provider:     domain.ProviderOpenAI,
		OverallScore: 84,
		Summary:      "s",
		Questions:    []domain.QuestionResult{{Question: "q", Answer: "a", Score: 84}},
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, s.Put(ctx, want))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, domain.AnalysisResult{ID: "r1"}))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPing(t *testing.T) {
	s, mr := newTestStore(t, 0)
	assert.NoError(t, s.Ping(context.Background()))
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
