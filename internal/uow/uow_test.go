package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/kirinyoku/tix-events/internal/repository"
	"github.com/kirinyoku/tix-events/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_RunsHooksOnlyAfterCommit(t *testing.T) {
	u := NewUoW(memory.NewStore())

	var ran []string
	err := u.Do(context.Background(), func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error {
		after(func(context.Context) { ran = append(ran, "first") })
		after(func(context.Context) { ran = append(ran, "second") })
		assert.Empty(t, ran)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestDo_SkipsHooksOnError(t *testing.T) {
	u := NewUoW(memory.NewStore())
	boom := errors.New("boom")

	called := false
	err := u.Do(context.Background(), func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error {
		after(func(context.Context) { called = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

// retryingStore replays fn once to mimic a serialization retry.
type retryingStore struct {
	repository.Store
}

func (s retryingStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	_ = s.Store.RunTx(ctx, fn)
	return s.Store.RunTx(ctx, fn)
}

func TestDo_DropsHooksFromRetriedAttempt(t *testing.T) {
	u := NewUoW(retryingStore{Store: memory.NewStore()})

	calls := 0
	err := u.Do(context.Background(), func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error {
		after(func(context.Context) { calls++ })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
