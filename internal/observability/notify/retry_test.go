package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("503")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 1, time.Millisecond, func(context.Context) error {
			calls++
			return errors.New("still down")
		})
		require.EqualError(t, err, "still down")
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Retry(ctx, 5, time.Hour, func(context.Context) error {
			calls++
			cancel()
			return errors.New("down")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestSinkFunc(t *testing.T) {
	var nilFunc SinkFunc
	require.NoError(t, nilFunc.SendAbuseAlert(context.Background(), AbuseAlertPayload{}))

	var got AbuseAlertPayload
	f := SinkFunc(func(_ context.Context, p AbuseAlertPayload) error { got = p; return nil })
	require.NoError(t, f.SendAbuseAlert(context.Background(), AbuseAlertPayload{ClientKey: "k"}))
	assert.Equal(t, "k", got.ClientKey)
}
