package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbe(t *testing.T) {
	assert.NoError(t, Probe(context.Background(), nil, time.Second))

	down := errors.New("store down")
	assert.ErrorIs(t, Probe(context.Background(), func(context.Context) error { return down }, time.Second), down)

	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	assert.ErrorIs(t, Probe(context.Background(), slow, 10*time.Millisecond), context.DeadlineExceeded)
}
