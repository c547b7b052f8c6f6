package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafe(t *testing.T) {
	assert.NoError(t, Safe(func() error { return nil })())

	want := errors.New("plain")
	assert.ErrorIs(t, Safe(func() error { return want })(), want)

	err := Safe(func() error { panic("kaboom") })()
	assert.ErrorContains(t, err, "kaboom")
}

func TestSafeContext(t *testing.T) {
	err := SafeContext(func(ctx context.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})(context.Background())
	assert.Error(t, err)
}
