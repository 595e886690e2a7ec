package logattr

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a", Key("a").Value.String())
	assert.Equal(t, "42", Key(42).Value.String())
	assert.Equal(t, "cache", Cache("c").Key)
	assert.True(t, Error(nil).Equal(slog.Attr{}))
	assert.Equal(t, "error", Error(errors.New("x")).Key)
	assert.Equal(t, 1.5, Duration(1500*time.Microsecond).Value.Float64())
	assert.Equal(t, "boom", Panic("boom").Value.String())
}
