package reqid

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, With(ctx, ""))
	assert.Empty(t, From(ctx))
	assert.Equal(t, "abc", From(With(ctx, "abc")))
	assert.Equal(t, "abc", Attr(With(ctx, "abc")).Value.String())
}

func TestNewAndSanitize(t *testing.T) {
	id := New()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, New())

	assert.Equal(t, "req-42", Sanitize(" req-42 "))
	assert.Len(t, Sanitize(""), 32)
	assert.Len(t, Sanitize("bad\r\nid"), 32)
	assert.Len(t, Sanitize(strings.Repeat("x", 200)), 32)
}
