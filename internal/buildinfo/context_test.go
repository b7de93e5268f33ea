package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Version(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: &Context{}, want: UnknownValue},
		{name: "tagged", ctx: &Context{Version: "v1.2.0"}, want: "v1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ctx.GetVersion())
		})
	}
}

func TestContext_BuildDate(t *testing.T) {
	t.Parallel()

	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.GetBuildDate())
	assert.Equal(t, "2026-10-01", (&Context{BuildDate: "2026-10-01"}).GetBuildDate())
}

func TestContext_ReleaseAndString(t *testing.T) {
	t.Parallel()

	c := &Context{Version: "v0.3.1", BuildDate: "2026-10-01T12:00:00Z"}
	assert.Equal(t, "kickspeed@v0.3.1", c.Release())
	assert.Equal(t, "kickspeed v0.3.1 (built 2026-10-01T12:00:00Z)", c.String())

	var nilCtx *Context
	assert.Equal(t, "kickspeed@unknown", nilCtx.Release())
}
