// Package buildinfo contains build-time metadata kept separate from user configuration
package buildinfo

import "fmt"

// UnknownValue is reported for metadata not injected at build time
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
// It is injected at startup through -ldflags.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion returns the build version or UnknownValue
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release returns the identifier used for telemetry releases
func (c *Context) Release() string {
	return "kickspeed@" + c.GetVersion()
}

func (c *Context) String() string {
	return fmt.Sprintf("kickspeed %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
