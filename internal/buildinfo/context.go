// Package buildinfo carries build-time metadata, kept apart from user configuration
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not injected at build time
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
// It is injected at startup from linker flags.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// NewContext returns the build metadata of the running binary
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the version, or UnknownValue when not set
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date, or UnknownValue when not set
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// String formats the metadata for the version command
func (c *Context) String() string {
	return fmt.Sprintf("tf-analyzer %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
