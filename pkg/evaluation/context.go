// Package evaluation implements the pure flag evaluation engine: constraint
// matching, strategy rollout rules and deterministic variant allocation.
// Nothing in this package performs I/O.
package evaluation

import (
	"time"
)

// Well-known context field names.
const (
	FieldUserID        = "userId"
	FieldSessionID     = "sessionId"
	FieldRemoteAddress = "remoteAddress"
	FieldEnvironment   = "environment"
	FieldAppName       = "appName"
	FieldCurrentTime   = "currentTime"

	// DefaultStickiness resolves userId, falling back to sessionId.
	DefaultStickiness = "default"
)

// Context carries the attributes of one evaluation request.
type Context struct {
	UserID        string            `json:"userId,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	RemoteAddress string            `json:"remoteAddress,omitempty"`
	Environment   string            `json:"environment,omitempty"`
	AppName       string            `json:"appName,omitempty"`
	CurrentTime   time.Time         `json:"currentTime,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// Now returns the evaluation timestamp, defaulting to the wall clock when
// the caller did not pin one.
func (c *Context) Now() time.Time {
	if c.CurrentTime.IsZero() {
		return time.Now()
	}
	return c.CurrentTime
}

// Field resolves a context field by name. Well-known fields resolve from the
// typed attributes first; everything else falls through to Properties.
func (c *Context) Field(name string) (string, bool) {
	switch name {
	case FieldUserID:
		if c.UserID != "" {
			return c.UserID, true
		}
	case FieldSessionID:
		if c.SessionID != "" {
			return c.SessionID, true
		}
	case FieldRemoteAddress:
		if c.RemoteAddress != "" {
			return c.RemoteAddress, true
		}
	case FieldEnvironment:
		if c.Environment != "" {
			return c.Environment, true
		}
	case FieldAppName:
		if c.AppName != "" {
			return c.AppName, true
		}
	case FieldCurrentTime:
		return c.Now().Format(time.RFC3339), true
	}

	if v, ok := c.Properties[name]; ok && v != "" {
		return v, true
	}
	return "", false
}

// StickinessValue resolves the value used as a hashing key for the given
// stickiness field. The "default" stickiness prefers userId, then sessionId.
// ok is false when no value is available; callers decide the fallback.
func (c *Context) StickinessValue(stickiness string) (string, bool) {
	if stickiness == "" || stickiness == DefaultStickiness {
		if c.UserID != "" {
			return c.UserID, true
		}
		if c.SessionID != "" {
			return c.SessionID, true
		}
		return "", false
	}
	return c.Field(stickiness)
}
