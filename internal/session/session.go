// Package session resolves the session identifier for incoming tool
// calls. Sessions are the isolation unit of the memory store: one
// directory subtree and one git repository each.
package session

import (
	"fmt"
	"os"
	"sync"
)

// EnvSessionID overrides the derived session id when set.
const EnvSessionID = "GCC_SESSION_ID"

// Resolver picks the effective session id for a tool call. Resolution
// order: explicit parameter, GCC_SESSION_ID, container hostname, stable
// per-process fallback. The derived fallback is computed once so every
// call in a process lands in the same session.
type Resolver struct {
	once     sync.Once
	fallback string
}

// New creates a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve returns the session id to use for a call that supplied
// explicit (possibly empty). The result still goes through
// validate.SessionID before any storage access.
func (r *Resolver) Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvSessionID); env != "" {
		return env
	}
	r.once.Do(func() {
		// Inside a container the hostname is the container id; a short
		// hostname is likely a developer machine and too identifying
		// across runs to be useful.
		if host, err := os.Hostname(); err == nil && len(host) >= 12 {
			r.fallback = "container-" + host[:12]
			return
		}
		r.fallback = fmt.Sprintf("mcp-%d", os.Getpid())
	})
	return r.fallback
}
