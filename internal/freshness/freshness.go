// Package freshness decides whether on-disk artifacts are recent enough
// to use without refetching.
package freshness

import (
	"os"
	"time"
)

// Gate evaluates file modification times against a maximum age.
type Gate struct {
	// now is replaceable in tests.
	now func() time.Time
}

func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// IsFresh reports whether path exists and was modified within maxAge.
// A missing or unreadable file is simply not fresh; the caller decides
// whether a refresh can recover.
func (g *Gate) IsFresh(path string, maxAge time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return g.now().Sub(info.ModTime()) <= maxAge
}
