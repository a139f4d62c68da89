// Package bytesize parses the binary-unit byte-size grammar abwart's `size`
// policy accepts (1 MiB = 2^20 B), backed by the Docker ecosystem's own
// human-size parser.
package bytesize

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
)

// Binary unit constants, exported for tests and callers that want to build
// sizes programmatically.
const (
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30
	TiB = 1 << 40
)

// Parse parses a human-readable binary byte size such as "512KiB", "2MiB",
// "1GiB" or a bare byte count like "1024". Units are always interpreted as
// binary (1024-based) regardless of whether the "i" is present, matching
// go-units.RAMInBytes and the registry-tooling convention it follows.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if size < 0 {
		return 0, fmt.Errorf("invalid size %q: negative value not allowed", s)
	}
	return size, nil
}
