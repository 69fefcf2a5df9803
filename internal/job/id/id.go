// Package id generates job identifiers.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: sb-<unix seconds>-<12 hex chars>
// Example: sb-1767373200-3f2a9c0d4e1b
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("sb-%d-%s", time.Now().Unix(), random[:12])
}
