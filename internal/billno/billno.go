// Package billno generates human-readable bill numbers.
package billno

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a bill number like "BILL-2026-3F9A2C". Uniqueness is enforced
// by the store; callers retry on a duplicate.
func New(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("BILL-%d-%s", now.Year(), suffix)
}
