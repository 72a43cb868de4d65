package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns an identifier like "op-0190f3c2-...". Version 7 UUIDs sort by
// creation time, which keeps newest-first listings stable on ties.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return prefix + "-" + id.String()
}
