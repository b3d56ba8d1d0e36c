package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderReferencePrefix = "QB-"

// NewOrderReference builds a human-facing order reference such as
// QB-20260317091502-9F1C2A7B. The random suffix keeps references unique
// for orders placed within the same second.
func NewOrderReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return orderReferencePrefix + now.UTC().Format("20060102150405") + "-" + suffix
}
