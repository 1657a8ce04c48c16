package rediskey

import (
	"fmt"
	"time"
)

// Key namespaces shared across the engine.
const (
	EventPrefix       = "event"
	ActiveEventPrefix = "event:active"
	ClaimLockPrefix   = "lock:claim"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildEventKey returns "event:{eventID}"
func BuildEventKey(eventID string) string {
	return NamespaceKey(EventPrefix, eventID)
}

// BuildActiveEventsKey returns "event:active:{YYYY-MM-DD}" for the day of now.
// Keys for past days are left to expire on their own.
func BuildActiveEventsKey(now time.Time) string {
	return NamespaceKey(ActiveEventPrefix, now.Format(time.DateOnly))
}

// BuildClaimLockKey returns "lock:claim:{userID}:{eventID}"
func BuildClaimLockKey(userID, eventID string) string {
	return fmt.Sprintf("%s:%s:%s", ClaimLockPrefix, userID, eventID)
}
