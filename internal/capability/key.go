// ABOUTME: Storage key grammar shared by ad-hoc approvals and capability grants
// ABOUTME: Keys look like method[:scope][:function] where "*" is a wildcard segment

package capability

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Wildcard matches any value of a key segment.
	Wildcard = "*"
	// Separator joins key segments and the app id prefix.
	Separator = ":"
	// BehaviorKey holds an app's AppAuthorizationBehavior.
	BehaviorKey = "__behavior__"
)

var (
	// ErrInvalidAppID is returned for empty app ids or ids containing the separator.
	ErrInvalidAppID = errors.New("invalid app id")
	// ErrInvalidKey is returned for malformed storage keys.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Key joins segments into a storage key.
func Key(method string, segments ...string) string {
	if len(segments) == 0 {
		return method
	}
	return method + Separator + strings.Join(segments, Separator)
}

// Method returns the first segment of a storage key.
func Method(key string) string {
	m, _, _ := strings.Cut(key, Separator)
	return m
}

// Candidates returns the keys to try when looking up an approval for key,
// most specific first. For method:scope:function that is the exact key,
// then method:scope:*, then method:*. Two-segment keys fall back to
// method:*. Single-segment keys have no fallback.
func Candidates(key string) []string {
	parts := strings.SplitN(key, Separator, 3)
	out := []string{key}
	add := func(k string) {
		for _, existing := range out {
			if existing == k {
				return
			}
		}
		out = append(out, k)
	}
	switch len(parts) {
	case 3:
		add(Key(parts[0], parts[1], Wildcard))
		add(Key(parts[0], Wildcard))
	case 2:
		add(Key(parts[0], Wildcard))
	}
	return out
}

// ValidateKey reports whether key is a well-formed storage key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if key == BehaviorKey {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, Separator) {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidKey, key)
		}
	}
	if Method(key) == Wildcard {
		return fmt.Errorf("%w: method cannot be a wildcard in %q", ErrInvalidKey, key)
	}
	return nil
}

// ValidateAppID reports whether appID can be used as a key prefix.
func ValidateAppID(appID string) error {
	if appID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAppID)
	}
	if strings.Contains(appID, Separator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidAppID, appID, Separator)
	}
	return nil
}

// appKey is the persisted key for an app-scoped storage key.
func appKey(appID, key string) string {
	return appID + Separator + key
}

func appPrefix(appID string) string {
	return appID + Separator
}
