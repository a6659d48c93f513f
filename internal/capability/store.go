// ABOUTME: Capability Store persisting approvals and per-app behavior over a flat KV namespace
// ABOUTME: Keys are "{appId}:{storageKey}"; "{appId}:__behavior__" holds the app's mode and expiry

package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/store"
)

// Mode is an app's authorization behavior.
type Mode string

const (
	// ModePermissive prompts the user for unmatched items.
	ModePermissive Mode = "permissive"
	// ModeStrict rejects unmatched items without prompting.
	ModeStrict Mode = "strict"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePermissive || m == ModeStrict
}

// Behavior is an app's authorization policy. A nil ExpiresAt never expires.
type Behavior struct {
	Mode      Mode       `json:"mode"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Options configures a Store.
type Options struct {
	Clock       clock.Clock
	DefaultMode Mode
	Logger      *slog.Logger
}

// Store is the capability store. It is safe for concurrent use to the
// extent the underlying KV is; read-then-write sequences are not atomic.
type Store struct {
	kv          store.KV
	clock       clock.Clock
	defaultMode Mode
	logger      *slog.Logger
}

// NewStore creates a Store over kv.
func NewStore(kv store.KV, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if !opts.DefaultMode.Valid() {
		opts.DefaultMode = ModePermissive
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		kv:          kv,
		clock:       opts.Clock,
		defaultMode: opts.DefaultMode,
		logger:      opts.Logger.With("component", "capability"),
	}
}

// Get returns the approval payload stored under exactly key.
func (s *Store) Get(ctx context.Context, appID, key string) (json.RawMessage, bool, error) {
	if err := ValidateAppID(appID); err != nil {
		return nil, false, err
	}
	v, err := s.kv.Get(ctx, appKey(appID, key))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading approval %s: %w", key, err)
	}
	return json.RawMessage(v), true, nil
}

// Lookup finds an approval for key, trying the exact key first and then
// its wildcard fallbacks from narrowest to broadest. It returns the key
// that matched.
func (s *Store) Lookup(ctx context.Context, appID, key string) (json.RawMessage, string, bool, error) {
	for _, candidate := range Candidates(key) {
		payload, ok, err := s.Get(ctx, appID, candidate)
		if err != nil {
			return nil, "", false, err
		}
		if ok {
			return payload, candidate, true, nil
		}
	}
	return nil, "", false, nil
}

// Save stores payload under key in canonical JSON form. An empty payload
// is stored as `true`.
func (s *Store) Save(ctx context.Context, appID, key string, payload json.RawMessage) error {
	if err := ValidateAppID(appID); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	canonical, err := canonicalize(payload)
	if err != nil {
		return fmt.Errorf("encoding approval %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, appKey(appID, key), canonical); err != nil {
		return fmt.Errorf("saving approval %s: %w", key, err)
	}
	return nil
}

// RevokeKey removes a single approval.
func (s *Store) RevokeKey(ctx context.Context, appID, key string) error {
	if err := ValidateAppID(appID); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, appKey(appID, key)); err != nil {
		return fmt.Errorf("revoking %s: %w", key, err)
	}
	s.logger.Info("revoked approval", "app_id", appID, "key", key)
	return nil
}

// RevokeApp removes every key for the app, including its behavior.
// It returns the number of keys removed.
func (s *Store) RevokeApp(ctx context.Context, appID string) (int, error) {
	if err := ValidateAppID(appID); err != nil {
		return 0, err
	}
	keys, err := s.kv.Keys(ctx, appPrefix(appID))
	if err != nil {
		return 0, fmt.Errorf("listing keys for %s: %w", appID, err)
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return 0, fmt.Errorf("deleting %s: %w", k, err)
		}
	}
	s.logger.Info("revoked app authorizations", "app_id", appID, "keys", len(keys))
	return len(keys), nil
}

// Keys returns the app's storage keys, without the app prefix and
// excluding the behavior key, sorted ascending.
func (s *Store) Keys(ctx context.Context, appID string) ([]string, error) {
	if err := ValidateAppID(appID); err != nil {
		return nil, err
	}
	prefix := appPrefix(appID)
	raw, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing keys for %s: %w", appID, err)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimPrefix(k, prefix)
		if k == BehaviorKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListApps returns every app id with stored state, sorted ascending.
func (s *Store) ListApps(ctx context.Context) ([]string, error) {
	raw, err := s.kv.Keys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	seen := make(map[string]struct{})
	apps := make([]string, 0)
	for _, k := range raw {
		app, _, ok := strings.Cut(k, Separator)
		if !ok {
			continue
		}
		if _, dup := seen[app]; dup {
			continue
		}
		seen[app] = struct{}{}
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps, nil
}

// Behavior returns the app's behavior. A missing or expired record yields
// the default mode; expired records are deleted.
func (s *Store) Behavior(ctx context.Context, appID string) (Behavior, error) {
	if err := ValidateAppID(appID); err != nil {
		return Behavior{}, err
	}
	def := Behavior{Mode: s.defaultMode}
	v, err := s.kv.Get(ctx, appKey(appID, BehaviorKey))
	if errors.Is(err, store.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("reading behavior for %s: %w", appID, err)
	}

	var b Behavior
	if err := json.Unmarshal(v, &b); err != nil || !b.Mode.Valid() {
		s.logger.Warn("discarding malformed behavior record", "app_id", appID)
		return def, nil
	}
	if b.ExpiresAt != nil && !s.clock.Now().Before(*b.ExpiresAt) {
		if err := s.kv.Delete(ctx, appKey(appID, BehaviorKey)); err != nil {
			return def, fmt.Errorf("deleting expired behavior for %s: %w", appID, err)
		}
		s.logger.Debug("behavior expired", "app_id", appID, "mode", b.Mode)
		return def, nil
	}
	return b, nil
}

// SetBehavior stores the app's behavior.
func (s *Store) SetBehavior(ctx context.Context, appID string, b Behavior) error {
	if err := ValidateAppID(appID); err != nil {
		return err
	}
	if !b.Mode.Valid() {
		return fmt.Errorf("unknown authorization mode %q", b.Mode)
	}
	if b.ExpiresAt != nil {
		t := b.ExpiresAt.UTC()
		b.ExpiresAt = &t
	}
	data, err := jcsMarshal(b)
	if err != nil {
		return fmt.Errorf("encoding behavior: %w", err)
	}
	if err := s.kv.Set(ctx, appKey(appID, BehaviorKey), data); err != nil {
		return fmt.Errorf("saving behavior for %s: %w", appID, err)
	}
	s.logger.Info("set app behavior", "app_id", appID, "mode", b.Mode)
	return nil
}

// StoreGrants replaces the app's approvals with the keys produced by caps.
// Every existing key except the behavior key is deleted before any new
// key is written. It returns the keys written.
func (s *Store) StoreGrants(ctx context.Context, appID string, caps []Capability) ([]string, error) {
	existing, err := s.Keys(ctx, appID)
	if err != nil {
		return nil, err
	}
	for _, k := range existing {
		if err := s.kv.Delete(ctx, appKey(appID, k)); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", k, err)
		}
	}

	var written []string
	seen := make(map[string]struct{})
	for _, c := range caps {
		for _, e := range ToEntries(c) {
			if _, dup := seen[e.Key]; dup {
				continue
			}
			seen[e.Key] = struct{}{}
			if err := s.Save(ctx, appID, e.Key, e.Payload); err != nil {
				return written, err
			}
			written = append(written, e.Key)
		}
	}
	s.logger.Info("stored capability grants",
		"app_id", appID,
		"capabilities", len(caps),
		"cleared", len(existing),
		"keys", len(written),
	)
	return written, nil
}

// Reconstruct returns a display-only view of the app's approvals as
// capabilities. Never re-grant from this; the mapping is lossy.
func (s *Store) Reconstruct(ctx context.Context, appID string) ([]Capability, error) {
	keys, err := s.Keys(ctx, appID)
	if err != nil {
		return nil, err
	}
	caps := Reconstruct(keys)
	for i, c := range caps {
		acc, ok := c.(Accounts)
		if !ok || !acc.CanGet {
			continue
		}
		payload, found, err := s.Get(ctx, appID, MethodGetAccounts)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		var body struct {
			Accounts []Account `json:"accounts"`
		}
		if json.Unmarshal(payload, &body) == nil {
			acc.Accounts = body.Accounts
			caps[i] = acc
		}
	}
	return caps, nil
}

// canonicalize rewrites a JSON payload in RFC 8785 form.
func canonicalize(payload json.RawMessage) ([]byte, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return []byte(truePayload), nil
	}
	return jcs.Transform(payload)
}

func jcsMarshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(data)
}
