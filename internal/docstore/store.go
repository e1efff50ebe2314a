// Package docstore is the remote per-user document store: JSON object
// documents addressed by slash-separated paths, optimistic versions, merge
// writes and live change subscriptions.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrNotFound = errors.New("docstore: document not found")
	ErrConflict = errors.New("docstore: version conflict")
)

type Document struct {
	Path    string
	Data    json.RawMessage
	Version int64
}

func (d *Document) Decode(dest any) error {
	return json.Unmarshal(d.Data, dest)
}

type SetOptions struct {
	// Merge overlays top-level fields onto the stored object instead of
	// replacing it.
	Merge bool
}

// ChangeFunc receives the latest document, or nil when the path does not
// exist. It must not write to the store synchronously.
type ChangeFunc func(doc *Document)

type Unsubscribe func()

type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	Set(ctx context.Context, path string, data any, opts SetOptions) error
	// CompareAndSet writes data only if the stored version equals
	// expectedVersion; zero means the document must not exist yet.
	CompareAndSet(ctx context.Context, path string, expectedVersion int64, data any) error
	// Subscribe delivers the current document once before returning, then
	// every later change until the returned func is called.
	Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error)
	Close() error
}

func CartPath(uid string) string {
	return "users/" + uid + "/cart/main"
}

func RewardsPath(uid string) string {
	return "users/" + uid + "/rewards/main"
}

func WishlistPath(uid string) string {
	return "users/" + uid + "/wishlist/main"
}

func CouponPath(code string) string {
	return "coupons/" + code
}

func encode(data any) (json.RawMessage, error) {
	var raw []byte

	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document: %w", err)
		}
		raw = b
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("docstore: document must be a JSON object")
	}

	return trimmed, nil
}

// mergeObjects overlays the top-level fields of patch onto base.
func mergeObjects(base, patch json.RawMessage) (json.RawMessage, error) {
	merged := make(map[string]json.RawMessage)

	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, fmt.Errorf("failed to decode stored document: %w", err)
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}

	for k, v := range fields {
		merged[k] = v
	}

	return json.Marshal(merged)
}

// MutateFunc computes the next document from the current one (nil when
// absent). Returning an error aborts the update without retrying.
type MutateFunc func(current *Document) (any, error)

func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	return backoff.WithMaxRetries(b, 8)
}

// Update runs fn against the latest version and writes the result with
// CompareAndSet, retrying from a fresh read whenever another writer won.
func Update(ctx context.Context, store Store, path string, newBackOff func() backoff.BackOff, fn MutateFunc) error {
	if newBackOff == nil {
		newBackOff = DefaultBackOff
	}

	op := func() error {
		current, err := store.Get(ctx, path)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}

		var expected int64
		if current != nil {
			expected = current.Version
		}

		next, err := fn(current)
		if err != nil {
			return backoff.Permanent(err)
		}

		err = store.CompareAndSet(ctx, path, expected, next)
		if errors.Is(err, ErrConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		return nil
	}

	return backoff.Retry(op, backoff.WithContext(newBackOff(), ctx))
}
