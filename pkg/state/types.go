package state

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

var ErrInvalidRef = errors.New("state: invalid ref")

// DefaultOwner is used when a Ref carries no owner.
const DefaultOwner = "local"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Ref identifies one persisted snapshot.
type Ref struct {
	Owner string
	Name  string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty" yaml:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Store loads and saves one snapshot for a single ref.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
	List(ctx context.Context, owner string) ([]Ref, error)
}

// Validator is implemented by snapshots that can check themselves before
// they are saved.
type Validator interface {
	Validate() error
}

type Mutator[T any] func(*T) error

// Identifier returns the canonical storage key for the ref, "owner/name".
func (r Ref) Identifier() (string, error) {
	n, err := r.normalized()
	if err != nil {
		return "", err
	}
	return n.Owner + "/" + n.Name, nil
}

// normalized trims the ref, applies DefaultOwner and checks both parts can
// be used as path segments.
func (r Ref) normalized() (Ref, error) {
	out := Ref{Owner: strings.TrimSpace(r.Owner), Name: strings.TrimSpace(r.Name)}
	if out.Owner == "" {
		out.Owner = DefaultOwner
	}
	if !namePattern.MatchString(out.Owner) {
		return Ref{}, fmt.Errorf("%w: owner %q", ErrInvalidRef, r.Owner)
	}
	if !namePattern.MatchString(out.Name) {
		return Ref{}, fmt.Errorf("%w: name %q", ErrInvalidRef, r.Name)
	}
	return out, nil
}

// Presets orchestrates validated, ETag-guarded writes over a Store.
type Presets[T any] struct {
	Store Store[T]
	Now   func() time.Time
}

// Get loads a snapshot. ok is false when nothing is stored under ref.
func (p Presets[T]) Get(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	if p.Store == nil {
		return zero, Meta{}, false, fmt.Errorf("state: store is required")
	}
	snapshot, meta, ok, err := p.Store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: load %q: %w", ref.Name, err)
	}
	return snapshot, meta, ok, nil
}

// Put replaces the snapshot stored under ref.
func (p Presets[T]) Put(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	_, saved, err := p.Mutate(ctx, ref, meta, func(current *T) error {
		*current = snapshot
		return nil
	})
	return saved, err
}

// Mutate loads one snapshot, applies fn, validates and saves the result. A
// non-empty meta.ETag must match the stored ETag.
func (p Presets[T]) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator[T]) (T, Meta, error) {
	var zero T
	if p.Store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return zero, Meta{}, err
	}

	snapshot, loadedMeta, ok, err := p.Store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %q: %w", ref.Name, err)
	}
	if !ok {
		snapshot = zero
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return zero, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return zero, loadedMeta, err
	}
	if v, ok := any(snapshot).(Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, loadedMeta, err
		}
	}

	saveMeta := mergeMeta(loadedMeta, meta)
	saveMeta.SnapshotID = uuid.NewString()
	saveMeta.ETag = saveMeta.SnapshotID[:8]
	saveMeta.UpdatedAt = p.now()

	savedMeta, err := p.Store.Save(ctx, ref, snapshot, saveMeta)
	if err != nil {
		return zero, loadedMeta, fmt.Errorf("state: save %q: %w", ref.Name, err)
	}
	return snapshot, savedMeta, nil
}

func (p Presets[T]) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
