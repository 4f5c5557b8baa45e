package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-cascade/pkg/state"
)

type savedSearch struct {
	Institution string `yaml:"institution"`
	CourseCode  string `yaml:"course_code"`
	Term        string `yaml:"term"`
}

func (s savedSearch) Validate() error {
	if s == (savedSearch{}) {
		return errors.New("saved search has no filters")
	}
	return nil
}

func stores(t *testing.T) map[string]state.Store[savedSearch] {
	return map[string]state.Store[savedSearch]{
		"memory": state.NewMemoryStore[savedSearch](),
		"file":   state.NewFileStore[savedSearch](t.TempDir()),
	}
}

func TestRefIdentifier(t *testing.T) {
	cases := []struct {
		ref  state.Ref
		want string
		err  bool
	}{
		{ref: state.Ref{Name: "fall-cs"}, want: "local/fall-cs"},
		{ref: state.Ref{Owner: "ana", Name: "evening.v2"}, want: "ana/evening.v2"},
		{ref: state.Ref{Owner: "ana", Name: "../etc"}, err: true},
		{ref: state.Ref{Owner: "a/b", Name: "x"}, err: true},
		{ref: state.Ref{}, err: true},
	}
	for _, tc := range cases {
		got, err := tc.ref.Identifier()
		if tc.err {
			if !errors.Is(err, state.ErrInvalidRef) {
				t.Fatalf("%+v: expected ErrInvalidRef, got %v", tc.ref, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%+v: expected %q, got %q (%v)", tc.ref, tc.want, got, err)
		}
	}
}

func TestStoreContracts(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref := state.Ref{Name: "fall-cs"}

			if _, _, ok, err := store.Load(ctx, ref); ok || err != nil {
				t.Fatalf("expected empty load, got ok=%t err=%v", ok, err)
			}

			meta := state.Meta{SnapshotID: "snap-1", ETag: "v1", Extra: map[string]string{"source": "cli"}}
			snapshot := savedSearch{Institution: "Acme U", CourseCode: "CS101"}
			saved, err := store.Save(ctx, ref, snapshot, meta)
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if diff := cmp.Diff(meta, saved); diff != "" {
				t.Fatalf("save meta mismatch (-want +got):\n%s", diff)
			}

			got, gotMeta, ok, err := store.Load(ctx, ref)
			if err != nil || !ok {
				t.Fatalf("load: ok=%t err=%v", ok, err)
			}
			if diff := cmp.Diff(snapshot, got); diff != "" {
				t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(meta, gotMeta); diff != "" {
				t.Fatalf("loaded meta mismatch (-want +got):\n%s", diff)
			}

			if _, err := store.Save(ctx, state.Ref{Name: "beta"}, savedSearch{Institution: "Beta College"}, state.Meta{}); err != nil {
				t.Fatalf("save: %v", err)
			}
			if _, err := store.Save(ctx, state.Ref{Owner: "ana", Name: "other"}, savedSearch{Term: "Fall2024"}, state.Meta{}); err != nil {
				t.Fatalf("save: %v", err)
			}
			refs, err := store.List(ctx, "")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			names := make([]string, 0, len(refs))
			for _, r := range refs {
				names = append(names, r.Name)
			}
			if diff := cmp.Diff([]string{"beta", "fall-cs"}, names); diff != "" {
				t.Fatalf("list mismatch (-want +got):\n%s", diff)
			}

			if _, err := store.Save(ctx, state.Ref{Name: "../escape"}, snapshot, state.Meta{}); !errors.Is(err, state.ErrInvalidRef) {
				t.Fatalf("expected invalid ref, got %v", err)
			}
		})
	}
}

func TestPresetsMutate(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)
	presets := state.Presets[savedSearch]{
		Store: state.NewMemoryStore[savedSearch](),
		Now:   func() time.Time { return fixed },
	}
	ref := state.Ref{Name: "fall-cs"}

	first, err := presets.Put(ctx, ref, savedSearch{Institution: "Acme U"}, state.Meta{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if first.SnapshotID == "" || first.ETag == "" || !first.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected fresh metadata, got %+v", first)
	}

	updated, second, err := presets.Mutate(ctx, ref, state.Meta{ETag: first.ETag}, func(s *savedSearch) error {
		s.CourseCode = "CS101"
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if updated.Institution != "Acme U" || updated.CourseCode != "CS101" {
		t.Fatalf("mutation should start from stored snapshot, got %+v", updated)
	}
	if second.ETag == first.ETag {
		t.Fatalf("expected a new etag after save")
	}

	_, _, err = presets.Mutate(ctx, ref, state.Meta{ETag: first.ETag}, func(*savedSearch) error { return nil })
	if !errors.Is(err, state.ErrETagMismatch) {
		t.Fatalf("expected ErrETagMismatch, got %v", err)
	}

	got, _, ok, err := presets.Get(ctx, ref)
	if err != nil || !ok || got.CourseCode != "CS101" {
		t.Fatalf("unexpected stored snapshot %+v ok=%t err=%v", got, ok, err)
	}
}

type countingStore struct {
	state.Store[savedSearch]
	saves int
}

func (s *countingStore) Save(ctx context.Context, ref state.Ref, snapshot savedSearch, meta state.Meta) (state.Meta, error) {
	s.saves++
	return s.Store.Save(ctx, ref, snapshot, meta)
}

func TestPresetsValidationFailureDoesNotSave(t *testing.T) {
	store := &countingStore{Store: state.NewMemoryStore[savedSearch]()}
	presets := state.Presets[savedSearch]{Store: store}

	if _, err := presets.Put(context.Background(), state.Ref{Name: "empty"}, savedSearch{}, state.Meta{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if store.saves != 0 {
		t.Fatalf("expected no save, got %d", store.saves)
	}

	boom := errors.New("boom")
	_, _, err := presets.Mutate(context.Background(), state.Ref{Name: "x"}, state.Meta{}, func(*savedSearch) error { return boom })
	if !errors.Is(err, boom) || store.saves != 0 {
		t.Fatalf("mutator errors must abort the save, got %v (saves=%d)", err, store.saves)
	}
}

func TestPresetsRequireStore(t *testing.T) {
	var presets state.Presets[savedSearch]
	if _, _, _, err := presets.Get(context.Background(), state.Ref{Name: "x"}); err == nil {
		t.Fatalf("expected error without store")
	}
}
