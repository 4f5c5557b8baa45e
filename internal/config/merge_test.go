package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type mergeSettings struct {
	Enabled   *bool
	Threshold *int
	Limits    map[string]int
	Tags      []string
	Channel   *mergeChannel
	Name      string
}

type mergeChannel struct {
	Volume *int
	Labels []string
}

func TestMergeLayers(t *testing.T) {
	strong := mergeSettings{
		Threshold: ptr(9),
		Limits:    map[string]int{"b": 20},
		Channel:   &mergeChannel{Labels: []string{"strong"}},
		Name:      "strong",
	}
	weak := mergeSettings{
		Enabled:   ptr(true),
		Threshold: ptr(1),
		Limits:    map[string]int{"a": 1, "b": 2},
		Tags:      []string{"weak"},
		Channel:   &mergeChannel{Volume: ptr(3), Labels: []string{"weak"}},
		Name:      "weak",
	}

	got := MergeLayers(strong, weak)
	want := mergeSettings{
		Enabled:   ptr(true),
		Threshold: ptr(9),
		Limits:    map[string]int{"a": 1, "b": 20},
		Tags:      []string{"weak"},
		Channel:   &mergeChannel{Volume: ptr(3), Labels: []string{"strong"}},
		Name:      "strong",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}

	got.Limits["a"] = 100
	*got.Channel.Volume = 100
	if weak.Limits["a"] != 1 || *weak.Channel.Volume != 3 {
		t.Fatalf("merge must not alias the input layers")
	}
}

func TestMergeLayersZeroInput(t *testing.T) {
	var zero mergeSettings
	if diff := cmp.Diff(zero, MergeLayers[mergeSettings]()); diff != "" {
		t.Fatalf("expected zero value (-want +got):\n%s", diff)
	}
}
