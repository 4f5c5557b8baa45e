package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Context identifies the data service response a payload came from.
type Context struct {
	Endpoint string
	Type     string
}

func (c Context) label() string {
	if c.Type == "" {
		return c.Endpoint
	}
	return c.Endpoint + "?type=" + c.Type
}

// PreHook lets callers mutate or normalise the payload before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the hydrated struct after decoding.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts loosely typed service payloads into strongly typed structs.
type Decoder[T any] struct {
	preHooks     []PreHook
	postHooks    []PostHook[T]
	configureDec []func(*json.Decoder)
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithUseNumber enables json.Decoder.UseNumber during decoding.
func WithUseNumber[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.UseNumber()
		})
	}
}

// WithDisallowUnknownFields invokes json.Decoder.DisallowUnknownFields.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.DisallowUnknownFields()
		})
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts payload into the target struct T applying configured hooks.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T

	if payload == nil {
		return zero, fmt.Errorf("hydrate: payload is nil for %q", ctx.label())
	}

	current, err := clonePayload(payload)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone payload for %q: %w", ctx.label(), err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for %q failed: %w", ctx.label(), err)
		}
		if next != nil {
			current = next
		}
	}

	buffer, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("hydrate: marshal payload for %q: %w", ctx.label(), err)
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	for _, configure := range d.configureDec {
		configure(decoder)
	}
	var result T
	if err := decoder.Decode(&result); err != nil {
		return zero, fmt.Errorf("hydrate: decode %q: %w", ctx.label(), err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for %q failed: %w", ctx.label(), err)
		}
	}

	return result, nil
}

func clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(buffer))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeList decodes every element of payload, failing on the first error.
func (d *Decoder[T]) DecodeList(ctx Context, payload []map[string]any) ([]T, error) {
	out := make([]T, 0, len(payload))
	for i, item := range payload {
		value, err := d.Decode(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("hydrate: element %d: %w", i, err)
		}
		out = append(out, value)
	}
	return out, nil
}

// DecodeJSON parses a JSON array of objects and decodes each element.
// Numbers are kept as json.Number so ids survive without float rounding.
func (d *Decoder[T]) DecodeJSON(ctx Context, data []byte) ([]T, error) {
	var items []map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("hydrate: parse %q: %w", ctx.label(), err)
	}
	return d.DecodeList(ctx, items)
}

// StringifyKeys returns a pre-hook that renders scalar values under keys as
// strings, e.g. numeric course ids.
func StringifyKeys(keys ...string) PreHook {
	return func(_ Context, payload map[string]any) (map[string]any, error) {
		for _, key := range keys {
			value, ok := payload[key]
			if !ok || value == nil {
				continue
			}
			text, err := scalarString(value)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			payload[key] = text
		}
		return payload, nil
	}
}

// RenameKeys returns a pre-hook that moves values from alias keys to their
// canonical names when the canonical key is absent.
func RenameKeys(aliases map[string]string) PreHook {
	return func(_ Context, payload map[string]any) (map[string]any, error) {
		for alias, canonical := range aliases {
			value, ok := payload[alias]
			if !ok {
				continue
			}
			if _, exists := payload[canonical]; !exists {
				payload[canonical] = value
			}
			delete(payload, alias)
		}
		return payload, nil
	}
}

// TrimStrings trims whitespace from every top-level string value.
func TrimStrings(_ Context, payload map[string]any) (map[string]any, error) {
	for key, value := range payload {
		if text, ok := value.(string); ok {
			payload[key] = strings.TrimSpace(text)
		}
	}
	return payload, nil
}

// DecodeStrings parses a JSON array whose elements are strings or numbers
// into strings. Null elements are dropped.
func DecodeStrings(ctx Context, data []byte) ([]string, error) {
	var items []any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("hydrate: parse %q: %w", ctx.label(), err)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		text, err := scalarString(item)
		if err != nil {
			return nil, fmt.Errorf("hydrate: %q element %d: %w", ctx.label(), i, err)
		}
		out = append(out, text)
	}
	return out, nil
}

// DecodeString parses a JSON string, number or null. Null yields "".
func DecodeString(ctx Context, data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", nil
	}
	var item any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&item); err != nil {
		return "", fmt.Errorf("hydrate: parse %q: %w", ctx.label(), err)
	}
	if item == nil {
		return "", nil
	}
	text, err := scalarString(item)
	if err != nil {
		return "", fmt.Errorf("hydrate: %q: %w", ctx.label(), err)
	}
	return text, nil
}

func scalarString(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(typed), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case bool:
		return strconv.FormatBool(typed), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
