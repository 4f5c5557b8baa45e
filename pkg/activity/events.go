package activity

import (
	"strings"
	"time"
)

// Verbs emitted by the course search controller.
const (
	VerbFieldChanged    = "search.field.changed"
	VerbOptionsResolved = "search.options.resolved"
	VerbOptionsFailed   = "search.options.failed"
	VerbSearchSubmitted = "search.submitted"
	VerbSearchCompleted = "search.completed"
	VerbSearchFailed    = "search.failed"
)

// Object types reported on events.
const (
	ObjectField   = "search.field"
	ObjectSession = "search.session"
)

// Identity carries the optional actor/tenant identifiers attached to every
// event of a session.
type Identity struct {
	ActorID  string
	UserID   string
	TenantID string
}

// FieldEventInput describes a change to, or a resolution of, one form field.
type FieldEventInput struct {
	Identity
	SessionID  string
	Channel    string
	Field      string
	Value      string
	OldValue   string
	Level      string
	Seq        uint64
	Count      int
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// SearchEventInput describes a submitted search and its outcome.
type SearchEventInput struct {
	Identity
	SessionID  string
	Channel    string
	Query      map[string]string
	Seq        uint64
	Count      int
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildFieldChangedEvent records a selection made on a field.
func BuildFieldChangedEvent(input FieldEventInput) Event {
	return buildFieldEvent(VerbFieldChanged, input)
}

// BuildOptionsResolvedEvent records an option list applied to a field.
func BuildOptionsResolvedEvent(input FieldEventInput) Event {
	return buildFieldEvent(VerbOptionsResolved, input)
}

// BuildOptionsFailedEvent records a failed option resolution.
func BuildOptionsFailedEvent(input FieldEventInput) Event {
	return buildFieldEvent(VerbOptionsFailed, input)
}

// BuildSearchSubmittedEvent records a dispatched search.
func BuildSearchSubmittedEvent(input SearchEventInput) Event {
	return buildSearchEvent(VerbSearchSubmitted, input)
}

// BuildSearchCompletedEvent records a search whose results were rendered.
func BuildSearchCompletedEvent(input SearchEventInput) Event {
	return buildSearchEvent(VerbSearchCompleted, input)
}

// BuildSearchFailedEvent records a failed search.
func BuildSearchFailedEvent(input SearchEventInput) Event {
	return buildSearchEvent(VerbSearchFailed, input)
}

func buildFieldEvent(verb string, input FieldEventInput) Event {
	metadata := cloneMap(input.Metadata)
	field := strings.TrimSpace(input.Field)
	session := strings.TrimSpace(input.SessionID)
	if input.Value != "" {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.Value
	}
	if input.OldValue != "" {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.Level != "" {
		metadata = ensureMetadata(metadata)
		metadata["level"] = input.Level
	}
	if input.Seq > 0 {
		metadata = ensureMetadata(metadata)
		metadata["seq"] = input.Seq
	}
	if verb == VerbOptionsResolved {
		metadata = ensureMetadata(metadata)
		metadata["count"] = input.Count
	}
	if input.Err != nil {
		metadata = ensureMetadata(metadata)
		metadata["error"] = input.Err.Error()
	}

	objectID := field
	if session != "" && field != "" {
		objectID = session + "/" + field
	}
	if objectID == "" {
		objectID = ObjectField
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectField,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		SessionID:  session,
		Field:      field,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func buildSearchEvent(verb string, input SearchEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if len(input.Query) > 0 {
		metadata = ensureMetadata(metadata)
		query := make(map[string]any, len(input.Query))
		for key, value := range input.Query {
			query[key] = value
		}
		metadata["query"] = query
	}
	if input.Seq > 0 {
		metadata = ensureMetadata(metadata)
		metadata["seq"] = input.Seq
	}
	if verb == VerbSearchCompleted {
		metadata = ensureMetadata(metadata)
		metadata["count"] = input.Count
	}
	if input.Err != nil {
		metadata = ensureMetadata(metadata)
		metadata["error"] = input.Err.Error()
	}

	objectID := strings.TrimSpace(input.SessionID)
	if objectID == "" {
		objectID = ObjectSession
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectSession,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		SessionID:  strings.TrimSpace(input.SessionID),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
