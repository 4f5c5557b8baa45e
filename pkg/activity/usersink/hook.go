package usersink

import (
	"context"
	"strings"

	"github.com/goliatone/go-cascade/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook records course search activity in a go-users ActivitySink. Session
// and field identifiers travel in the record data under "session_id" and
// "field".
type Hook struct {
	Sink usertypes.ActivitySink
}

// SearchesOnly returns a hook that records search lifecycle events and skips
// individual field edits.
func SearchesOnly(sink usertypes.ActivitySink) activity.ActivityHook {
	return activity.Only(Hook{Sink: sink},
		activity.VerbSearchSubmitted,
		activity.VerbSearchCompleted,
		activity.VerbSearchFailed,
	)
}

func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	event = activity.NormalizeEvent(event)
	if !event.Valid() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return h.Sink.Log(ctx, Record(event))
}

// Record maps a normalized event onto an ActivityRecord. Identifiers that
// are not UUIDs map to uuid.Nil.
func Record(event activity.Event) usertypes.ActivityRecord {
	data := make(map[string]any, len(event.Metadata)+2)
	for key, value := range event.Metadata {
		data[key] = value
	}
	if event.SessionID != "" {
		data["session_id"] = event.SessionID
	}
	if event.Field != "" {
		data["field"] = event.Field
	}
	if len(data) == 0 {
		data = nil
	}
	return usertypes.ActivityRecord{
		ActorID:    parseUUID(event.ActorID),
		UserID:     parseUUID(event.UserID),
		TenantID:   parseUUID(event.TenantID),
		Verb:       event.Verb,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Channel:    event.Channel,
		Data:       data,
		OccurredAt: event.OccurredAt,
	}
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
