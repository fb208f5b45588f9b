package model

import "fmt"

// EventKind is the kind of change the host fires for an item.
type EventKind string

const (
	EventModify         EventKind = "modify"
	EventModifyMetadata EventKind = "modify_metadata"
	EventInstall        EventKind = "install"
)

// ParseEventKind validates an event kind string.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventModify, EventModifyMetadata, EventInstall:
		return k, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", s)
	}
}

// Event reports that an item changed. Version is the item version the change
// produced; together with ItemID and Kind it identifies the event.
type Event struct {
	Kind    EventKind `json:"kind"`
	ItemID  string    `json:"item_id"`
	Version int64     `json:"version"`
}

// ID returns the content-addressed event identity.
func (e Event) ID() (string, error) {
	return EventID(e)
}
