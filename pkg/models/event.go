package models

import (
	"time"
)

// EventType classifies a journal event
type EventType string

const (
	EventLoaded     EventType = "loaded"
	EventLoadFailed EventType = "load_failed"
	EventUnloaded   EventType = "unloaded"
	EventBondFormed EventType = "bond_formed"
	EventBondBroken EventType = "bond_broken"
	EventCleared    EventType = "cleared"
)

// Event is one journal record of host activity
type Event struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Type   EventType `json:"type"`
	Name   string    `json:"name,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// EventsResponse carries a page of journal events, newest first
type EventsResponse struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}
