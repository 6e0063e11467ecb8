package models

import (
	"encoding/json"
	"fmt"
)

const (
	EventStandard = "bounty-coordinator"
	EventVersion  = "1.0.0"

	EventBountyCreated   = "bounty_created"
	EventBountyRetry     = "bounty_retry"
	EventBountyCompleted = "bounty_completed"
)

// EventLog is the envelope every notification is published in.
type EventLog struct {
	Standard string      `json:"standard"`
	Version  string      `json:"version"`
	Event    string      `json:"event"`
	Data     interface{} `json:"data"`
}

type BountyCreatedLog struct {
	CoordinatorId string   `json:"coordinator_id"`
	BountyId      string   `json:"bounty_id"`
	NodeIds       []string `json:"node_ids"`
	Message       string   `json:"message,omitempty"`
}

type BountyRetryLog struct {
	CoordinatorId string   `json:"coordinator_id"`
	BountyId      string   `json:"bounty_id"`
	NodeIds       []string `json:"node_ids"`
	Message       string   `json:"message,omitempty"`
}

type BountyCompletedLog struct {
	CoordinatorId    string         `json:"coordinator_id"`
	BountyId         string         `json:"bounty_id"`
	NodeIds          []string       `json:"node_ids"`
	RewardRecipients []string       `json:"reward_recipients"`
	Outcome          BountyStatus   `json:"outcome"`
	PayoutStrategy   PayoutStrategy `json:"payout_strategy"`
	Message          string         `json:"message,omitempty"`
}

func NewEventLog(event string, data interface{}) *EventLog {
	return &EventLog{
		Standard: EventStandard,
		Version:  EventVersion,
		Event:    event,
		Data:     data,
	}
}

// BountyId returns the bounty the event refers to.
func (e *EventLog) BountyId() string {
	switch d := e.Data.(type) {
	case *BountyCreatedLog:
		return d.BountyId
	case *BountyRetryLog:
		return d.BountyId
	case *BountyCompletedLog:
		return d.BountyId
	}
	return ""
}

// NodeIds returns the nodes the event is addressed to.
func (e *EventLog) NodeIds() []string {
	switch d := e.Data.(type) {
	case *BountyCreatedLog:
		return d.NodeIds
	case *BountyRetryLog:
		return d.NodeIds
	case *BountyCompletedLog:
		return d.NodeIds
	}
	return nil
}

func (e *EventLog) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("EVENT_JSON:{\"event\":%q}", e.Event)
	}
	return "EVENT_JSON:" + string(data)
}
