package models

import (
	"fmt"
	"math/big"
)

// Node is a worker registered with the coordinator.
type Node struct {
	Id               string   `json:"id"`
	OwnerId          string   `json:"owner_id"`
	LastRun          int64    `json:"last_run"`
	LastSuccess      int64    `json:"last_success"`
	LastFailure      int64    `json:"last_failure"`
	LastReject       int64    `json:"last_reject"`
	LastUnanswered   int64    `json:"last_unanswered"`
	SuccessfulRuns   uint64   `json:"successful_runs"`
	FailedRuns       uint64   `json:"failed_runs"`
	UnansweredRuns   uint64   `json:"unanswered_runs"`
	RejectedRuns     uint64   `json:"rejected_runs"`
	AllowNetwork     bool     `json:"allow_network"`
	AllowGpu         bool     `json:"allow_gpu"`
	AbsoluteTimeout  uint64   `json:"absolute_timeout"` // milliseconds
	LifetimeEarnings *big.Int `json:"lifetime_earnings"`
	Deposit          *big.Int `json:"deposit"`
	RegistrationTime int64    `json:"registration_time"`
	Offline          bool     `json:"offline"`
	Removed          bool     `json:"removed"`
}

func NewNode(id, ownerId string, absoluteTimeout uint64, allowNetwork, allowGpu bool, deposit *big.Int, now int64) *Node {
	return &Node{
		Id:               id,
		OwnerId:          ownerId,
		AllowNetwork:     allowNetwork,
		AllowGpu:         allowGpu,
		AbsoluteTimeout:  absoluteTimeout,
		LifetimeEarnings: new(big.Int),
		Deposit:          new(big.Int).Set(deposit),
		RegistrationTime: now,
	}
}

// NodeId builds the identity a node is registered under.
func NodeId(name, ownerId string) string {
	return fmt.Sprintf("%s.node.%s", name, ownerId)
}

// Active reports whether the node sits in the online partition.
func (n *Node) Active() bool {
	return !n.Offline && !n.Removed
}

// RecordOutcome bumps the run counter and timestamp that matches status.
func (n *Node) RecordOutcome(status NodeResponseStatus, now int64) {
	n.LastRun = now
	switch status {
	case ResponseSuccess:
		n.SuccessfulRuns++
		n.LastSuccess = now
	case ResponseFailure:
		n.FailedRuns++
		n.LastFailure = now
	case ResponseReject:
		n.RejectedRuns++
		n.LastReject = now
	}
}

func (n *Node) RecordUnanswered(now int64) {
	n.UnansweredRuns++
	n.LastUnanswered = now
}

func (n *Node) String() string {
	return fmt.Sprintf("Node{id: %s, owner_id: %s, last_run: %d, successful_runs: %d, failed_runs: %d, allow_network: %t, allow_gpu: %t}",
		n.Id, n.OwnerId, n.LastRun, n.SuccessfulRuns, n.FailedRuns, n.AllowNetwork, n.AllowGpu)
}
