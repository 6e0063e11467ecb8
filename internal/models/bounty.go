package models

import (
	"fmt"
	"math/big"
	"sort"

	"golang.org/x/xerrors"
)

// ErrBountyOpen is returned by payout helpers that only make sense on a closed bounty.
var ErrBountyOpen = xerrors.New("bounty has not reached a terminal state")

type NodeResponse struct {
	NodeId        string             `json:"node_id"`
	Solution      string             `json:"solution"`
	Message       string             `json:"message"`
	Status        NodeResponseStatus `json:"status"`
	PayoutClaimed bool               `json:"payout_claimed"`
}

type Bounty struct {
	Id                   string                   `json:"id"`
	OwnerId              string                   `json:"owner_id"`
	CoordinatorId        string                   `json:"coordinator_id"`
	FileLocation         string                   `json:"file_location"`
	FileDownloadProtocol DownloadProtocol         `json:"file_download_protocol"`
	Status               BountyStatus             `json:"status"`
	MinNodes             uint64                   `json:"min_nodes"`
	BountyCreated        int64                    `json:"bounty_created"`
	LastElection         int64                    `json:"last_election"`
	NetworkRequired      bool                     `json:"network_required"`
	GpuRequired          bool                     `json:"gpu_required"`
	AmtStorage           *big.Int                 `json:"amt_storage"`
	AmtNodeReward        *big.Int                 `json:"amt_node_reward"`
	TimeoutSeconds       uint64                   `json:"timeout_seconds"`
	StorageUsed          uint64                   `json:"storage_used"`
	ElectedNodes         []string                 `json:"elected_nodes"`
	Answers              map[string]*NodeResponse `json:"answers"`
	SuccessfulNodes      IdSet                    `json:"successful_nodes"`
	FailedNodes          IdSet                    `json:"failed_nodes"`
	UnansweredNodes      IdSet                    `json:"unanswered_nodes"`
	RejectedNodes        IdSet                    `json:"rejected_nodes"`
}

// BountyId builds the identity of the index-th bounty created by ownerId at now (ms).
func BountyId(index uint64, now int64, ownerId string) string {
	return fmt.Sprintf("%d-%d.bounty.%s", index, now%1_000_000_000, ownerId)
}

func NewBounty(id, ownerId, coordinatorId, fileLocation string, protocol DownloadProtocol, minNodes, timeoutSeconds uint64,
	networkRequired, gpuRequired bool, amtStorage, amtNodeReward *big.Int, now int64) *Bounty {
	return &Bounty{
		Id:                   id,
		OwnerId:              ownerId,
		CoordinatorId:        coordinatorId,
		FileLocation:         fileLocation,
		FileDownloadProtocol: protocol,
		Status:               BountyPending,
		MinNodes:             minNodes,
		BountyCreated:        now,
		LastElection:         now,
		NetworkRequired:      networkRequired,
		GpuRequired:          gpuRequired,
		AmtStorage:           new(big.Int).Set(amtStorage),
		AmtNodeReward:        new(big.Int).Set(amtNodeReward),
		TimeoutSeconds:       timeoutSeconds,
		ElectedNodes:         []string{},
		Answers:              make(map[string]*NodeResponse),
		SuccessfulNodes:      NewIdSet(),
		FailedNodes:          NewIdSet(),
		UnansweredNodes:      NewIdSet(),
		RejectedNodes:        NewIdSet(),
	}
}

func (b *Bounty) IsClosed() bool {
	return b.Status != BountyPending
}

func (b *Bounty) IsElected(nodeId string) bool {
	for _, id := range b.ElectedNodes {
		if id == nodeId {
			return true
		}
	}
	return false
}

// Elect appends freshly drawn nodes to the roster; they start out unanswered.
func (b *Bounty) Elect(nodeIds []string, now int64) {
	for _, id := range nodeIds {
		b.ElectedNodes = append(b.ElectedNodes, id)
		b.UnansweredNodes.Add(id)
	}
	b.LastElection = now
}

// Drop removes unanswered nodes from the roster, keeping the election order of the rest.
func (b *Bounty) Drop(nodeIds []string) {
	dropped := NewIdSet(nodeIds...)
	kept := b.ElectedNodes[:0]
	for _, id := range b.ElectedNodes {
		if dropped.Contains(id) {
			b.UnansweredNodes.Remove(id)
			continue
		}
		kept = append(kept, id)
	}
	b.ElectedNodes = kept
}

// Record files a response under the outcome set that matches its status.
func (b *Bounty) Record(resp *NodeResponse) {
	b.UnansweredNodes.Remove(resp.NodeId)
	switch resp.Status {
	case ResponseSuccess:
		b.SuccessfulNodes.Add(resp.NodeId)
	case ResponseFailure:
		b.FailedNodes.Add(resp.NodeId)
	case ResponseReject:
		b.RejectedNodes.Add(resp.NodeId)
	}
	b.Answers[resp.NodeId] = resp
}

// QuorumReached reports whether either outcome class holds exactly min_nodes answers.
func (b *Bounty) QuorumReached() bool {
	return b.SuccessfulNodes.Len() == b.MinNodes || b.FailedNodes.Len() == b.MinNodes
}

// PayoutStrategy picks the recipient class from the final tallies. Successes are checked first.
func (b *Bounty) PayoutStrategy() (PayoutStrategy, error) {
	switch {
	case b.SuccessfulNodes.Len() >= b.MinNodes:
		return PayoutSuccessfulNodes, nil
	case b.FailedNodes.Len() >= b.MinNodes:
		return PayoutFailedNodes, nil
	case b.Status == BountyCancelled:
		return PayoutAllAnsweredNodes, nil
	}
	return "", xerrors.Errorf("bounty %s: %w", b.Id, ErrBountyOpen)
}

func (b *Bounty) PayoutRecipients() ([]string, error) {
	strategy, err := b.PayoutStrategy()
	if err != nil {
		return nil, err
	}
	switch strategy {
	case PayoutSuccessfulNodes:
		return b.SuccessfulNodes.List(), nil
	case PayoutFailedNodes:
		return b.FailedNodes.List(), nil
	default:
		ids := make([]string, 0, len(b.Answers))
		for id := range b.Answers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids, nil
	}
}

func (b *Bounty) IsRecipient(nodeId string) (bool, error) {
	strategy, err := b.PayoutStrategy()
	if err != nil {
		return false, err
	}
	switch strategy {
	case PayoutSuccessfulNodes:
		return b.SuccessfulNodes.Contains(nodeId), nil
	case PayoutFailedNodes:
		return b.FailedNodes.Contains(nodeId), nil
	default:
		_, ok := b.Answers[nodeId]
		return ok, nil
	}
}

// RewardPerNode splits the reward pool evenly over the recipient set, rounding down.
// An empty recipient set yields zero.
func (b *Bounty) RewardPerNode() (*big.Int, error) {
	recipients, err := b.PayoutRecipients()
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return new(big.Int), nil
	}
	return new(big.Int).Quo(b.AmtNodeReward, big.NewInt(int64(len(recipients)))), nil
}

// RecipientsByClaim filters the recipient set on the payout_claimed flag.
func (b *Bounty) RecipientsByClaim(claimed bool) ([]string, error) {
	recipients, err := b.PayoutRecipients()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range recipients {
		if resp, ok := b.Answers[id]; ok && resp.PayoutClaimed == claimed {
			out = append(out, id)
		}
	}
	return out, nil
}

// Result counts identical solutions over all answers.
func (b *Bounty) Result() map[string]uint64 {
	result := make(map[string]uint64)
	for _, resp := range b.Answers {
		result[resp.Solution]++
	}
	return result
}

func (b *Bounty) AnswerCounts() map[string]uint64 {
	return map[string]uint64{
		"answers":          uint64(len(b.Answers)),
		"successful_nodes": b.SuccessfulNodes.Len(),
		"failed_nodes":     b.FailedNodes.Len(),
		"rejected_nodes":   b.RejectedNodes.Len(),
		"unanswered_nodes": b.UnansweredNodes.Len(),
	}
}

// CheckPartition verifies that the four outcome sets partition the elected roster
// and that answers exist exactly for the nodes that left the unanswered set.
func (b *Bounty) CheckPartition() error {
	seen := make(map[string]int, len(b.ElectedNodes))
	for _, set := range []IdSet{b.SuccessfulNodes, b.FailedNodes, b.RejectedNodes, b.UnansweredNodes} {
		for id := range set {
			seen[id]++
		}
	}
	if len(seen) != len(b.ElectedNodes) {
		return xerrors.Errorf("bounty %s: %d nodes in outcome sets, %d elected", b.Id, len(seen), len(b.ElectedNodes))
	}
	for _, id := range b.ElectedNodes {
		if seen[id] != 1 {
			return xerrors.Errorf("bounty %s: node %s appears in %d outcome sets", b.Id, id, seen[id])
		}
		_, answered := b.Answers[id]
		if answered == b.UnansweredNodes.Contains(id) {
			return xerrors.Errorf("bounty %s: node %s answer and unanswered set disagree", b.Id, id)
		}
	}
	return nil
}

func (b *Bounty) String() string {
	return fmt.Sprintf("Bounty{id: %s, owner_id: %s, status: %s, min_nodes: %d, elected: %d, successful: %d, failed: %d, rejected: %d}",
		b.Id, b.OwnerId, b.Status, b.MinNodes, len(b.ElectedNodes), len(b.SuccessfulNodes), len(b.FailedNodes), len(b.RejectedNodes))
}
