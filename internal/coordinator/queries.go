package coordinator

import (
	"math/big"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/ledger"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"golang.org/x/xerrors"
)

type Stats struct {
	NodeCount              uint64   `json:"node_count"`
	OfflineNodeCount       uint64   `json:"offline_node_count"`
	QueueLength            uint64   `json:"queue_length"`
	BountyCount            uint64   `json:"bounty_count"`
	ActiveBountyCount      uint64   `json:"active_bounty_count"`
	TotalCompletedBounties uint64   `json:"total_completed_bounties"`
	TotalPayouts           *big.Int `json:"total_payouts"`
}

func (c *Coordinator) Stats() (*Stats, error) {
	var stats Stats
	err := c.view(func(r ledger.Reader, st *state) error {
		nodes, err := allNodes(r)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			switch {
			case node.Removed:
			case node.Offline:
				stats.OfflineNodeCount++
			default:
				stats.NodeCount++
			}
		}
		bountyIds, err := r.Keys(constants.PREFIX_BOUNTY)
		if err != nil {
			return err
		}
		stats.BountyCount = uint64(len(bountyIds))
		stats.QueueLength = uint64(len(st.NodeQueue))
		stats.ActiveBountyCount = st.ActiveBounties.Len()
		stats.TotalCompletedBounties = st.TotalCompletedBounties
		stats.TotalPayouts = st.TotalPayouts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Coordinator) GetNode(nodeId string) (*models.Node, error) {
	var node *models.Node
	err := c.view(func(r ledger.Reader, _ *state) error {
		var err error
		node, err = getNode(r, nodeId)
		return err
	})
	return node, err
}

func (c *Coordinator) GetBounty(bountyId string) (*models.Bounty, error) {
	var bounty *models.Bounty
	err := c.view(func(r ledger.Reader, _ *state) error {
		var err error
		bounty, err = getBounty(r, bountyId)
		return err
	})
	return bounty, err
}

func allNodes(r ledger.Reader) ([]*models.Node, error) {
	ids, err := r.Keys(constants.PREFIX_NODE)
	if err != nil {
		return nil, err
	}
	nodes := make([]*models.Node, 0, len(ids))
	for _, id := range ids {
		node, err := getNode(r, id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// GetNodes lists every node record, removed ones included.
func (c *Coordinator) GetNodes() ([]*models.Node, error) {
	var nodes []*models.Node
	err := c.view(func(r ledger.Reader, _ *state) error {
		var err error
		nodes, err = allNodes(r)
		return err
	})
	return nodes, err
}

func (c *Coordinator) GetBounties() ([]*models.Bounty, error) {
	var bounties []*models.Bounty
	err := c.view(func(r ledger.Reader, _ *state) error {
		ids, err := r.Keys(constants.PREFIX_BOUNTY)
		if err != nil {
			return err
		}
		for _, id := range ids {
			bounty, err := getBounty(r, id)
			if err != nil {
				return err
			}
			bounties = append(bounties, bounty)
		}
		return nil
	})
	return bounties, err
}

func (c *Coordinator) ActiveBounties() ([]string, error) {
	var ids []string
	err := c.view(func(_ ledger.Reader, st *state) error {
		ids = st.ActiveBounties.List()
		return nil
	})
	return ids, err
}

// nodesForOwner follows the owner index, skipping entries whose record is gone.
func nodesForOwner(r ledger.Reader, ownerId string) ([]*models.Node, error) {
	ids, err := getIndex(r, constants.PREFIX_OWNER_NODES+ownerId)
	if err != nil {
		return nil, err
	}
	nodes := make([]*models.Node, 0, len(ids))
	for _, id := range ids {
		node, err := getNode(r, id)
		if err != nil {
			if xerrors.Is(err, ErrNotFound) {
				logs.GetLogger().Warnf("node %s is listed for owner %s but does not exist", id, ownerId)
				continue
			}
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (c *Coordinator) NodesForOwner(ownerId string) ([]*models.Node, error) {
	var nodes []*models.Node
	err := c.view(func(r ledger.Reader, _ *state) error {
		var err error
		nodes, err = nodesForOwner(r, ownerId)
		return err
	})
	return nodes, err
}

// NodesForOwnerCount counts owner index entries without resolving them.
func (c *Coordinator) NodesForOwnerCount(ownerId string) (int, error) {
	var count int
	err := c.view(func(r ledger.Reader, _ *state) error {
		ids, err := getIndex(r, constants.PREFIX_OWNER_NODES+ownerId)
		count = len(ids)
		return err
	})
	return count, err
}

func (c *Coordinator) LifetimeEarningsForOwner(ownerId string) (*big.Int, error) {
	total := new(big.Int)
	err := c.view(func(r ledger.Reader, _ *state) error {
		nodes, err := nodesForOwner(r, ownerId)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			total.Add(total, node.LifetimeEarnings)
		}
		return nil
	})
	return total, err
}

func (c *Coordinator) BountiesForOwner(ownerId string) ([]*models.Bounty, error) {
	var bounties []*models.Bounty
	err := c.view(func(r ledger.Reader, _ *state) error {
		ids, err := getIndex(r, constants.PREFIX_OWNER_BOUNTIES+ownerId)
		if err != nil {
			return err
		}
		for _, id := range ids {
			bounty, err := getBounty(r, id)
			if err != nil {
				if xerrors.Is(err, ErrNotFound) {
					logs.GetLogger().Warnf("bounty %s is listed for owner %s but does not exist", id, ownerId)
					continue
				}
				return err
			}
			bounties = append(bounties, bounty)
		}
		return nil
	})
	return bounties, err
}

func (c *Coordinator) BountiesForOwnerCount(ownerId string) (int, error) {
	var count int
	err := c.view(func(r ledger.Reader, _ *state) error {
		ids, err := getIndex(r, constants.PREFIX_OWNER_BOUNTIES+ownerId)
		count = len(ids)
		return err
	})
	return count, err
}

type NodeSetKind string

const (
	SetElected    NodeSetKind = "elected"
	SetUnanswered NodeSetKind = "unanswered"
	SetSuccessful NodeSetKind = "successful"
	SetFailed     NodeSetKind = "failed"
	SetRejected   NodeSetKind = "rejected"
)

// BountyNodes returns one of the node lists of a bounty.
func (c *Coordinator) BountyNodes(bountyId string, kind NodeSetKind) ([]string, error) {
	bounty, err := c.GetBounty(bountyId)
	if err != nil {
		return nil, err
	}
	switch kind {
	case SetElected:
		return bounty.ElectedNodes, nil
	case SetUnanswered:
		return bounty.UnansweredNodes.List(), nil
	case SetSuccessful:
		return bounty.SuccessfulNodes.List(), nil
	case SetFailed:
		return bounty.FailedNodes.List(), nil
	case SetRejected:
		return bounty.RejectedNodes.List(), nil
	}
	return nil, xerrors.Errorf("unknown node set %q: %w", kind, ErrInvalidArgument)
}

func (c *Coordinator) AnswerCounts(bountyId string) (map[string]uint64, error) {
	bounty, err := c.GetBounty(bountyId)
	if err != nil {
		return nil, err
	}
	return bounty.AnswerCounts(), nil
}

// BountyResult maps each submitted solution to the number of nodes that gave it.
func (c *Coordinator) BountyResult(bountyId string) (map[string]uint64, error) {
	bounty, err := c.GetBounty(bountyId)
	if err != nil {
		return nil, err
	}
	if !bounty.IsClosed() {
		return nil, xerrors.Errorf("bounty %s must be complete or cancelled to get its result: %w", bountyId, ErrInvalidState)
	}
	return bounty.Result(), nil
}

// GetAnswer returns a node's response once the bounty is closed.
func (c *Coordinator) GetAnswer(bountyId, nodeId string) (*models.NodeResponse, error) {
	var answer *models.NodeResponse
	err := c.view(func(r ledger.Reader, _ *state) error {
		bounty, err := getBounty(r, bountyId)
		if err != nil {
			return err
		}
		if !bounty.IsClosed() {
			return xerrors.Errorf("answers of pending bounty %s are only visible to the node owner: %w", bountyId, ErrInvalidState)
		}
		if _, err := getNode(r, nodeId); err != nil {
			return err
		}
		var ok bool
		if answer, ok = bounty.Answers[nodeId]; !ok {
			return xerrors.Errorf("node %s has not submitted an answer for bounty %s: %w", nodeId, bountyId, ErrNotFound)
		}
		return nil
	})
	return answer, err
}

// GetPendingAnswer returns a node's response to an in-flight bounty to the node owner or the coordinator.
func (c *Coordinator) GetPendingAnswer(caller, bountyId, nodeId string) (*models.NodeResponse, error) {
	var answer *models.NodeResponse
	err := c.view(func(r ledger.Reader, _ *state) error {
		bounty, err := getBounty(r, bountyId)
		if err != nil {
			return err
		}
		if bounty.IsClosed() {
			return xerrors.Errorf("bounty %s is closed, use the public answer lookup: %w", bountyId, ErrInvalidState)
		}
		if !bounty.IsElected(nodeId) {
			return xerrors.Errorf("node %s is not elected for bounty %s: %w", nodeId, bountyId, ErrInvalidState)
		}
		node, err := getNode(r, nodeId)
		if err != nil {
			return err
		}
		if caller != node.OwnerId && !c.isCoordinator(caller) {
			return xerrors.Errorf("only the node owner or the coordinator can read an answer to a pending bounty: %w", ErrUnauthorized)
		}
		var ok bool
		if answer, ok = bounty.Answers[nodeId]; !ok {
			return xerrors.Errorf("node %s has not submitted an answer for bounty %s: %w", nodeId, bountyId, ErrNotFound)
		}
		return nil
	})
	return answer, err
}

// ShouldPostAnswer tells node software whether working on the bounty is still useful.
func (c *Coordinator) ShouldPostAnswer(bountyId, nodeId string) (bool, error) {
	var should bool
	err := c.view(func(r ledger.Reader, _ *state) error {
		bounty, err := getBounty(r, bountyId)
		if err != nil {
			return err
		}
		if _, err := getNode(r, nodeId); err != nil {
			return err
		}

		log := logs.GetLogger()
		switch {
		case bounty.IsClosed():
			log.Infof("should not publish, bounty %s is complete (%s)", bountyId, bounty.Status)
		case !bounty.IsElected(nodeId):
			log.Infof("should not publish, %s is not an elected node", nodeId)
		case bounty.Answers[nodeId] != nil:
			log.Infof("should not publish, %s has already submitted an answer", nodeId)
		case bounty.SuccessfulNodes.Len() >= bounty.MinNodes:
			log.Info("should not publish, we have enough successful nodes to close the bounty")
		case bounty.FailedNodes.Len() >= bounty.MinNodes:
			log.Info("should not publish, we have enough failed nodes to close the bounty")
		default:
			minimal := &models.NodeResponse{NodeId: nodeId, Status: models.ResponseFailure}
			size, err := ledger.EncodedSize(minimal)
			if err != nil {
				return err
			}
			if c.ledger.StorageCost(bounty.StorageUsed+size).Cmp(bounty.AmtStorage) > 0 {
				log.Infof("should not publish, bounty %s has no storage left", bountyId)
				return nil
			}
			should = true
		}
		return nil
	})
	return should, err
}

type PayoutSummary struct {
	Strategy      models.PayoutStrategy `json:"payout_strategy"`
	RewardPerNode *big.Int              `json:"reward_per_node"`
	Recipients    []string              `json:"recipients"`
	Paid          []string              `json:"paid"`
	Unpaid        []string              `json:"unpaid"`
}

// Payouts describes how a closed bounty's reward pool is split.
func (c *Coordinator) Payouts(bountyId string) (*PayoutSummary, error) {
	bounty, err := c.GetBounty(bountyId)
	if err != nil {
		return nil, err
	}
	if !bounty.IsClosed() {
		return nil, xerrors.Errorf("bounty %s is still pending: %w", bountyId, ErrInvalidState)
	}

	var summary PayoutSummary
	if summary.Strategy, err = bounty.PayoutStrategy(); err != nil {
		return nil, xerrors.Errorf("%s: %w", err, ErrInvariant)
	}
	if summary.RewardPerNode, err = bounty.RewardPerNode(); err != nil {
		return nil, xerrors.Errorf("%s: %w", err, ErrInvariant)
	}
	if summary.Recipients, err = bounty.PayoutRecipients(); err != nil {
		return nil, xerrors.Errorf("%s: %w", err, ErrInvariant)
	}
	if summary.Paid, err = bounty.RecipientsByClaim(true); err != nil {
		return nil, xerrors.Errorf("%s: %w", err, ErrInvariant)
	}
	if summary.Unpaid, err = bounty.RecipientsByClaim(false); err != nil {
		return nil, xerrors.Errorf("%s: %w", err, ErrInvariant)
	}
	return &summary, nil
}
