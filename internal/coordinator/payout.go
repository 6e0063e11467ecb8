package coordinator

import (
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/lagrangedao/go-bounty-coordinator/internal/ledger"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"golang.org/x/xerrors"
)

// checkClaim returns the node's response if it may collect its share of the reward pool.
func checkClaim(r ledger.Reader, nodeId string, bounty *models.Bounty) (*models.Node, *models.NodeResponse, error) {
	node, err := getNode(r, nodeId)
	if err != nil {
		return nil, nil, err
	}
	if !bounty.IsElected(nodeId) {
		return nil, nil, xerrors.Errorf("node %s is not elected for bounty %s: %w", nodeId, bounty.Id, ErrInvalidState)
	}
	if !bounty.IsClosed() {
		return nil, nil, xerrors.Errorf("cannot collect rewards for pending bounty %s: %w", bounty.Id, ErrInvalidState)
	}
	response, ok := bounty.Answers[nodeId]
	if !ok {
		return nil, nil, xerrors.Errorf("node %s has not submitted an answer to bounty %s: %w", nodeId, bounty.Id, ErrInvalidState)
	}
	recipient, err := bounty.IsRecipient(nodeId)
	if err != nil {
		return nil, nil, xerrors.Errorf("%s: %w", err, ErrInvariant)
	}
	if !recipient {
		return nil, nil, xerrors.Errorf("node %s is not eligible for a reward from bounty %s: %w", nodeId, bounty.Id, ErrInvalidState)
	}
	if response.PayoutClaimed {
		return nil, nil, xerrors.Errorf("node %s has already claimed its payout for bounty %s: %w", nodeId, bounty.Id, ErrInvalidState)
	}
	return node, response, nil
}

// ShouldCollectReward reports whether the node can claim a reward right now.
// Only unknown nodes or bounties produce an error.
func (c *Coordinator) ShouldCollectReward(nodeId, bountyId string) (bool, error) {
	var eligible bool
	err := c.view(func(r ledger.Reader, _ *state) error {
		bounty, err := getBounty(r, bountyId)
		if err != nil {
			return err
		}
		_, _, err = checkClaim(r, nodeId, bounty)
		if err != nil {
			if xerrors.Is(err, ErrNotFound) {
				return err
			}
			logs.GetLogger().Infof("node %s should not collect from %s: %s", nodeId, bountyId, err)
			return nil
		}
		eligible = true
		return nil
	})
	return eligible, err
}

// CollectReward pays the node owner its share of a closed bounty's reward pool.
func (c *Coordinator) CollectReward(caller, nodeId, bountyId string) (*big.Int, error) {
	payout := new(big.Int)
	err := c.update(func(s *session) error {
		bounty, err := getBounty(s.tx, bountyId)
		if err != nil {
			return err
		}
		node, err := getNode(s.tx, nodeId)
		if err != nil {
			return err
		}
		if caller != node.OwnerId && !s.c.isCoordinator(caller) {
			return xerrors.Errorf("only the owner of node %s or the coordinator can collect its reward: %w", nodeId, ErrUnauthorized)
		}
		_, response, err := checkClaim(s.tx, nodeId, bounty)
		if err != nil {
			return err
		}

		share, err := bounty.RewardPerNode()
		if err != nil {
			return xerrors.Errorf("%s: %w", err, ErrInvariant)
		}
		payout.Set(share)
		logs.GetLogger().Infof("collecting reward of %s for bounty %s for node %s", payout, bountyId, nodeId)

		response.PayoutClaimed = true
		node.LifetimeEarnings.Add(node.LifetimeEarnings, payout)
		s.state.TotalPayouts.Add(s.state.TotalPayouts, payout)
		if err := s.putBounty(bounty); err != nil {
			return err
		}
		if err := s.putNode(node); err != nil {
			return err
		}
		s.transfer(models.TransferReward, node.OwnerId, payout, bountyId, nodeId)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// ReclaimRewardFromDroppedNodes returns to the bounty owner the unclaimed
// shares of recipients whose node has been removed since, once the grace
// period after creation has passed. Reclaimed shares are marked claimed.
func (c *Coordinator) ReclaimRewardFromDroppedNodes(caller, bountyId string) (*big.Int, error) {
	total := new(big.Int)
	err := c.update(func(s *session) error {
		bounty, err := s.loadOwnedBounty(caller, bountyId)
		if err != nil {
			return err
		}
		if !bounty.IsClosed() {
			return xerrors.Errorf("bounty %s is still pending: %w", bountyId, ErrInvalidState)
		}
		unlock := bounty.BountyCreated + s.c.cfg.ReclaimGracePeriod.Milliseconds()
		if s.now <= unlock {
			return xerrors.Errorf("bounty %s is not old enough to reclaim rewards, wait until %s: %w",
				bountyId, time.UnixMilli(unlock).UTC().Format(time.RFC3339), ErrInvalidState)
		}

		unpaid, err := bounty.RecipientsByClaim(false)
		if err != nil {
			return xerrors.Errorf("%s: %w", err, ErrInvariant)
		}
		share, err := bounty.RewardPerNode()
		if err != nil {
			return xerrors.Errorf("%s: %w", err, ErrInvariant)
		}

		var reclaimed []string
		for _, nodeId := range unpaid {
			node, err := getNode(s.tx, nodeId)
			if err != nil && !xerrors.Is(err, ErrNotFound) {
				return err
			}
			if node != nil && !node.Removed {
				logs.GetLogger().Infof("node %s is not removed, cannot reclaim its reward", nodeId)
				continue
			}
			logs.GetLogger().Infof("node %s is removed and has not collected its reward, refunding %s to %s", nodeId, share, bounty.OwnerId)
			bounty.Answers[nodeId].PayoutClaimed = true
			total.Add(total, share)
			reclaimed = append(reclaimed, nodeId)
		}
		if len(reclaimed) == 0 {
			return nil
		}
		if err := s.putBounty(bounty); err != nil {
			return err
		}
		sort.Strings(reclaimed)
		s.transfer(models.TransferReclaim, bounty.OwnerId, total, bountyId, strings.Join(reclaimed, ","))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}
