package coordinator

import (
	"math"
	"math/big"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/ledger"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"golang.org/x/xerrors"
)

type BountyRequest struct {
	FileLocation         string                  `json:"file_location"`
	FileDownloadProtocol models.DownloadProtocol `json:"file_download_protocol"`
	MinNodes             uint64                  `json:"min_nodes"`
	TimeoutSeconds       uint64                  `json:"timeout_seconds"`
	NetworkRequired      bool                    `json:"network_required"`
	GpuRequired          bool                    `json:"gpu_required"`
	AmtStorage           *big.Int                `json:"amt_storage"`
	AmtNodeReward        *big.Int                `json:"amt_node_reward"`
}

func (r *BountyRequest) validate() error {
	if !r.FileDownloadProtocol.Valid() {
		return xerrors.Errorf("unsupported download protocol %q: %w", r.FileDownloadProtocol, ErrInvalidArgument)
	}
	if r.MinNodes == 0 {
		return xerrors.Errorf("min_nodes must be at least 1: %w", ErrInvalidArgument)
	}
	if r.TimeoutSeconds > math.MaxUint64/1000 {
		return xerrors.Errorf("timeout_seconds %d is out of range: %w", r.TimeoutSeconds, ErrInvalidArgument)
	}
	if r.AmtStorage == nil || r.AmtStorage.Sign() < 0 || r.AmtNodeReward == nil || r.AmtNodeReward.Sign() < 0 {
		return xerrors.Errorf("amt_storage and amt_node_reward must be non-negative amounts: %w", ErrInvalidArgument)
	}
	return nil
}

func (c *Coordinator) CreateBounty(caller string, req BountyRequest, att models.Attachment) (*models.Bounty, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	total := new(big.Int).Add(req.AmtStorage, req.AmtNodeReward)
	if att.Value().Cmp(total) != 0 {
		return nil, xerrors.Errorf("attached deposit %s must be equal to the sum of the storage and node reward amounts (%s): %w",
			att.Value(), total, ErrResourceExhausted)
	}
	if req.AmtStorage.Cmp(c.cfg.MinStorage) < 0 {
		return nil, xerrors.Errorf("storage deposit must be at least %s: %w", c.cfg.MinStorage, ErrResourceExhausted)
	}
	if req.AmtNodeReward.Cmp(c.cfg.MinReward) < 0 {
		return nil, xerrors.Errorf("node reward must be at least %s: %w", c.cfg.MinReward, ErrResourceExhausted)
	}

	electionCount := c.PaddedCount(req.MinNodes)
	var bounty *models.Bounty
	err := c.update(func(s *session) error {
		if uint64(len(s.state.NodeQueue)) < electionCount {
			return xerrors.Errorf("not enough nodes registered for bounty, need %d, have %d: %w",
				electionCount, len(s.state.NodeQueue), ErrResourceExhausted)
		}

		bountyId := models.BountyId(s.state.UniversalBountyIndex, s.now, caller)
		exists, err := s.tx.Has(constants.PREFIX_BOUNTY + bountyId)
		if err != nil {
			return err
		}
		if exists {
			return xerrors.Errorf("bounty already exists: %s: %w", bountyId, ErrInvalidState)
		}
		if err := s.consumeDeposit(att); err != nil {
			return err
		}
		logs.GetLogger().Infof("creating bounty %s for %s, electing %d nodes", bountyId, caller, electionCount)

		bounty = models.NewBounty(bountyId, caller, s.c.cfg.AccountId, req.FileLocation, req.FileDownloadProtocol,
			req.MinNodes, req.TimeoutSeconds, req.NetworkRequired, req.GpuRequired, req.AmtStorage, req.AmtNodeReward, s.now)
		elected, err := s.elect(bounty, electionCount, models.NewIdSet())
		if err != nil {
			return err
		}
		bounty.Elect(elected, s.now)
		if err := s.chargeStorage(bounty, bounty); err != nil {
			return err
		}

		ownerKey := constants.PREFIX_OWNER_BOUNTIES + caller
		owned, err := getIndex(s.tx, ownerKey)
		if err != nil {
			return err
		}
		if err := s.putIndex(ownerKey, append(owned, bountyId)); err != nil {
			return err
		}
		s.state.UniversalBountyIndex++
		s.state.ActiveBounties.Add(bountyId)
		if err := s.putBounty(bounty); err != nil {
			return err
		}

		s.emit(models.NewEventLog(models.EventBountyCreated, &models.BountyCreatedLog{
			CoordinatorId: s.c.cfg.AccountId,
			BountyId:      bountyId,
			NodeIds:       append([]string{}, bounty.ElectedNodes...),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bounty, nil
}

// chargeStorage admits record into the bounty's prepaid storage, failing if
// the estimated cost of everything stored would exceed the storage budget.
func (s *session) chargeStorage(bounty *models.Bounty, record interface{}) error {
	size, err := ledger.EncodedSize(record)
	if err != nil {
		return err
	}
	used := bounty.StorageUsed + size
	cost := s.c.ledger.StorageCost(used)
	logs.GetLogger().Infof("estimated storage for bounty %s: %d bytes (%s), budget %s", bounty.Id, used, cost, bounty.AmtStorage)
	if cost.Cmp(bounty.AmtStorage) > 0 {
		return xerrors.Errorf("not enough storage left on bounty %s to store %d bytes: %w", bounty.Id, size, ErrResourceExhausted)
	}
	bounty.StorageUsed = used
	return nil
}

func (s *session) storageRefund(bounty *models.Bounty) *big.Int {
	refund := new(big.Int).Sub(bounty.AmtStorage, s.c.ledger.StorageCost(bounty.StorageUsed))
	if refund.Sign() < 0 {
		logs.GetLogger().Errorf("bounty %s used more storage than it paid for", bounty.Id)
		return new(big.Int)
	}
	return refund
}

func (c *Coordinator) PostAnswer(caller, bountyId, nodeId, solution, message string, status models.NodeResponseStatus) (*models.NodeResponse, error) {
	if !status.Valid() {
		return nil, xerrors.Errorf("unsupported response status %q: %w", status, ErrInvalidArgument)
	}

	var response *models.NodeResponse
	err := c.update(func(s *session) error {
		bounty, err := getBounty(s.tx, bountyId)
		if err != nil {
			return err
		}
		node, err := getNode(s.tx, nodeId)
		if err != nil {
			return err
		}
		if caller != node.OwnerId {
			return xerrors.Errorf("only the owner of node %s can post an answer: %w", nodeId, ErrUnauthorized)
		}
		if bounty.IsClosed() {
			return xerrors.Errorf("bounty %s is complete, no more answers can be published: %w", bountyId, ErrInvalidState)
		}
		if !bounty.IsElected(nodeId) {
			return xerrors.Errorf("node %s is not elected for bounty %s: %w", nodeId, bountyId, ErrInvalidState)
		}
		if _, ok := bounty.Answers[nodeId]; ok {
			return xerrors.Errorf("node %s has already submitted an answer to bounty %s: %w", nodeId, bountyId, ErrInvalidState)
		}

		response = &models.NodeResponse{NodeId: nodeId, Solution: solution, Message: message, Status: status}
		if err := s.chargeStorage(bounty, response); err != nil {
			return err
		}
		logs.GetLogger().Infof("publishing answer to %s from %s (owner: %s), status: %s", bountyId, nodeId, caller, status)

		bounty.Record(response)
		node.RecordOutcome(status, s.now)
		if err := s.putNode(node); err != nil {
			return err
		}
		if bounty.QuorumReached() {
			if err := s.closeBounty(bounty, false); err != nil {
				return err
			}
		}
		return s.putBounty(bounty)
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// RejectBounty records that an elected node declines the work. It never closes the bounty.
// Rejections are accepted after a success or failure close, but not once a bounty
// is cancelled, where every answering node would join the recipient set.
func (c *Coordinator) RejectBounty(caller, bountyId, nodeId, message string) (*models.NodeResponse, error) {
	var response *models.NodeResponse
	err := c.update(func(s *session) error {
		bounty, err := getBounty(s.tx, bountyId)
		if err != nil {
			return err
		}
		node, err := getNode(s.tx, nodeId)
		if err != nil {
			return err
		}
		if caller != node.OwnerId {
			return xerrors.Errorf("only the owner of node %s can reject a bounty: %w", nodeId, ErrUnauthorized)
		}
		// Rejects are taken in every state except Cancelled. A cancelled bounty pays
		// each node that answered, so a late reject there would claim a share.
		if bounty.Status == models.BountyCancelled {
			return xerrors.Errorf("bounty %s was cancelled: %w", bountyId, ErrInvalidState)
		}
		if !bounty.IsElected(nodeId) {
			return xerrors.Errorf("node %s is not elected for bounty %s: %w", nodeId, bountyId, ErrInvalidState)
		}
		if _, ok := bounty.Answers[nodeId]; ok {
			return xerrors.Errorf("node %s has already submitted an answer to bounty %s: %w", nodeId, bountyId, ErrInvalidState)
		}

		response = &models.NodeResponse{NodeId: nodeId, Message: message, Status: models.ResponseReject}
		if !bounty.IsClosed() {
			if err := s.chargeStorage(bounty, response); err != nil {
				return err
			}
		}
		logs.GetLogger().Infof("node %s rejected bounty %s", nodeId, bountyId)

		bounty.Record(response)
		node.RecordOutcome(models.ResponseReject, s.now)
		if err := s.putNode(node); err != nil {
			return err
		}
		return s.putBounty(bounty)
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// closeBounty moves a pending bounty to its terminal state. The caller persists the bounty.
func (s *session) closeBounty(bounty *models.Bounty, cancel bool) error {
	if bounty.IsClosed() {
		return xerrors.Errorf("bounty %s is already closed: %w", bounty.Id, ErrInvalidState)
	}

	switch {
	case cancel:
		bounty.Status = models.BountyCancelled
	case bounty.SuccessfulNodes.Len() >= bounty.MinNodes:
		logs.GetLogger().Infof("bounty %s is complete, at least %d nodes responded successfully", bounty.Id, bounty.MinNodes)
		bounty.Status = models.BountySuccess
	case bounty.FailedNodes.Len() >= bounty.MinNodes:
		logs.GetLogger().Infof("bounty %s failed, %d nodes reported failure", bounty.Id, bounty.FailedNodes.Len())
		bounty.Status = models.BountyFailed
	default:
		return xerrors.Errorf("bounty %s does not have enough answers to be closed: %w", bounty.Id, ErrInvariant)
	}

	if !cancel {
		for _, nodeId := range bounty.UnansweredNodes.List() {
			node, err := getNode(s.tx, nodeId)
			if err != nil {
				if xerrors.Is(err, ErrNotFound) {
					logs.GetLogger().Warnf("node %s does not exist, can't mark unanswered", nodeId)
					continue
				}
				return err
			}
			logs.GetLogger().Infof("node %s did not respond to bounty %s", nodeId, bounty.Id)
			node.RecordUnanswered(s.now)
			if err := s.putNode(node); err != nil {
				return err
			}
		}
		s.state.TotalCompletedBounties++
	}

	strategy, err := bounty.PayoutStrategy()
	if err != nil {
		return xerrors.Errorf("closing bounty %s: %s: %w", bounty.Id, err, ErrInvariant)
	}
	recipients, err := bounty.PayoutRecipients()
	if err != nil {
		return xerrors.Errorf("closing bounty %s: %s: %w", bounty.Id, err, ErrInvariant)
	}
	s.state.ActiveBounties.Remove(bounty.Id)

	s.emit(models.NewEventLog(models.EventBountyCompleted, &models.BountyCompletedLog{
		CoordinatorId:    s.c.cfg.AccountId,
		BountyId:         bounty.Id,
		NodeIds:          append([]string{}, bounty.ElectedNodes...),
		RewardRecipients: recipients,
		Outcome:          bounty.Status,
		PayoutStrategy:   strategy,
	}))

	refund := s.storageRefund(bounty)
	logs.GetLogger().Infof("closed bounty %s as %s, refunding %s of unused storage to %s", bounty.Id, bounty.Status, refund, bounty.OwnerId)
	s.transfer(models.TransferStorageRefund, bounty.OwnerId, refund, bounty.Id, "")
	return nil
}

func (s *session) loadOwnedBounty(caller, bountyId string) (*models.Bounty, error) {
	bounty, err := getBounty(s.tx, bountyId)
	if err != nil {
		return nil, err
	}
	if caller != bounty.OwnerId && !s.c.isCoordinator(caller) {
		return nil, xerrors.Errorf("only the owner of bounty %s or the coordinator can do this: %w", bountyId, ErrUnauthorized)
	}
	return bounty, nil
}

func (s *session) mayReelect(caller string, bounty *models.Bounty) (bool, error) {
	if caller == bounty.OwnerId || s.c.isCoordinator(caller) {
		return true, nil
	}
	for _, nodeId := range bounty.ElectedNodes {
		node, err := getNode(s.tx, nodeId)
		if xerrors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if node.OwnerId == caller {
			return true, nil
		}
	}
	return false, nil
}

func (c *Coordinator) CancelBounty(caller, bountyId string) (*models.Bounty, error) {
	var bounty *models.Bounty
	err := c.update(func(s *session) error {
		var err error
		bounty, err = getBounty(s.tx, bountyId)
		if err != nil {
			return err
		}
		if bounty.IsClosed() {
			return xerrors.Errorf("bounty %s must be pending to be cancelled: %w", bountyId, ErrInvalidState)
		}
		if caller != bounty.OwnerId && !s.c.isCoordinator(caller) {
			return xerrors.Errorf("only the bounty owner or the coordinator can cancel bounty %s: %w", bountyId, ErrUnauthorized)
		}
		if err := s.closeBounty(bounty, true); err != nil {
			return err
		}
		return s.putBounty(bounty)
	})
	if err != nil {
		return nil, err
	}
	return bounty, nil
}

// CancelAllMyBounties cancels every pending bounty owned by caller and returns their ids.
func (c *Coordinator) CancelAllMyBounties(caller string) ([]string, error) {
	var cancelled []string
	err := c.update(func(s *session) error {
		cancelled = nil
		owned, err := getIndex(s.tx, constants.PREFIX_OWNER_BOUNTIES+caller)
		if err != nil {
			return err
		}
		for _, bountyId := range owned {
			bounty, err := getBounty(s.tx, bountyId)
			if err != nil {
				if xerrors.Is(err, ErrNotFound) {
					logs.GetLogger().Warnf("bounty %s is listed for owner %s but does not exist", bountyId, caller)
					continue
				}
				return err
			}
			if bounty.IsClosed() {
				continue
			}
			if err := s.closeBounty(bounty, true); err != nil {
				return err
			}
			if err := s.putBounty(bounty); err != nil {
				return err
			}
			cancelled = append(cancelled, bountyId)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ReelectUnansweredNodes replaces every elected node that has not answered yet.
// Nodes already on the roster, answered or dropped, are not drawn again.
// Only the replacements are announced. The bounty owner, the coordinator and the
// owner of any node on the roster may ask for it.
func (c *Coordinator) ReelectUnansweredNodes(caller, bountyId string) ([]string, error) {
	var replacements []string
	err := c.update(func(s *session) error {
		bounty, err := getBounty(s.tx, bountyId)
		if err != nil {
			return err
		}
		allowed, err := s.mayReelect(caller, bounty)
		if err != nil {
			return err
		}
		if !allowed {
			return xerrors.Errorf("only the owner of bounty %s, one of its nodes or the coordinator can reelect: %w", bountyId, ErrUnauthorized)
		}
		if bounty.IsClosed() {
			return xerrors.Errorf("bounty %s must be in-flight to reelect nodes: %w", bountyId, ErrInvalidState)
		}

		var dropped []string
		for _, nodeId := range bounty.ElectedNodes {
			if _, ok := bounty.Answers[nodeId]; !ok {
				dropped = append(dropped, nodeId)
			}
		}
		if len(dropped) == 0 {
			return xerrors.Errorf("bounty %s has no unanswered nodes: %w", bountyId, ErrInvalidState)
		}

		replacements, err = s.elect(bounty, uint64(len(dropped)), models.NewIdSet(bounty.ElectedNodes...))
		if err != nil {
			return err
		}
		logs.GetLogger().Infof("bounty %s: replacing %v with %v", bountyId, dropped, replacements)
		bounty.Drop(dropped)
		bounty.Elect(replacements, s.now)
		if err := s.putBounty(bounty); err != nil {
			return err
		}

		s.emit(models.NewEventLog(models.EventBountyRetry, &models.BountyRetryLog{
			CoordinatorId: s.c.cfg.AccountId,
			BountyId:      bountyId,
			NodeIds:       append([]string{}, replacements...),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replacements, nil
}

func (c *Coordinator) AddStorageDeposit(caller, bountyId string, att models.Attachment) (*models.Bounty, error) {
	return c.topUp(caller, bountyId, att, func(b *models.Bounty, amount *big.Int) {
		b.AmtStorage.Add(b.AmtStorage, amount)
	})
}

func (c *Coordinator) AddRewardDeposit(caller, bountyId string, att models.Attachment) (*models.Bounty, error) {
	return c.topUp(caller, bountyId, att, func(b *models.Bounty, amount *big.Int) {
		b.AmtNodeReward.Add(b.AmtNodeReward, amount)
	})
}

// topUp adds the attached amount to one of the escrowed balances and asks the
// whole roster to retry.
func (c *Coordinator) topUp(caller, bountyId string, att models.Attachment, apply func(*models.Bounty, *big.Int)) (*models.Bounty, error) {
	if att.Value().Sign() <= 0 {
		return nil, xerrors.Errorf("a positive deposit must be attached: %w", ErrInvalidArgument)
	}

	var bounty *models.Bounty
	err := c.update(func(s *session) error {
		var err error
		bounty, err = s.loadOwnedBounty(caller, bountyId)
		if err != nil {
			return err
		}
		if bounty.IsClosed() {
			return xerrors.Errorf("bounty %s is closed: %w", bountyId, ErrInvalidState)
		}
		if err := s.consumeDeposit(att); err != nil {
			return err
		}
		apply(bounty, att.Value())
		if err := s.putBounty(bounty); err != nil {
			return err
		}
		s.emit(models.NewEventLog(models.EventBountyRetry, &models.BountyRetryLog{
			CoordinatorId: s.c.cfg.AccountId,
			BountyId:      bountyId,
			NodeIds:       append([]string{}, bounty.ElectedNodes...),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bounty, nil
}
