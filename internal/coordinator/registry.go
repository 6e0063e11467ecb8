package coordinator

import (
	"math/big"
	"regexp"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"golang.org/x/xerrors"
)

var reNodeName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// NodeSettings are the capability fields an owner controls.
type NodeSettings struct {
	AbsoluteTimeout uint64 `json:"absolute_timeout"` // milliseconds
	AllowNetwork    bool   `json:"allow_network"`
	AllowGpu        bool   `json:"allow_gpu"`
}

func (c *Coordinator) RegisterNode(caller, name string, settings NodeSettings, att models.Attachment) (*models.Node, error) {
	if !reNodeName.MatchString(name) {
		return nil, xerrors.Errorf("invalid node name %q: %w", name, ErrInvalidArgument)
	}
	if att.Value().Cmp(c.cfg.MinNodeDeposit) < 0 {
		return nil, xerrors.Errorf("must include a refundable deposit of at least %s to register a node, got %s: %w",
			c.cfg.MinNodeDeposit, att.Value(), ErrResourceExhausted)
	}

	nodeId := models.NodeId(name, caller)
	var node *models.Node
	err := c.update(func(s *session) error {
		exists, err := s.tx.Has(constants.PREFIX_NODE + nodeId)
		if err != nil {
			return err
		}
		if exists {
			return xerrors.Errorf("node already registered: %s: %w", nodeId, ErrInvalidState)
		}
		if err := s.consumeDeposit(att); err != nil {
			return err
		}

		logs.GetLogger().Infof("registering new node %s, owned by %s", nodeId, caller)
		node = models.NewNode(nodeId, caller, settings.AbsoluteTimeout, settings.AllowNetwork, settings.AllowGpu, att.Value(), s.now)
		if err := s.putNode(node); err != nil {
			return err
		}

		ownerKey := constants.PREFIX_OWNER_NODES + caller
		owned, err := getIndex(s.tx, ownerKey)
		if err != nil {
			return err
		}
		if err := s.putIndex(ownerKey, append(owned, nodeId)); err != nil {
			return err
		}
		s.state.NodeQueue = append(s.state.NodeQueue, nodeId)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// loadOwnedNode loads a node the caller may manage.
func (s *session) loadOwnedNode(caller, nodeId string) (*models.Node, error) {
	node, err := getNode(s.tx, nodeId)
	if err != nil {
		return nil, err
	}
	if caller != node.OwnerId && !s.c.isCoordinator(caller) {
		return nil, xerrors.Errorf("only the owner of node %s or the coordinator can manage it: %w", nodeId, ErrUnauthorized)
	}
	if node.Removed {
		return nil, xerrors.Errorf("node %s has been removed: %w", nodeId, ErrInvalidState)
	}
	return node, nil
}

func (c *Coordinator) UpdateNode(caller, nodeId string, settings NodeSettings) (*models.Node, error) {
	var node *models.Node
	err := c.update(func(s *session) error {
		var err error
		node, err = s.loadOwnedNode(caller, nodeId)
		if err != nil {
			return err
		}
		logs.GetLogger().Infof("updating node %s with values: allow_network=%t allow_gpu=%t absolute_timeout=%d",
			nodeId, settings.AllowNetwork, settings.AllowGpu, settings.AbsoluteTimeout)
		node.AllowNetwork = settings.AllowNetwork
		node.AllowGpu = settings.AllowGpu
		node.AbsoluteTimeout = settings.AbsoluteTimeout
		return s.putNode(node)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// RemoveNode takes the node out of the election queue and the owner index and
// refunds its deposit to the owner. The record itself is kept for history.
func (c *Coordinator) RemoveNode(caller, nodeId string) (*big.Int, error) {
	refund := new(big.Int)
	err := c.update(func(s *session) error {
		node, err := s.loadOwnedNode(caller, nodeId)
		if err != nil {
			return err
		}

		s.removeFromQueue(nodeId)
		ownerKey := constants.PREFIX_OWNER_NODES + node.OwnerId
		owned, err := getIndex(s.tx, ownerKey)
		if err != nil {
			return err
		}
		if len(owned) <= 1 {
			logs.GetLogger().Infof("owner %s has no more registered nodes", node.OwnerId)
		}
		if err := s.putIndex(ownerKey, without(owned, nodeId)); err != nil {
			return err
		}

		refund.Set(node.Deposit)
		node.Deposit = new(big.Int)
		node.Removed = true
		if err := s.putNode(node); err != nil {
			return err
		}
		logs.GetLogger().Infof("removed node %s, refunding deposit of %s", nodeId, refund)
		s.transfer(models.TransferNodeDeposit, node.OwnerId, refund, "", nodeId)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// SetNodeOffline moves a node between the online and offline partitions.
// Only online nodes sit in the election queue.
func (c *Coordinator) SetNodeOffline(caller, nodeId string, offline bool) (*models.Node, error) {
	var node *models.Node
	err := c.update(func(s *session) error {
		var err error
		node, err = s.loadOwnedNode(caller, nodeId)
		if err != nil {
			return err
		}
		if node.Offline == offline {
			if offline {
				return xerrors.Errorf("node %s is already offline: %w", nodeId, ErrInvalidState)
			}
			return xerrors.Errorf("node %s is already online: %w", nodeId, ErrInvalidState)
		}

		node.Offline = offline
		if offline {
			logs.GetLogger().Infof("moving node %s to offline", nodeId)
			s.removeFromQueue(nodeId)
		} else {
			logs.GetLogger().Infof("bringing node %s online", nodeId)
			s.state.NodeQueue = append(s.state.NodeQueue, nodeId)
		}
		return s.putNode(node)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *session) removeFromQueue(nodeId string) {
	s.state.NodeQueue = without(s.state.NodeQueue, nodeId)
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
