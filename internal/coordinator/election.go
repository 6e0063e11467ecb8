package coordinator

import (
	"math"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"golang.org/x/xerrors"
)

// PaddedCount is the number of nodes elected for a bounty that needs minNodes answers.
func (c *Coordinator) PaddedCount(minNodes uint64) uint64 {
	return uint64(math.Ceil(float64(minNodes) * c.cfg.PaddingFactor))
}

func qualified(node *models.Node, bounty *models.Bounty) bool {
	if !node.AllowNetwork && bounty.NetworkRequired {
		logs.GetLogger().Infof("node %s does not allow network, but bounty %s requires it", node.Id, bounty.Id)
		return false
	}
	if !node.AllowGpu && bounty.GpuRequired {
		logs.GetLogger().Infof("node %s does not allow gpu, but bounty %s requires it", node.Id, bounty.Id)
		return false
	}
	if node.AbsoluteTimeout < bounty.TimeoutSeconds*1000 {
		logs.GetLogger().Infof("node %s has a timeout of %dms which is less than the %ds required by bounty %s",
			node.Id, node.AbsoluteTimeout, bounty.TimeoutSeconds, bounty.Id)
		return false
	}
	return true
}

// eligible loads a drawn candidate. A candidate whose record is missing is
// reported as dangling so it is not put back into the queue.
func (s *session) eligible(nodeId string, bounty *models.Bounty, excluded models.IdSet) (ok bool, dangling bool, err error) {
	if excluded.Contains(nodeId) {
		return false, false, nil
	}
	node, err := getNode(s.tx, nodeId)
	if err != nil {
		if xerrors.Is(err, ErrNotFound) {
			logs.GetLogger().Warnf("dropping dangling node %s from the election queue", nodeId)
			return false, true, nil
		}
		return false, false, err
	}
	if !node.Active() {
		return false, false, nil
	}
	return qualified(node, bounty), false, nil
}

// elect draws count qualified nodes for bounty from the election queue.
// Drawn nodes leave the queue for the duration of the call, so no node is
// drawn twice. Nodes in excluded are treated as disqualified. Elected nodes
// are put back first, then disqualified ones in draw order.
func (s *session) elect(bounty *models.Bounty, count uint64, excluded models.IdSet) ([]string, error) {
	queue := s.state.NodeQueue
	elected := make([]string, 0, count)
	var setAside []string

	for uint64(len(elected)) < count {
		var nodeId string
		switch len(queue) {
		case 0:
			return nil, xerrors.Errorf("election for bounty %s ran out of candidates after %d of %d: %w",
				bounty.Id, len(elected), count, ErrInvariant)
		case 1:
			nodeId = queue[0]
			queue = queue[:0]
			ok, _, err := s.eligible(nodeId, bounty, excluded)
			if err != nil {
				return nil, err
			}
			if !ok {
				logs.GetLogger().Errorf("node %s is the last candidate and is not qualified for bounty %s", nodeId, bounty.Id)
				return nil, xerrors.Errorf("not enough qualified nodes to fill bounty %s: %w", bounty.Id, ErrResourceExhausted)
			}
			logs.GetLogger().Infof("elected %s (only node in queue)", nodeId)
		default:
			seed := s.c.rand.Uint64()
			idx := seed % uint64(len(queue))
			nodeId = queue[idx]
			queue[idx] = queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			ok, dangling, err := s.eligible(nodeId, bounty, excluded)
			if err != nil {
				return nil, err
			}
			if !ok {
				if !dangling {
					setAside = append(setAside, nodeId)
				}
				continue
			}
		}
		elected = append(elected, nodeId)
	}

	for _, nodeId := range elected {
		logs.GetLogger().Infof("elected node %s for bounty %s", nodeId, bounty.Id)
		queue = append(queue, nodeId)
	}
	queue = append(queue, setAside...)
	s.state.NodeQueue = queue
	return elected, nil
}
