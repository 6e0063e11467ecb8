package coordinator

import (
	"context"
	"time"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/lagrangedao/go-bounty-coordinator/internal/ledger"
	"golang.org/x/xerrors"
)

// StallWatcher periodically re-elects the unanswered nodes of pending bounties
// whose timeout has run out since their last election.
type StallWatcher struct {
	c        *Coordinator
	interval time.Duration
}

func NewStallWatcher(c *Coordinator, interval time.Duration) *StallWatcher {
	return &StallWatcher{c: c, interval: interval}
}

func (w *StallWatcher) Run(ctx context.Context) {
	ticker := w.c.clock.Ticker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.CheckStalled()
		case <-ctx.Done():
			logs.GetLogger().Info("stall watcher stopped")
			return
		}
	}
}

// CheckStalled runs one pass and returns the bounties that got new nodes.
func (w *StallWatcher) CheckStalled() []string {
	var stalled []string
	now := w.c.now()
	err := w.c.view(func(r ledger.Reader, st *state) error {
		for _, bountyId := range st.ActiveBounties.List() {
			bounty, err := getBounty(r, bountyId)
			if err != nil {
				if xerrors.Is(err, ErrNotFound) {
					logs.GetLogger().Warnf("active bounty %s does not exist", bountyId)
					continue
				}
				return err
			}
			deadline := bounty.LastElection + int64(bounty.TimeoutSeconds)*1000
			if bounty.IsClosed() || bounty.UnansweredNodes.Len() == 0 || now < deadline {
				continue
			}
			stalled = append(stalled, bountyId)
		}
		return nil
	})
	if err != nil {
		logs.GetLogger().Errorf("failed to scan active bounties, error: %+v", err)
		return nil
	}

	var reelected []string
	for _, bountyId := range stalled {
		nodes, err := w.c.ReelectUnansweredNodes(w.c.cfg.AccountId, bountyId)
		if err != nil {
			logs.GetLogger().Errorf("failed to reelect nodes for stalled bounty %s, error: %+v", bountyId, err)
			continue
		}
		logs.GetLogger().Infof("bounty %s stalled, elected %v", bountyId, nodes)
		reelected = append(reelected, bountyId)
	}
	return reelected
}
