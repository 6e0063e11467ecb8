package coordinator

import (
	"fmt"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lagrangedao/go-bounty-coordinator/internal/ledger"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coordinatorId = "coordinator"

var bytePrice = big.NewInt(10_000_000_000_000)

type seededSource struct {
	r *rand.Rand
}

func (s *seededSource) Uint64() uint64 {
	return s.r.Uint64()
}

type recorder struct {
	transfers []*models.Transfer
	events    []*models.EventLog
}

func (r *recorder) Transfer(t *models.Transfer) error {
	r.transfers = append(r.transfers, t)
	return nil
}

func (r *recorder) Publish(e *models.EventLog) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) lastEvent() *models.EventLog {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	c   *Coordinator
	l   *ledger.Ledger
	clk *clock.Mock
	rec *recorder
}

func newFixture(t *testing.T, seed int64) *fixture {
	l, err := ledger.OpenMem(bytePrice)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	clk := clock.NewMock()
	clk.Set(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := &recorder{}
	c := New(DefaultConfig(coordinatorId), l,
		WithClock(clk),
		WithRandomSource(&seededSource{r: rand.New(rand.NewSource(seed))}),
		WithTransferer(rec),
		WithEventSink(rec),
	)
	return &fixture{c: c, l: l, clk: clk, rec: rec}
}

var defaultSettings = NodeSettings{AbsoluteTimeout: 60_000, AllowNetwork: true, AllowGpu: true}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneEther)
}

func deposit(amount *big.Int) models.Attachment {
	return models.Attachment{Amount: amount}
}

func (f *fixture) registerNodes(t *testing.T, owner, prefix string, n int, settings NodeSettings) []string {
	var ids []string
	for i := 0; i < n; i++ {
		node, err := f.c.RegisterNode(owner, fmt.Sprintf("%s%d", prefix, i), settings, deposit(eth(1)))
		require.NoError(t, err)
		ids = append(ids, node.Id)
	}
	return ids
}

func bountyRequest(minNodes uint64) BountyRequest {
	return BountyRequest{
		FileLocation:         "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		FileDownloadProtocol: models.ProtocolIPFS,
		MinNodes:             minNodes,
		TimeoutSeconds:       30,
		AmtStorage:           new(big.Int).Set(tenthEther),
		AmtNodeReward:        new(big.Int).Set(tenthEther),
	}
}

func (f *fixture) createBounty(t *testing.T, owner string, req BountyRequest) *models.Bounty {
	total := new(big.Int).Add(req.AmtStorage, req.AmtNodeReward)
	bounty, err := f.c.CreateBounty(owner, req, deposit(total))
	require.NoError(t, err)
	return bounty
}

func (f *fixture) bounty(t *testing.T, bountyId string) *models.Bounty {
	bounty, err := f.c.GetBounty(bountyId)
	require.NoError(t, err)
	require.NoError(t, bounty.CheckPartition())
	return bounty
}

func (f *fixture) node(t *testing.T, nodeId string) *models.Node {
	node, err := f.c.GetNode(nodeId)
	require.NoError(t, err)
	return node
}

func (f *fixture) stats(t *testing.T) *Stats {
	stats, err := f.c.Stats()
	require.NoError(t, err)
	return stats
}

func transfersFor(rec *recorder, reason models.TransferReason) []*models.Transfer {
	var out []*models.Transfer
	for _, t := range rec.transfers {
		if t.Reason == reason {
			out = append(out, t)
		}
	}
	return out
}

func TestPaddedCount(t *testing.T) {
	f := newFixture(t, 1)
	for minNodes, want := range map[uint64]uint64{1: 2, 2: 3, 3: 4, 4: 5, 8: 10} {
		assert.Equal(t, want, f.c.PaddedCount(minNodes), "min_nodes=%d", minNodes)
	}
}

func TestQuorumOfSuccessClosesBounty(t *testing.T) {
	f := newFixture(t, 1)
	f.registerNodes(t, "alice", "n", 5, defaultSettings)

	created := f.createBounty(t, "bob", bountyRequest(2))
	require.Len(t, created.ElectedNodes, 3)
	assert.Len(t, models.NewIdSet(created.ElectedNodes...), 3)
	assert.Equal(t, models.EventBountyCreated, f.rec.lastEvent().Event)

	first, second, third := created.ElectedNodes[0], created.ElectedNodes[1], created.ElectedNodes[2]

	_, err := f.c.PostAnswer("alice", created.Id, first, "42", "", models.ResponseSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.BountyPending, f.bounty(t, created.Id).Status)

	_, err = f.c.PostAnswer("alice", created.Id, second, "42", "", models.ResponseSuccess)
	require.NoError(t, err)

	closed := f.bounty(t, created.Id)
	assert.Equal(t, models.BountySuccess, closed.Status)
	assert.True(t, closed.UnansweredNodes.Contains(third))
	assert.Equal(t, uint64(1), f.node(t, third).UnansweredRuns)
	assert.Equal(t, uint64(1), f.node(t, first).SuccessfulRuns)
	assert.Equal(t, uint64(0), f.node(t, first).UnansweredRuns)

	stats := f.stats(t)
	assert.Equal(t, uint64(1), stats.TotalCompletedBounties)
	assert.Equal(t, uint64(0), stats.ActiveBountyCount)
	assert.Equal(t, uint64(5), stats.QueueLength)

	event := f.rec.lastEvent()
	require.Equal(t, models.EventBountyCompleted, event.Event)
	completed := event.Data.(*models.BountyCompletedLog)
	assert.Equal(t, models.BountySuccess, completed.Outcome)
	assert.Equal(t, models.PayoutSuccessfulNodes, completed.PayoutStrategy)
	assert.ElementsMatch(t, []string{first, second}, completed.RewardRecipients)
	assert.Equal(t, closed.ElectedNodes, completed.NodeIds)

	refunds := transfersFor(f.rec, models.TransferStorageRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, "bob", refunds[0].Recipient)
	expected := new(big.Int).Sub(closed.AmtStorage, f.l.StorageCost(closed.StorageUsed))
	assert.Equal(t, 0, expected.Cmp(refunds[0].Amount))
	assert.True(t, refunds[0].Amount.Sign() > 0)

	result, err := f.c.BountyResult(created.Id)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"42": 2}, result)
}

func TestQuorumOfFailureClosesBounty(t *testing.T) {
	f := newFixture(t, 2)
	f.registerNodes(t, "alice", "n", 4, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	elected := created.ElectedNodes

	_, err := f.c.PostAnswer("alice", created.Id, elected[0], "", "oom", models.ResponseFailure)
	require.NoError(t, err)
	_, err = f.c.PostAnswer("alice", created.Id, elected[1], "42", "", models.ResponseSuccess)
	require.NoError(t, err)
	_, err = f.c.PostAnswer("alice", created.Id, elected[2], "", "oom", models.ResponseFailure)
	require.NoError(t, err)

	closed := f.bounty(t, created.Id)
	assert.Equal(t, models.BountyFailed, closed.Status)

	payouts, err := f.c.Payouts(created.Id)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailedNodes, payouts.Strategy)
	assert.ElementsMatch(t, []string{elected[0], elected[2]}, payouts.Recipients)
	assert.Equal(t, new(big.Int).Quo(tenthEther, big.NewInt(2)), payouts.RewardPerNode)
}

func TestCancelPaysAllAnsweredNodes(t *testing.T) {
	f := newFixture(t, 3)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	answered := created.ElectedNodes[0]

	_, err := f.c.PostAnswer("alice", created.Id, answered, "", "crashed", models.ResponseFailure)
	require.NoError(t, err)

	_, err = f.c.CancelBounty("mallory", created.Id)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.c.CancelBounty("bob", created.Id)
	require.NoError(t, err)

	cancelled := f.bounty(t, created.Id)
	assert.Equal(t, models.BountyCancelled, cancelled.Status)
	for _, nodeId := range cancelled.ElectedNodes {
		assert.Equal(t, uint64(0), f.node(t, nodeId).UnansweredRuns)
	}
	assert.Equal(t, uint64(0), f.stats(t).TotalCompletedBounties)

	payouts, err := f.c.Payouts(created.Id)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutAllAnsweredNodes, payouts.Strategy)
	assert.Equal(t, []string{answered}, payouts.Recipients)

	paid, err := f.c.CollectReward("alice", answered, created.Id)
	require.NoError(t, err)
	assert.Equal(t, tenthEther, paid)

	_, err = f.c.CancelBounty("bob", created.Id)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateBountyValidation(t *testing.T) {
	f := newFixture(t, 4)
	f.registerNodes(t, "alice", "n", 2, defaultSettings)

	req := bountyRequest(2)
	_, err := f.c.CreateBounty("bob", req, deposit(tenthEther))
	require.ErrorIs(t, err, ErrResourceExhausted, "attached deposit must equal storage + reward")

	low := bountyRequest(1)
	low.AmtNodeReward = big.NewInt(1)
	_, err = f.c.CreateBounty("bob", low, deposit(new(big.Int).Add(low.AmtStorage, low.AmtNodeReward)))
	require.ErrorIs(t, err, ErrResourceExhausted)

	bad := bountyRequest(1)
	bad.FileDownloadProtocol = "FTP"
	_, err = f.c.CreateBounty("bob", bad, deposit(eth(1)))
	require.ErrorIs(t, err, ErrInvalidArgument)

	zero := bountyRequest(0)
	_, err = f.c.CreateBounty("bob", zero, deposit(new(big.Int).Mul(tenthEther, big.NewInt(2))))
	require.ErrorIs(t, err, ErrInvalidArgument)

	// 2 registered nodes cannot cover ceil(2 * 1.25) = 3 elections.
	_, err = f.c.CreateBounty("bob", req, deposit(new(big.Int).Add(req.AmtStorage, req.AmtNodeReward)))
	require.ErrorIs(t, err, ErrResourceExhausted)

	assert.Equal(t, uint64(0), f.stats(t).BountyCount)
	assert.Empty(t, f.rec.events)
}

func TestElectionSkipsUnqualifiedNodes(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		f := newFixture(t, seed)
		gpu := f.registerNodes(t, "alice", "gpu", 3, defaultSettings)
		f.registerNodes(t, "alice", "cpu", 3, NodeSettings{AbsoluteTimeout: 60_000, AllowNetwork: true})
		f.registerNodes(t, "alice", "slow", 2, NodeSettings{AbsoluteTimeout: 1_000, AllowNetwork: true, AllowGpu: true})

		req := bountyRequest(2)
		req.GpuRequired = true
		created := f.createBounty(t, "bob", req)
		assert.ElementsMatch(t, gpu, created.ElectedNodes, "seed %d", seed)
		assert.Equal(t, uint64(8), f.stats(t).QueueLength, "seed %d", seed)
	}
}

func TestElectionHonorsNetworkRequirement(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		f := newFixture(t, seed)
		online := f.registerNodes(t, "alice", "net", 3, NodeSettings{AbsoluteTimeout: 60_000, AllowNetwork: true})
		f.registerNodes(t, "alice", "sealed", 4, NodeSettings{AbsoluteTimeout: 60_000, AllowGpu: true})

		req := bountyRequest(2)
		req.NetworkRequired = true
		created := f.createBounty(t, "bob", req)
		assert.ElementsMatch(t, online, created.ElectedNodes, "seed %d", seed)
		for _, nodeId := range created.ElectedNodes {
			assert.True(t, f.node(t, nodeId).AllowNetwork, "seed %d", seed)
		}
		assert.Equal(t, uint64(7), f.stats(t).QueueLength, "seed %d", seed)
	}

	f := newFixture(t, 11)
	sealed := f.registerNodes(t, "alice", "sealed", 3, NodeSettings{AbsoluteTimeout: 60_000, AllowGpu: true})
	created := f.createBounty(t, "bob", bountyRequest(2))
	assert.ElementsMatch(t, sealed, created.ElectedNodes, "nodes without network still serve bounties that do not need it")
}

func TestElectionFailsWithoutEnoughQualifiedNodes(t *testing.T) {
	f := newFixture(t, 5)
	f.registerNodes(t, "alice", "gpu", 3, defaultSettings)
	f.registerNodes(t, "alice", "cpu", 3, NodeSettings{AbsoluteTimeout: 60_000, AllowNetwork: true})

	req := bountyRequest(4)
	req.GpuRequired = true
	total := new(big.Int).Add(req.AmtStorage, req.AmtNodeReward)
	_, err := f.c.CreateBounty("bob", req, deposit(total))
	require.ErrorIs(t, err, ErrResourceExhausted)

	stats := f.stats(t)
	assert.Equal(t, uint64(0), stats.BountyCount)
	assert.Equal(t, uint64(6), stats.QueueLength)
	assert.Empty(t, f.rec.events)
}

func TestSameNodeCanServeConcurrentBounties(t *testing.T) {
	f := newFixture(t, 6)
	nodes := f.registerNodes(t, "alice", "n", 3, defaultSettings)

	first := f.createBounty(t, "bob", bountyRequest(2))
	second := f.createBounty(t, "bob", bountyRequest(2))
	assert.ElementsMatch(t, nodes, first.ElectedNodes)
	assert.ElementsMatch(t, nodes, second.ElectedNodes)
	assert.NotEqual(t, first.Id, second.Id)

	active, err := f.c.ActiveBounties()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.Id, second.Id}, active)
}

func TestAnswerGuards(t *testing.T) {
	f := newFixture(t, 7)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	outsider := f.registerNodes(t, "carol", "x", 1, defaultSettings)[0]
	nodeId := created.ElectedNodes[0]

	_, err := f.c.PostAnswer("bob", created.Id, nodeId, "42", "", models.ResponseSuccess)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.c.PostAnswer("carol", created.Id, outsider, "42", "", models.ResponseSuccess)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.c.PostAnswer("alice", created.Id, "ghost.node.alice", "42", "", models.ResponseSuccess)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.c.PostAnswer("alice", "missing", nodeId, "42", "", models.ResponseSuccess)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.c.PostAnswer("alice", created.Id, nodeId, "42", "", "MAYBE")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.c.PostAnswer("alice", created.Id, nodeId, "42", "", models.ResponseSuccess)
	require.NoError(t, err)
	before := f.bounty(t, created.Id)
	runs := f.node(t, nodeId).SuccessfulRuns

	_, err = f.c.PostAnswer("alice", created.Id, nodeId, "43", "", models.ResponseFailure)
	require.ErrorIs(t, err, ErrInvalidState)

	after := f.bounty(t, created.Id)
	assert.Equal(t, before, after)
	assert.Equal(t, runs, f.node(t, nodeId).SuccessfulRuns)
}

func TestStorageBudgetLimitsAnswers(t *testing.T) {
	f := newFixture(t, 8)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	nodeId := created.ElectedNodes[0]

	// 0.1 ether at 1e13 wei per byte pays for 10000 bytes.
	huge := make([]byte, 12_000)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := f.c.PostAnswer("alice", created.Id, nodeId, string(huge), "", models.ResponseSuccess)
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.True(t, f.bounty(t, created.Id).UnansweredNodes.Contains(nodeId))

	should, err := f.c.ShouldPostAnswer(created.Id, nodeId)
	require.NoError(t, err)
	assert.True(t, should)

	_, err = f.c.AddStorageDeposit("bob", created.Id, deposit(tenthEther))
	require.NoError(t, err)
	_, err = f.c.PostAnswer("alice", created.Id, nodeId, string(huge), "", models.ResponseSuccess)
	require.NoError(t, err)

	bounty := f.bounty(t, created.Id)
	assert.True(t, f.l.StorageCost(bounty.StorageUsed).Cmp(bounty.AmtStorage) <= 0)
}

func TestRejectBounty(t *testing.T) {
	f := newFixture(t, 9)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(1))
	require.Len(t, created.ElectedNodes, 2)
	rejecter, worker := created.ElectedNodes[0], created.ElectedNodes[1]

	_, err := f.c.RejectBounty("bob", created.Id, rejecter, "no gpu today")
	require.ErrorIs(t, err, ErrUnauthorized)

	resp, err := f.c.RejectBounty("alice", created.Id, rejecter, "no gpu today")
	require.NoError(t, err)
	assert.Equal(t, models.ResponseReject, resp.Status)

	bounty := f.bounty(t, created.Id)
	assert.Equal(t, models.BountyPending, bounty.Status)
	assert.True(t, bounty.RejectedNodes.Contains(rejecter))
	assert.Equal(t, uint64(1), f.node(t, rejecter).RejectedRuns)

	_, err = f.c.RejectBounty("alice", created.Id, rejecter, "again")
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.c.PostAnswer("alice", created.Id, rejecter, "42", "", models.ResponseSuccess)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.c.PostAnswer("alice", created.Id, worker, "42", "", models.ResponseSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.BountySuccess, f.bounty(t, created.Id).Status)

	counts, err := f.c.AnswerCounts(created.Id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), counts["answers"])
	assert.Equal(t, uint64(1), counts["rejected_nodes"])
	assert.Equal(t, uint64(1), counts["successful_nodes"])
	assert.Equal(t, uint64(0), counts["unanswered_nodes"])
}

func TestRejectAfterCancelIsRefused(t *testing.T) {
	f := newFixture(t, 10)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))

	_, err := f.c.CancelBounty(coordinatorId, created.Id)
	require.NoError(t, err)

	_, err = f.c.RejectBounty("alice", created.Id, created.ElectedNodes[0], "late")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCollectReward(t *testing.T) {
	f := newFixture(t, 11)
	f.registerNodes(t, "alice", "n", 4, defaultSettings)
	req := bountyRequest(3)
	req.AmtNodeReward = new(big.Int).Add(tenthEther, big.NewInt(2)) // not divisible by 3
	created := f.createBounty(t, "bob", req)
	elected := created.ElectedNodes
	require.Len(t, elected, 4)

	for _, nodeId := range elected[:2] {
		_, err := f.c.PostAnswer("alice", created.Id, nodeId, "42", "", models.ResponseSuccess)
		require.NoError(t, err)
	}

	_, err := f.c.CollectReward("alice", elected[0], created.Id)
	require.ErrorIs(t, err, ErrInvalidState, "bounty is still pending")

	_, err = f.c.PostAnswer("alice", created.Id, elected[2], "42", "", models.ResponseSuccess)
	require.NoError(t, err)

	should, err := f.c.ShouldCollectReward(elected[3], created.Id)
	require.NoError(t, err)
	assert.False(t, should, "unanswered nodes are not paid")

	_, err = f.c.CollectReward("mallory", elected[0], created.Id)
	require.ErrorIs(t, err, ErrUnauthorized)

	share, err := f.c.CollectReward("alice", elected[0], created.Id)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Quo(req.AmtNodeReward, big.NewInt(3)), share)

	_, err = f.c.CollectReward("alice", elected[0], created.Id)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, share, f.node(t, elected[0]).LifetimeEarnings)

	_, err = f.c.CollectReward(coordinatorId, elected[1], created.Id)
	require.NoError(t, err)
	_, err = f.c.CollectReward("alice", elected[2], created.Id)
	require.NoError(t, err)

	total := new(big.Int).Mul(share, big.NewInt(3))
	assert.Equal(t, total, f.stats(t).TotalPayouts)
	assert.True(t, total.Cmp(req.AmtNodeReward) <= 0)

	earnings, err := f.c.LifetimeEarningsForOwner("alice")
	require.NoError(t, err)
	assert.Equal(t, total, earnings)

	rewards := transfersFor(f.rec, models.TransferReward)
	require.Len(t, rewards, 3)
	keys := map[string]bool{}
	for _, transfer := range rewards {
		assert.Equal(t, "alice", transfer.Recipient)
		keys[transfer.Key] = true
	}
	assert.Len(t, keys, 3)

	payouts, err := f.c.Payouts(created.Id)
	require.NoError(t, err)
	assert.Len(t, payouts.Paid, 3)
	assert.Empty(t, payouts.Unpaid)
}

func TestReelectUnansweredNodes(t *testing.T) {
	f := newFixture(t, 12)
	f.registerNodes(t, "alice", "n", 8, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	answered := created.ElectedNodes[0]
	dropped := created.ElectedNodes[1:]

	_, err := f.c.PostAnswer("alice", created.Id, answered, "42", "", models.ResponseSuccess)
	require.NoError(t, err)

	_, err = f.c.ReelectUnansweredNodes("mallory", created.Id)
	require.ErrorIs(t, err, ErrUnauthorized)

	replacements, err := f.c.ReelectUnansweredNodes("bob", created.Id)
	require.NoError(t, err)
	require.Len(t, replacements, 2)
	for _, nodeId := range replacements {
		assert.NotContains(t, dropped, nodeId)
		assert.NotEqual(t, answered, nodeId)
	}

	bounty := f.bounty(t, created.Id)
	assert.Equal(t, append([]string{answered}, replacements...), bounty.ElectedNodes)
	assert.ElementsMatch(t, replacements, bounty.UnansweredNodes.List())

	event := f.rec.lastEvent()
	require.Equal(t, models.EventBountyRetry, event.Event)
	assert.Equal(t, replacements, event.Data.(*models.BountyRetryLog).NodeIds)

	_, err = f.c.PostAnswer("alice", created.Id, dropped[0], "42", "", models.ResponseSuccess)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.c.PostAnswer("alice", created.Id, replacements[0], "42", "", models.ResponseSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.BountySuccess, f.bounty(t, created.Id).Status)

	_, err = f.c.ReelectUnansweredNodes("bob", created.Id)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestNodeOwnerCanTriggerReelection(t *testing.T) {
	f := newFixture(t, 13)
	f.registerNodes(t, "alice", "n", 6, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	require.Len(t, created.ElectedNodes, 3)

	// carol owns a node, but not one on this bounty's roster
	f.registerNodes(t, "carol", "c", 1, defaultSettings)
	_, err := f.c.ReelectUnansweredNodes("carol", created.Id)
	require.ErrorIs(t, err, ErrUnauthorized)

	replacements, err := f.c.ReelectUnansweredNodes("alice", created.Id)
	require.NoError(t, err)
	require.Len(t, replacements, 3)
	assert.Equal(t, replacements, f.bounty(t, created.Id).ElectedNodes)
	for _, nodeId := range replacements {
		assert.NotContains(t, created.ElectedNodes, nodeId)
	}
}

func TestReelectionNeedsFreshNodes(t *testing.T) {
	f := newFixture(t, 13)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))

	// every queued node is already on the roster
	_, err := f.c.ReelectUnansweredNodes("bob", created.Id)
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, created.ElectedNodes, f.bounty(t, created.Id).ElectedNodes)
}

func TestTopUps(t *testing.T) {
	f := newFixture(t, 14)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))

	_, err := f.c.AddRewardDeposit("mallory", created.Id, deposit(tenthEther))
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.c.AddRewardDeposit("bob", created.Id, deposit(new(big.Int)))
	require.ErrorIs(t, err, ErrInvalidArgument)

	bounty, err := f.c.AddRewardDeposit("bob", created.Id, models.Attachment{Amount: tenthEther, TxHash: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(tenthEther, big.NewInt(2)), bounty.AmtNodeReward)

	event := f.rec.lastEvent()
	require.Equal(t, models.EventBountyRetry, event.Event)
	assert.Equal(t, created.ElectedNodes, event.Data.(*models.BountyRetryLog).NodeIds)

	_, err = f.c.AddStorageDeposit("bob", created.Id, models.Attachment{Amount: tenthEther, TxHash: "0xABC"})
	require.ErrorIs(t, err, ErrInvalidState, "deposit transactions cannot be replayed")

	bounty, err = f.c.AddStorageDeposit(coordinatorId, created.Id, deposit(tenthEther))
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(tenthEther, big.NewInt(2)), bounty.AmtStorage)

	_, err = f.c.CancelBounty("bob", created.Id)
	require.NoError(t, err)
	_, err = f.c.AddStorageDeposit("bob", created.Id, deposit(tenthEther))
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReclaimRewardFromRemovedNodes(t *testing.T) {
	f := newFixture(t, 15)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	first, second := created.ElectedNodes[0], created.ElectedNodes[1]

	for _, nodeId := range []string{first, second} {
		_, err := f.c.PostAnswer("alice", created.Id, nodeId, "42", "", models.ResponseSuccess)
		require.NoError(t, err)
	}
	_, err := f.c.CollectReward("alice", first, created.Id)
	require.NoError(t, err)

	_, err = f.c.RemoveNode("alice", second)
	require.NoError(t, err)

	_, err = f.c.ReclaimRewardFromDroppedNodes("bob", created.Id)
	require.ErrorIs(t, err, ErrInvalidState, "grace period has not passed")

	f.clk.Add(DefaultReclaimGracePeriod + time.Minute)

	_, err = f.c.ReclaimRewardFromDroppedNodes("mallory", created.Id)
	require.ErrorIs(t, err, ErrUnauthorized)

	reclaimed, err := f.c.ReclaimRewardFromDroppedNodes("bob", created.Id)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Quo(tenthEther, big.NewInt(2)), reclaimed)

	again, err := f.c.ReclaimRewardFromDroppedNodes("bob", created.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Sign())

	reclaims := transfersFor(f.rec, models.TransferReclaim)
	require.Len(t, reclaims, 1)
	assert.Equal(t, "bob", reclaims[0].Recipient)
}

func TestCancelAllMyBounties(t *testing.T) {
	f := newFixture(t, 16)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	done := f.createBounty(t, "bob", bountyRequest(1))
	for _, nodeId := range done.ElectedNodes[:1] {
		_, err := f.c.PostAnswer("alice", done.Id, nodeId, "42", "", models.ResponseSuccess)
		require.NoError(t, err)
	}
	open1 := f.createBounty(t, "bob", bountyRequest(1))
	open2 := f.createBounty(t, "bob", bountyRequest(2))
	other := f.createBounty(t, "carol", bountyRequest(1))

	cancelled, err := f.c.CancelAllMyBounties("bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{open1.Id, open2.Id}, cancelled)

	assert.Equal(t, models.BountySuccess, f.bounty(t, done.Id).Status)
	assert.Equal(t, models.BountyCancelled, f.bounty(t, open1.Id).Status)
	assert.Equal(t, models.BountyPending, f.bounty(t, other.Id).Status)

	count, err := f.c.BountiesForOwnerCount("bob")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestAnswerVisibility(t *testing.T) {
	f := newFixture(t, 17)
	f.registerNodes(t, "alice", "n", 3, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	nodeId := created.ElectedNodes[0]

	_, err := f.c.PostAnswer("alice", created.Id, nodeId, "42", "", models.ResponseSuccess)
	require.NoError(t, err)

	_, err = f.c.GetAnswer(created.Id, nodeId)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.c.GetPendingAnswer("bob", created.Id, nodeId)
	require.ErrorIs(t, err, ErrUnauthorized)

	answer, err := f.c.GetPendingAnswer("alice", created.Id, nodeId)
	require.NoError(t, err)
	assert.Equal(t, "42", answer.Solution)

	_, err = f.c.GetPendingAnswer(coordinatorId, created.Id, created.ElectedNodes[1])
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.c.BountyResult(created.Id)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.c.CancelBounty("bob", created.Id)
	require.NoError(t, err)

	answer, err = f.c.GetAnswer(created.Id, nodeId)
	require.NoError(t, err)
	assert.Equal(t, "42", answer.Solution)

	_, err = f.c.GetPendingAnswer("alice", created.Id, nodeId)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestShouldPostAnswer(t *testing.T) {
	f := newFixture(t, 18)
	nodes := f.registerNodes(t, "alice", "n", 4, defaultSettings)
	created := f.createBounty(t, "bob", bountyRequest(2))
	elected := models.NewIdSet(created.ElectedNodes...)

	var outsider string
	for _, nodeId := range nodes {
		if !elected.Contains(nodeId) {
			outsider = nodeId
		}
	}
	require.NotEmpty(t, outsider)

	should, err := f.c.ShouldPostAnswer(created.Id, outsider)
	require.NoError(t, err)
	assert.False(t, should)

	nodeId := created.ElectedNodes[0]
	should, err = f.c.ShouldPostAnswer(created.Id, nodeId)
	require.NoError(t, err)
	assert.True(t, should)

	_, err = f.c.PostAnswer("alice", created.Id, nodeId, "42", "", models.ResponseSuccess)
	require.NoError(t, err)
	should, err = f.c.ShouldPostAnswer(created.Id, nodeId)
	require.NoError(t, err)
	assert.False(t, should)

	_, err = f.c.ShouldPostAnswer(created.Id, "ghost.node.alice")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestOutcomeSetsStayPartitioned drives bounties with random answer sequences
// and checks the outcome sets and closing status after every step.
func TestOutcomeSetsStayPartitioned(t *testing.T) {
	statuses := []models.NodeResponseStatus{models.ResponseSuccess, models.ResponseFailure, models.ResponseReject}
	for seed := int64(1); seed <= 25; seed++ {
		f := newFixture(t, seed)
		f.registerNodes(t, "alice", "n", 7, defaultSettings)
		created := f.createBounty(t, "bob", bountyRequest(3))
		require.Len(t, created.ElectedNodes, 4)

		r := rand.New(rand.NewSource(seed))
		order := r.Perm(len(created.ElectedNodes))
		var successes, failures uint64
		var expected models.BountyStatus = models.BountyPending

		for _, i := range order {
			nodeId := created.ElectedNodes[i]
			status := statuses[r.Intn(len(statuses))]
			_, err := f.c.PostAnswer("alice", created.Id, nodeId, "42", "", status)
			if expected != models.BountyPending {
				require.ErrorIs(t, err, ErrInvalidState, "seed %d", seed)
				continue
			}
			require.NoError(t, err, "seed %d", seed)

			switch status {
			case models.ResponseSuccess:
				successes++
			case models.ResponseFailure:
				failures++
			}
			if successes == 3 {
				expected = models.BountySuccess
			} else if failures == 3 {
				expected = models.BountyFailed
			}

			bounty := f.bounty(t, created.Id)
			assert.Equal(t, expected, bounty.Status, "seed %d", seed)
			assert.False(t, bounty.SuccessfulNodes.Len() >= 3 && bounty.FailedNodes.Len() >= 3)
		}

		bounty := f.bounty(t, created.Id)
		if bounty.IsClosed() {
			share, err := bounty.RewardPerNode()
			require.NoError(t, err)
			recipients, err := bounty.PayoutRecipients()
			require.NoError(t, err)
			paid := new(big.Int).Mul(share, big.NewInt(int64(len(recipients))))
			assert.True(t, paid.Cmp(bounty.AmtNodeReward) <= 0, "seed %d", seed)
		}
	}
}
