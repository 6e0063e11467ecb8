package coordinator

import (
	"math/big"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/google/uuid"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/ledger"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"golang.org/x/xerrors"
)

const (
	DefaultPaddingFactor      = 1.25
	DefaultReclaimGracePeriod = 7 * 24 * time.Hour
)

var (
	oneEther   = big.NewInt(1_000_000_000_000_000_000)
	tenthEther = big.NewInt(100_000_000_000_000_000)
)

type Config struct {
	// AccountId is the identity of the coordinator itself. It passes every owner check.
	AccountId          string
	MinNodeDeposit     *big.Int
	MinStorage         *big.Int
	MinReward          *big.Int
	PaddingFactor      float64
	ReclaimGracePeriod time.Duration
}

func DefaultConfig(accountId string) Config {
	return Config{
		AccountId:          accountId,
		MinNodeDeposit:     new(big.Int).Set(oneEther),
		MinStorage:         new(big.Int).Set(tenthEther),
		MinReward:          new(big.Int).Set(tenthEther),
		PaddingFactor:      DefaultPaddingFactor,
		ReclaimGracePeriod: DefaultReclaimGracePeriod,
	}
}

// Transferer moves funds out of escrow. The coordinator does not wait for settlement.
type Transferer interface {
	Transfer(t *models.Transfer) error
}

type EventSink interface {
	Publish(e *models.EventLog) error
}

type RandomSource interface {
	Uint64() uint64
}

type Option func(*Coordinator)

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

func WithRandomSource(r RandomSource) Option {
	return func(c *Coordinator) {
		c.rand = r
	}
}

func WithTransferer(t Transferer) Option {
	return func(c *Coordinator) {
		c.transfers = t
	}
}

func WithEventSink(s EventSink) Option {
	return func(c *Coordinator) {
		c.events = s
	}
}

// Coordinator owns every node and bounty record. All mutations go through a
// single ledger transaction, so a call either fully commits or leaves no trace.
type Coordinator struct {
	cfg       Config
	ledger    *ledger.Ledger
	clock     clock.Clock
	rand      RandomSource
	transfers Transferer
	events    EventSink
}

func New(cfg Config, l *ledger.Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		ledger:    l,
		clock:     clock.New(),
		rand:      NewCryptoSource(),
		transfers: logTransferer{},
		events:    logSink{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.PaddingFactor < 1 {
		c.cfg.PaddingFactor = DefaultPaddingFactor
	}
	return c
}

func (c *Coordinator) AccountId() string {
	return c.cfg.AccountId
}

func (c *Coordinator) now() int64 {
	return c.clock.Now().UnixMilli()
}

func (c *Coordinator) isCoordinator(caller string) bool {
	return caller == c.cfg.AccountId
}

type state struct {
	NodeQueue              []string     `json:"node_queue"`
	ActiveBounties         models.IdSet `json:"active_bounties"`
	UniversalBountyIndex   uint64       `json:"universal_bounty_index"`
	TotalCompletedBounties uint64       `json:"total_completed_bounties"`
	TotalPayouts           *big.Int     `json:"total_payouts"`
}

func loadState(r ledger.Reader) (*state, error) {
	var st state
	if err := r.Get(constants.KEY_COORDINATOR_STATE, &st); err != nil {
		if !xerrors.Is(err, ledger.ErrNotFound) {
			return nil, err
		}
	}
	if st.NodeQueue == nil {
		st.NodeQueue = []string{}
	}
	if st.ActiveBounties == nil {
		st.ActiveBounties = models.NewIdSet()
	}
	if st.TotalPayouts == nil {
		st.TotalPayouts = new(big.Int)
	}
	return &st, nil
}

// session is the working set of one mutating call.
type session struct {
	c     *Coordinator
	tx    *ledger.Txn
	state *state
	now   int64
}

func (c *Coordinator) update(fn func(s *session) error) error {
	return c.ledger.Update(func(tx *ledger.Txn) error {
		st, err := loadState(tx)
		if err != nil {
			return err
		}
		s := &session{c: c, tx: tx, state: st, now: c.now()}
		if err := fn(s); err != nil {
			return err
		}
		return tx.Put(constants.KEY_COORDINATOR_STATE, st)
	})
}

func (c *Coordinator) view(fn func(r ledger.Reader, st *state) error) error {
	return c.ledger.View(func(r ledger.Reader) error {
		st, err := loadState(r)
		if err != nil {
			return err
		}
		return fn(r, st)
	})
}

func getNode(r ledger.Reader, nodeId string) (*models.Node, error) {
	var node models.Node
	if err := r.Get(constants.PREFIX_NODE+nodeId, &node); err != nil {
		if xerrors.Is(err, ledger.ErrNotFound) {
			return nil, xerrors.Errorf("node %s does not exist: %w", nodeId, ErrNotFound)
		}
		return nil, err
	}
	return &node, nil
}

func getBounty(r ledger.Reader, bountyId string) (*models.Bounty, error) {
	var bounty models.Bounty
	if err := r.Get(constants.PREFIX_BOUNTY+bountyId, &bounty); err != nil {
		if xerrors.Is(err, ledger.ErrNotFound) {
			return nil, xerrors.Errorf("bounty %s does not exist: %w", bountyId, ErrNotFound)
		}
		return nil, err
	}
	return &bounty, nil
}

func getIndex(r ledger.Reader, key string) ([]string, error) {
	var ids []string
	if err := r.Get(key, &ids); err != nil {
		if xerrors.Is(err, ledger.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return ids, nil
}

func (s *session) putNode(node *models.Node) error {
	return s.tx.Put(constants.PREFIX_NODE+node.Id, node)
}

func (s *session) putBounty(bounty *models.Bounty) error {
	return s.tx.Put(constants.PREFIX_BOUNTY+bounty.Id, bounty)
}

func (s *session) putIndex(key string, ids []string) error {
	if len(ids) == 0 {
		return s.tx.Delete(key)
	}
	return s.tx.Put(key, ids)
}

// consumeDeposit records the backing transaction of an attachment so it cannot be spent twice.
func (s *session) consumeDeposit(att models.Attachment) error {
	if att.TxHash == "" {
		return nil
	}
	key := constants.PREFIX_DEPOSIT + strings.ToLower(att.TxHash)
	used, err := s.tx.Has(key)
	if err != nil {
		return err
	}
	if used {
		return xerrors.Errorf("deposit transaction %s has already been used: %w", att.TxHash, ErrInvalidState)
	}
	return s.tx.Put(key, att.Value())
}

func (s *session) emit(event *models.EventLog) {
	s.tx.Defer(func() {
		if err := s.c.events.Publish(event); err != nil {
			logs.GetLogger().Errorf("failed to publish %s event for bounty %s, error: %+v", event.Event, event.BountyId(), err)
		}
	})
}

// transfer schedules a payment once the call commits. Zero amounts are skipped.
func (s *session) transfer(reason models.TransferReason, recipient string, amount *big.Int, bountyId, nodeId string) {
	if amount.Sign() <= 0 {
		logs.GetLogger().Infof("skipping %s transfer of zero to %s", reason, recipient)
		return
	}
	t := &models.Transfer{
		Key:       transferKey(reason, bountyId, nodeId),
		Recipient: recipient,
		Amount:    new(big.Int).Set(amount),
		Reason:    reason,
		BountyId:  bountyId,
		NodeId:    nodeId,
	}
	s.tx.Defer(func() {
		if err := s.c.transfers.Transfer(t); err != nil {
			logs.GetLogger().Errorf("failed to dispatch %s, error: %+v", t, err)
		}
	})
}

func transferKey(reason models.TransferReason, bountyId, nodeId string) string {
	name := strings.Join([]string{string(reason), bountyId, nodeId}, "/")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

type logTransferer struct{}

func (logTransferer) Transfer(t *models.Transfer) error {
	logs.GetLogger().Warnf("no transfer backend configured, dropping %s", t)
	return nil
}

type logSink struct{}

func (logSink) Publish(e *models.EventLog) error {
	logs.GetLogger().Info(e.String())
	return nil
}
