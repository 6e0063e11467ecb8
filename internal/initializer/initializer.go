package initializer

import (
	"context"
	"math/big"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gomodule/redigo/redis"
	"github.com/lagrangedao/go-bounty-coordinator/conf"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/ledger"
	"github.com/lagrangedao/go-bounty-coordinator/internal/notify"
	"github.com/lagrangedao/go-bounty-coordinator/internal/payment"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"github.com/lagrangedao/go-bounty-coordinator/wallet"
	"golang.org/x/xerrors"
)

const transferWorkers = 2

// Service holds everything the run command serves.
type Service struct {
	Coordinator *coordinator.Coordinator
	Deposits    *payment.DepositVerifier
	Hub         *notify.Hub

	cfg     *conf.CoordinatorNode
	ledger  *ledger.Ledger
	pool    *redis.Pool
	chain   *ethclient.Client
	wallet  *wallet.LocalWallet
	celery  *payment.CeleryService
	settler *payment.Settler
	started bool
}

// CoordinatorConfig converts the [Coordinator] section into engine settings and the storage price per byte.
func CoordinatorConfig(c conf.Coordinator) (coordinator.Config, *big.Int, error) {
	cfg := coordinator.DefaultConfig(c.AccountId)
	var err error
	if cfg.MinNodeDeposit, err = util.ParseEther(c.MinNodeDeposit); err != nil {
		return cfg, nil, xerrors.Errorf("Coordinator.MinNodeDeposit: %w", err)
	}
	if cfg.MinStorage, err = util.ParseEther(c.MinStorage); err != nil {
		return cfg, nil, xerrors.Errorf("Coordinator.MinStorage: %w", err)
	}
	if cfg.MinReward, err = util.ParseEther(c.MinReward); err != nil {
		return cfg, nil, xerrors.Errorf("Coordinator.MinReward: %w", err)
	}
	bytePrice, err := util.ParseAmount(c.StorageBytePrice)
	if err != nil {
		return cfg, nil, xerrors.Errorf("Coordinator.StorageBytePrice: %w", err)
	}
	cfg.PaddingFactor = c.PaddingFactor
	cfg.ReclaimGracePeriod = c.ReclaimGracePeriod.Duration
	return cfg, bytePrice, nil
}

func ProjectInit(repoPath string) (*Service, error) {
	if err := conf.InitConfig(repoPath); err != nil {
		return nil, err
	}
	cfg := conf.GetConfig()

	coordinatorCfg, bytePrice, err := CoordinatorConfig(cfg.Coordinator)
	if err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg}
	if s.ledger, err = ledger.Open(cfg.Coordinator.DataDir, bytePrice); err != nil {
		return nil, xerrors.Errorf("failed to open ledger at %s: %w", cfg.Coordinator.DataDir, err)
	}
	s.pool = util.NewRedisPool(cfg.API.RedisUrl, cfg.API.RedisPassword)

	if s.chain, err = ethclient.Dial(cfg.Chain.RpcUrl); err != nil {
		s.Close()
		return nil, xerrors.Errorf("failed to dial chain rpc %s: %w", cfg.Chain.RpcUrl, err)
	}
	if s.wallet, err = wallet.SetupWallet(cfg.Chain.KeystoreDir); err != nil {
		s.Close()
		return nil, xerrors.Errorf("failed to open keystore: %w", err)
	}
	if s.celery, err = payment.NewCeleryService(s.pool, transferWorkers); err != nil {
		s.Close()
		return nil, err
	}
	s.settler = payment.NewSettler(s.wallet, s.chain, cfg.Chain.TreasuryAddress, s.pool)
	s.Deposits = payment.NewDepositVerifier(s.chain, cfg.Chain.TreasuryAddress, cfg.Chain.VerifyDeposits)
	if !cfg.Chain.VerifyDeposits {
		logs.GetLogger().Warn("deposit verification is disabled, declared deposit amounts are trusted")
	}

	s.Hub = notify.NewHub()
	sinks := notify.FanOut{
		notify.LogSink{},
		notify.NewRedisPublisher(s.pool, constants.REDIS_EVENT_CHANNEL),
		s.Hub,
	}
	s.Coordinator = coordinator.New(coordinatorCfg, s.ledger,
		coordinator.WithClock(clock.New()),
		coordinator.WithTransferer(payment.NewDispatcher(s.celery)),
		coordinator.WithEventSink(sinks),
	)
	logs.GetLogger().Infof("coordinator %s initialized, ledger: %s", coordinatorCfg.AccountId, cfg.Coordinator.DataDir)
	return s, nil
}

// StartWorkers starts the transfer settlement worker and, if configured, the stall watcher.
func (s *Service) StartWorkers(ctx context.Context) {
	s.celery.RegisterTask(constants.TASK_TRANSFER, s.settler.Settle)
	s.celery.Start()
	s.started = true

	if interval := s.cfg.Coordinator.StallCheckInterval.Duration; interval > 0 {
		logs.GetLogger().Infof("checking for stalled bounties every %s", interval)
		go coordinator.NewStallWatcher(s.Coordinator, interval).Run(ctx)
	}
}

func (s *Service) Close() {
	if s.started {
		s.celery.Stop()
	}
	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.wallet != nil {
		if err := s.wallet.Close(); err != nil {
			logs.GetLogger().Errorf("failed to close keystore, error: %+v", err)
		}
	}
	if s.chain != nil {
		s.chain.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			logs.GetLogger().Errorf("failed to close ledger, error: %+v", err)
		}
	}
}
