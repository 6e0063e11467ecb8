package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gomodule/redigo/redis"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/lagrangedao/go-bounty-coordinator/wallet"
	"golang.org/x/xerrors"
)

var ErrAlreadySettled = xerrors.New("transfer already settled")

const (
	pendingMarker  = "pending"
	pendingExpiry  = 24 * 60 * 60
	sendTxDeadline = 2 * time.Minute
)

// Settler pays queued transfers out of the treasury wallet. Each transfer key
// is claimed in Redis before sending, so a redelivered task never pays twice.
type Settler struct {
	wallet   *wallet.LocalWallet
	client   wallet.ChainClient
	treasury string
	pool     *redis.Pool
}

func NewSettler(w *wallet.LocalWallet, client wallet.ChainClient, treasury string, pool *redis.Pool) *Settler {
	return &Settler{wallet: w, client: client, treasury: treasury, pool: pool}
}

// Settle is the celery task body. It returns the transaction hash, or an empty string on failure.
func (s *Settler) Settle(payload string) string {
	var t models.Transfer
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		logs.GetLogger().Errorf("failed to decode transfer task, payload: %s, error: %+v", payload, err)
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTxDeadline)
	defer cancel()
	txHash, err := s.settle(ctx, &t)
	if err != nil {
		if xerrors.Is(err, ErrAlreadySettled) {
			logs.GetLogger().Warnf("skipping %s: %s", &t, err)
		} else {
			logs.GetLogger().Errorf("failed to settle %s, error: %+v", &t, err)
		}
		return ""
	}
	logs.GetLogger().Infof("settled %s, tx: %s", &t, txHash)
	return txHash
}

func (s *Settler) settle(ctx context.Context, t *models.Transfer) (string, error) {
	if !common.IsHexAddress(t.Recipient) {
		return "", xerrors.Errorf("recipient %s is not an address", t.Recipient)
	}
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return "", xerrors.Errorf("transfer %s has no amount", t.Key)
	}

	conn := s.pool.Get()
	defer conn.Close()

	key := constants.REDIS_TRANSFER_PREFIX + t.Key
	if _, err := redis.String(conn.Do("SET", key, pendingMarker, "NX", "EX", pendingExpiry)); err != nil {
		if xerrors.Is(err, redis.ErrNil) {
			previous, _ := redis.String(conn.Do("GET", key))
			return "", xerrors.Errorf("key %s is %s: %w", t.Key, previous, ErrAlreadySettled)
		}
		return "", xerrors.Errorf("claiming transfer %s: %w", t.Key, err)
	}

	txHash, err := s.wallet.WalletSend(ctx, s.client, s.treasury, t.Recipient, t.Amount)
	if err != nil {
		if _, delErr := conn.Do("DEL", key); delErr != nil {
			logs.GetLogger().Errorf("failed to release transfer %s, error: %+v", t.Key, delErr)
		}
		return "", err
	}
	if _, err := conn.Do("SET", key, txHash); err != nil {
		logs.GetLogger().Errorf("transfer %s was sent in %s but could not be recorded, error: %+v", t.Key, txHash, err)
	}
	return txHash, nil
}

// SettlementOf returns the transaction hash recorded for a transfer key, or "pending".
func SettlementOf(pool *redis.Pool, key string) (string, error) {
	conn := pool.Get()
	defer conn.Close()
	v, err := redis.String(conn.Do("GET", constants.REDIS_TRANSFER_PREFIX+key))
	if xerrors.Is(err, redis.ErrNil) {
		return "", nil
	}
	return v, err
}
