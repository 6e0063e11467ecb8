package payment

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"golang.org/x/xerrors"
)

var ErrDepositInvalid = xerrors.New("invalid deposit")

// TxLookup is the part of ethclient.Client used to check deposits.
type TxLookup interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// DepositVerifier turns the deposit headers of a request into an attachment.
// With verification on, the amount is whatever the referenced transaction paid
// the treasury. Otherwise the declared amount is trusted, which is only meant
// for development setups.
type DepositVerifier struct {
	chain    TxLookup
	treasury common.Address
	verify   bool
}

func NewDepositVerifier(chain TxLookup, treasury string, verify bool) *DepositVerifier {
	return &DepositVerifier{chain: chain, treasury: common.HexToAddress(treasury), verify: verify}
}

func (v *DepositVerifier) Attachment(ctx context.Context, caller, txHash, declared string) (models.Attachment, error) {
	txHash, err := canonicalTxHash(txHash)
	if err != nil {
		return models.Attachment{}, err
	}
	if !v.verify {
		if declared == "" {
			return models.Attachment{TxHash: txHash}, nil
		}
		amount, err := util.ParseAmount(declared)
		if err != nil {
			return models.Attachment{}, xerrors.Errorf("%s: %w", err, ErrDepositInvalid)
		}
		return models.Attachment{Amount: amount, TxHash: txHash}, nil
	}

	if txHash == "" {
		if declared != "" {
			return models.Attachment{}, xerrors.Errorf("a deposit must reference its transaction: %w", ErrDepositInvalid)
		}
		return models.Attachment{}, nil
	}
	amount, err := v.verifyTransaction(ctx, caller, common.HexToHash(txHash))
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{Amount: amount, TxHash: txHash}, nil
}

// canonicalTxHash accepts only 0x-prefixed 32 byte hashes and returns them in
// one spelling, so the ledger's replay guard sees every deposit under a single key.
func canonicalTxHash(txHash string) (string, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return "", nil
	}
	raw, err := hexutil.Decode(txHash)
	if err != nil {
		return "", xerrors.Errorf("malformed deposit transaction hash %q: %s: %w", txHash, err, ErrDepositInvalid)
	}
	if len(raw) != common.HashLength {
		return "", xerrors.Errorf("deposit transaction hash %q is %d bytes, want %d: %w", txHash, len(raw), common.HashLength, ErrDepositInvalid)
	}
	return common.BytesToHash(raw).Hex(), nil
}

func (v *DepositVerifier) verifyTransaction(ctx context.Context, caller string, hash common.Hash) (*big.Int, error) {
	tx, pending, err := v.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, xerrors.Errorf("looking up deposit %s: %s: %w", hash, err, ErrDepositInvalid)
	}
	if pending {
		return nil, xerrors.Errorf("deposit %s is still pending: %w", hash, ErrDepositInvalid)
	}
	receipt, err := v.chain.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, xerrors.Errorf("reading receipt of deposit %s: %s: %w", hash, err, ErrDepositInvalid)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, xerrors.Errorf("deposit %s failed on chain: %w", hash, ErrDepositInvalid)
	}
	if tx.To() == nil || *tx.To() != v.treasury {
		return nil, xerrors.Errorf("deposit %s was not sent to the treasury %s: %w", hash, v.treasury, ErrDepositInvalid)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, xerrors.Errorf("recovering sender of deposit %s: %s: %w", hash, err, ErrDepositInvalid)
	}
	if !common.IsHexAddress(caller) || sender != common.HexToAddress(caller) {
		return nil, xerrors.Errorf("deposit %s was sent by %s, not %s: %w", hash, sender, caller, ErrDepositInvalid)
	}
	logs.GetLogger().Infof("verified deposit %s of %s wei from %s", hash, tx.Value(), sender)
	return tx.Value(), nil
}
