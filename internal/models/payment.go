package models

import (
	"fmt"
	"math/big"
)

// Attachment is the value a caller sent along with a call.
// TxHash is empty when the amount was not backed by an on-chain deposit.
type Attachment struct {
	Amount *big.Int
	TxHash string
}

func (a Attachment) Value() *big.Int {
	if a.Amount == nil {
		return new(big.Int)
	}
	return a.Amount
}

type TransferReason string

const (
	TransferNodeDeposit   TransferReason = "node_deposit_refund"
	TransferStorageRefund TransferReason = "storage_refund"
	TransferReward        TransferReason = "reward"
	TransferReclaim       TransferReason = "reward_reclaim"
)

// Transfer is an outbound payment the coordinator fires and forgets.
// Key is stable for the same logical payment so settlement can be deduplicated.
type Transfer struct {
	Key       string         `json:"key"`
	Recipient string         `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
	Reason    TransferReason `json:"reason"`
	BountyId  string         `json:"bounty_id,omitempty"`
	NodeId    string         `json:"node_id,omitempty"`
}

func (t *Transfer) String() string {
	return fmt.Sprintf("Transfer{key: %s, recipient: %s, amount: %s, reason: %s}", t.Key, t.Recipient, t.Amount, t.Reason)
}
