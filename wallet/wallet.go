package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"golang.org/x/xerrors"
)

const (
	KNamePrefix = "wallet-"

	transferGasLimit = 21000
)

var (
	ErrKeyInfoNotFound = fmt.Errorf("key info not found")
	ErrKeyExists       = fmt.Errorf("key already exists")
)

// ChainClient is the part of ethclient.Client the wallet needs.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

func SetupWallet(keystoreDir string) (*LocalWallet, error) {
	kstore, err := OpenOrInitKeystore(keystoreDir)
	if err != nil {
		return nil, err
	}
	return NewWallet(kstore), nil
}

type LocalWallet struct {
	keys     map[string]*KeyInfo
	keystore KeyStore

	lk sync.Mutex
}

func NewWallet(keystore KeyStore) *LocalWallet {
	return &LocalWallet{
		keys:     make(map[string]*KeyInfo),
		keystore: keystore,
	}
}

func (w *LocalWallet) Close() error {
	if closer, ok := w.keystore.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (w *LocalWallet) WalletSign(ctx context.Context, addr string, msg []byte) (string, error) {
	ki, err := w.findKey(addr)
	if err != nil {
		return "", err
	}
	if ki == nil {
		return "", xerrors.Errorf("signing using private key '%s': %w", addr, ErrKeyInfoNotFound)
	}
	sig, err := Sign(ki.PrivateKey, msg)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// WalletVerify checks a signature against an address. No local key is needed.
func (w *LocalWallet) WalletVerify(ctx context.Context, addr string, sig []byte, msg []byte) (bool, error) {
	return Verify(addr, sig, msg)
}

func normalize(addr string) string {
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

func (w *LocalWallet) findKey(addr string) (*KeyInfo, error) {
	addr = normalize(addr)

	w.lk.Lock()
	defer w.lk.Unlock()

	if k, ok := w.keys[addr]; ok {
		return k, nil
	}

	ki, err := w.keystore.Get(KNamePrefix + addr)
	if err != nil {
		if xerrors.Is(err, ErrKeyInfoNotFound) {
			return nil, nil
		}
		return nil, xerrors.Errorf("getting from keystore: %w", err)
	}

	w.keys[addr] = &ki
	return &ki, nil
}

func (w *LocalWallet) WalletExport(ctx context.Context, addr string) (*KeyInfo, error) {
	k, err := w.findKey(addr)
	if err != nil {
		return nil, xerrors.Errorf("failed to find key to export: %w", err)
	}
	if k == nil {
		return nil, xerrors.Errorf("private key not found for %s: %w", addr, ErrKeyInfoNotFound)
	}
	return k, nil
}

// WalletImport stores a hex private key and returns its address.
func (w *LocalWallet) WalletImport(ctx context.Context, ki *KeyInfo) (string, error) {
	if ki == nil || len(strings.TrimSpace(ki.PrivateKey)) == 0 {
		return "", fmt.Errorf("not found private key")
	}
	privateKey := strings.TrimPrefix(strings.TrimSpace(ki.PrivateKey), "0x")

	_, publicKeyECDSA, err := ToPublic(privateKey)
	if err != nil {
		return "", err
	}
	address := crypto.PubkeyToAddress(*publicKeyECDSA).Hex()

	existing, err := w.findKey(address)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", xerrors.Errorf("importing %s: %w", address, ErrKeyExists)
	}

	stored := KeyInfo{PrivateKey: privateKey}
	if err := w.keystore.Put(KNamePrefix+address, stored); err != nil {
		return "", xerrors.Errorf("saving to keystore: %w", err)
	}
	w.lk.Lock()
	w.keys[address] = &stored
	w.lk.Unlock()
	return address, nil
}

func (w *LocalWallet) WalletNew(ctx context.Context) (string, error) {
	privateK, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	privateKey := hexutil.Encode(crypto.FromECDSA(privateK))[2:]
	address := crypto.PubkeyToAddress(privateK.PublicKey).Hex()

	w.lk.Lock()
	defer w.lk.Unlock()

	keyInfo := KeyInfo{PrivateKey: privateKey}
	if err := w.keystore.Put(KNamePrefix+address, keyInfo); err != nil {
		return "", xerrors.Errorf("saving to keystore: %w", err)
	}
	w.keys[address] = &keyInfo
	return address, nil
}

func (w *LocalWallet) WalletDelete(ctx context.Context, addr string) error {
	k, err := w.findKey(addr)
	if err != nil {
		return xerrors.Errorf("failed to delete key %s : %w", addr, err)
	}
	if k == nil {
		return nil // already not there
	}

	addr = normalize(addr)
	w.lk.Lock()
	defer w.lk.Unlock()

	if err := w.keystore.Delete(KNamePrefix + addr); err != nil {
		return xerrors.Errorf("failed to delete key %s: %w", addr, err)
	}
	delete(w.keys, addr)
	return nil
}

func (w *LocalWallet) AddressList(ctx context.Context) ([]string, error) {
	all, err := w.keystore.List()
	if err != nil {
		return nil, xerrors.Errorf("listing keystore: %w", err)
	}

	addressList := make([]string, 0, len(all))
	for _, a := range all {
		if strings.HasPrefix(a, KNamePrefix) {
			addressList = append(addressList, strings.TrimPrefix(a, KNamePrefix))
		}
	}
	return addressList, nil
}

type WalletInfo struct {
	Address string
	Balance *big.Int
	Nonce   uint64
	Error   string
}

// WalletList reports the balance and pending nonce of every stored address.
func (w *LocalWallet) WalletList(ctx context.Context, client ChainClient) ([]WalletInfo, error) {
	addressList, err := w.AddressList(ctx)
	if err != nil {
		return nil, err
	}

	var wallets []WalletInfo
	for _, addr := range addressList {
		info := WalletInfo{Address: addr}
		balance, err := Balance(ctx, client, addr)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Balance = balance
		}
		nonce, err := client.PendingNonceAt(ctx, common.HexToAddress(addr))
		if err != nil {
			info.Error = err.Error()
		}
		info.Nonce = nonce
		wallets = append(wallets, info)
	}
	return wallets, nil
}

// WalletSend transfers amount wei from a stored key and returns the transaction hash.
func (w *LocalWallet) WalletSend(ctx context.Context, client ChainClient, from, to string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid target address: %s", to)
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("amount must be positive")
	}
	ki, err := w.findKey(from)
	if err != nil {
		return "", err
	}
	if ki == nil {
		return "", xerrors.Errorf("the address: %s, private %w", from, ErrKeyInfoNotFound)
	}
	return sendTransaction(ctx, client, ki.PrivateKey, to, amount)
}

func Balance(ctx context.Context, client ChainClient, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}
	return client.BalanceAt(ctx, common.HexToAddress(addr), nil)
}

func sendTransaction(ctx context.Context, client ChainClient, privateKey string, to string, amount *big.Int) (string, error) {
	key, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return "", err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce of %s, error: %+v", from, err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price, error: %+v", err)
	}
	chainId, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain id, error: %+v", err)
	}

	toAddr := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      transferGasLimit,
		To:       &toAddr,
		Value:    amount,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainId), key)
	if err != nil {
		return "", err
	}
	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction, error: %+v", err)
	}
	logs.GetLogger().Infof("sent %s wei from %s to %s, tx: %s", amount, from.Hex(), toAddr.Hex(), signedTx.Hash().Hex())
	return signedTx.Hash().Hex(), nil
}
