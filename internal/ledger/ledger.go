package ledger

import (
	"encoding/json"
	"math/big"
	"os"
	"strings"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/xerrors"
)

var ErrNotFound = xerrors.New("record not found")

// Reader is the read side shared by transactions and snapshots.
type Reader interface {
	Get(key string, v interface{}) error
	Has(key string) (bool, error)
	Keys(prefix string) ([]string, error)
}

type getter interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

// Ledger is the keyed record store. Every mutation runs inside one leveldb
// transaction; only one transaction can be open at a time, so mutations never interleave.
type Ledger struct {
	db        *leveldb.DB
	bytePrice *big.Int
}

func Open(path string, bytePrice *big.Int) (*Ledger, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, err
		}
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, xerrors.Errorf("opening ledger %s: %w", path, err)
	}
	return &Ledger{db: db, bytePrice: new(big.Int).Set(bytePrice)}, nil
}

// OpenMem opens a ledger backed by memory only.
func OpenMem(bytePrice *big.Int) (*Ledger, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db, bytePrice: new(big.Int).Set(bytePrice)}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// StorageCost prices size bytes of stored data.
func (l *Ledger) StorageCost(size uint64) *big.Int {
	return new(big.Int).Mul(l.bytePrice, new(big.Int).SetUint64(size))
}

// Update runs fn inside a transaction. If fn returns an error nothing is
// written and no deferred effect runs. Effects registered with Txn.Defer run
// in order after a successful commit.
func (l *Ledger) Update(fn func(tx *Txn) error) error {
	tr, err := l.db.OpenTransaction()
	if err != nil {
		return xerrors.Errorf("opening transaction: %w", err)
	}

	tx := &Txn{tr: tr, reader: reader{tr}}
	if err := fn(tx); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		tr.Discard()
		return xerrors.Errorf("committing transaction: %w", err)
	}

	for _, effect := range tx.effects {
		effect()
	}
	return nil
}

// View runs fn against a consistent snapshot.
func (l *Ledger) View(fn func(r Reader) error) error {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return xerrors.Errorf("taking snapshot: %w", err)
	}
	defer snap.Release()
	return fn(reader{snap})
}

type Txn struct {
	reader
	tr      *leveldb.Transaction
	effects []func()
}

func (tx *Txn) Put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("encoding %s: %w", key, err)
	}
	if err := tx.tr.Put([]byte(key), data, nil); err != nil {
		return xerrors.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (tx *Txn) Delete(key string) error {
	if err := tx.tr.Delete([]byte(key), nil); err != nil {
		return xerrors.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Defer queues fn to run once the transaction has committed.
func (tx *Txn) Defer(fn func()) {
	tx.effects = append(tx.effects, fn)
}

type reader struct {
	g getter
}

func (r reader) Get(key string, v interface{}) error {
	data, err := r.g.Get([]byte(key), nil)
	if err != nil {
		if xerrors.Is(err, leveldb.ErrNotFound) {
			return xerrors.Errorf("%s: %w", key, ErrNotFound)
		}
		return xerrors.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return xerrors.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (r reader) Has(key string) (bool, error) {
	return r.g.Has([]byte(key), nil)
}

func (r reader) Keys(prefix string) ([]string, error) {
	var keys []string
	iter := r.g.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		keys = append(keys, strings.TrimPrefix(string(iter.Key()), prefix))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		logs.GetLogger().Errorf("iterating %s failed, error: %+v", prefix, err)
		return nil, err
	}
	return keys, nil
}

// EncodedSize is the number of bytes v occupies once stored.
func EncodedSize(v interface{}) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return uint64(len(data)), nil
}
