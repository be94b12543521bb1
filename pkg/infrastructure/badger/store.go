// Package badger persists products, the ledger and role grants in an embedded BadgerDB.
//
// Key layout:
//
//	product/<id>                 product JSON
//	ledger/p/<productID>/<seq>   record JSON
//	ledger/a/<hex actor>/<seq>   key of the record under ledger/p
//	grant/<hex identity>/<cap>   empty
//
// Numbers are zero padded so that key order is numeric order.
package badger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"supplychain/pkg/domain/model"
)

const sequenceBandwidth = 100

var (
	_ model.UnitOfWork        = (*Store)(nil)
	_ model.RoleAuthority     = (*Store)(nil)
	_ model.RoleAdministrator = (*Store)(nil)
)

type Store struct {
	db         *badgerdb.DB
	productSeq *badgerdb.Sequence
	ledgerSeq  *badgerdb.Sequence
}

// Open opens the database at path. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	opts := badgerdb.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(log.WithField("component", "badger"))

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, unavailable(err, "open badger at %q", path)
	}

	productSeq, err := db.GetSequence([]byte("seq/product"), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, unavailable(err, "product sequence")
	}
	ledgerSeq, err := db.GetSequence([]byte("seq/ledger"), sequenceBandwidth)
	if err != nil {
		_ = productSeq.Release()
		_ = db.Close()
		return nil, unavailable(err, "ledger sequence")
	}
	return &Store{db: db, productSeq: productSeq, ledgerSeq: ledgerSeq}, nil
}

func (s *Store) Close() error {
	_ = s.productSeq.Release()
	_ = s.ledgerSeq.Release()
	return s.db.Close()
}

func (s *Store) ProductRepository() model.ProductRepository {
	return &productRepository{store: s}
}

func (s *Store) HistoryRepository() model.HistoryRepository {
	return &historyRepository{store: s}
}

// Execute runs action in a read-write transaction. A concurrent commit touching the same keys
// makes the commit fail with a store error.
func (s *Store) Execute(_ context.Context, action func(provider model.RepositoryProvider) error) error {
	var actionErr error
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		actionErr = action(&provider{store: s, txn: txn})
		return actionErr
	})
	if err != nil {
		if actionErr != nil {
			return actionErr
		}
		return unavailable(err, "commit transaction")
	}
	return nil
}

type provider struct {
	store *Store
	txn   *badgerdb.Txn
}

func (p *provider) ProductRepository() model.ProductRepository {
	return &productRepository{store: p.store, txn: p.txn}
}

func (p *provider) HistoryRepository() model.HistoryRepository {
	return &historyRepository{store: p.store, txn: p.txn}
}

// view runs fn inside txn when there is one, otherwise in a fresh read-only transaction.
func (s *Store) view(txn *badgerdb.Txn, fn func(txn *badgerdb.Txn) error) error {
	if txn != nil {
		return fn(txn)
	}
	return s.db.View(fn)
}

func (s *Store) update(txn *badgerdb.Txn, fn func(txn *badgerdb.Txn) error) error {
	if txn != nil {
		return fn(txn)
	}
	return s.db.Update(fn)
}

func productKey(id int64) []byte {
	return []byte(fmt.Sprintf("product/%020d", id))
}

func ledgerProductPrefix(productID int64) []byte {
	return []byte(fmt.Sprintf("ledger/p/%020d/", productID))
}

func ledgerActorPrefix(actor string) []byte {
	return []byte("ledger/a/" + hex.EncodeToString([]byte(actor)) + "/")
}

func grantPrefix(identity string) []byte {
	return []byte("grant/" + hex.EncodeToString([]byte(identity)) + "/")
}

func grantKey(identity string, capability model.Capability) []byte {
	return append(grantPrefix(identity), string(capability)...)
}

type productRepository struct {
	store *Store
	txn   *badgerdb.Txn
}

func (r *productRepository) NextID(_ context.Context) (int64, error) {
	n, err := r.store.productSeq.Next()
	if err != nil {
		return 0, unavailable(err, "allocate product id")
	}
	return int64(n) + 1, nil
}

func (r *productRepository) Create(_ context.Context, product *model.Product) error {
	return r.store.update(r.txn, func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(productKey(product.ID)); err == nil {
			return errors.Errorf("product %d already exists", product.ID)
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return unavailable(err, "check product %d", product.ID)
		}
		return putJSON(txn, productKey(product.ID), product)
	})
}

func (r *productRepository) Update(_ context.Context, product *model.Product) error {
	return r.store.update(r.txn, func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(productKey(product.ID)); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return model.ErrProductNotFound
			}
			return unavailable(err, "check product %d", product.ID)
		}
		return putJSON(txn, productKey(product.ID), product)
	})
}

func (r *productRepository) Find(_ context.Context, id int64) (*model.Product, error) {
	var product model.Product
	err := r.store.view(r.txn, func(txn *badgerdb.Txn) error {
		return getJSON(txn, productKey(id), &product)
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, model.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) List(_ context.Context) ([]model.Product, error) {
	result := make([]model.Product, 0)
	err := r.store.view(r.txn, func(txn *badgerdb.Txn) error {
		return iterate(txn, []byte("product/"), func(item *badgerdb.Item) error {
			var product model.Product
			if err := decodeItem(item, &product); err != nil {
				return err
			}
			result = append(result, product)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type historyRepository struct {
	store *Store
	txn   *badgerdb.Txn
}

func (r *historyRepository) Append(_ context.Context, record *model.TransactionRecord) error {
	n, err := r.store.ledgerSeq.Next()
	if err != nil {
		return unavailable(err, "allocate ledger sequence")
	}
	stored := *record
	stored.Seq = int64(n) + 1

	err = r.store.update(r.txn, func(txn *badgerdb.Txn) error {
		key := append(ledgerProductPrefix(stored.ProductID), fmt.Sprintf("%020d", stored.Seq)...)
		if err := putJSON(txn, key, stored); err != nil {
			return err
		}
		index := append(ledgerActorPrefix(stored.Actor), fmt.Sprintf("%020d", stored.Seq)...)
		if err := txn.Set(index, key); err != nil {
			return unavailable(err, "index record %d", stored.Seq)
		}
		return nil
	})
	if err != nil {
		return err
	}
	record.Seq = stored.Seq
	return nil
}

func (r *historyRepository) HistoryFor(_ context.Context, productID int64) ([]model.TransactionRecord, error) {
	result := make([]model.TransactionRecord, 0)
	err := r.store.view(r.txn, func(txn *badgerdb.Txn) error {
		return iterate(txn, ledgerProductPrefix(productID), func(item *badgerdb.Item) error {
			var record model.TransactionRecord
			if err := decodeItem(item, &record); err != nil {
				return err
			}
			result = append(result, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(result)
	return result, nil
}

func (r *historyRepository) RecordsByActor(_ context.Context, actor string) ([]model.TransactionRecord, error) {
	result := make([]model.TransactionRecord, 0)
	err := r.store.view(r.txn, func(txn *badgerdb.Txn) error {
		return iterate(txn, ledgerActorPrefix(actor), func(item *badgerdb.Item) error {
			key, err := item.ValueCopy(nil)
			if err != nil {
				return unavailable(err, "read index")
			}
			var record model.TransactionRecord
			if err := getJSON(txn, key, &record); err != nil {
				return err
			}
			result = append(result, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(result)
	return result, nil
}

// sortRecords orders by timestamp; input arrives in Seq order so ties keep insertion order.
func sortRecords(records []model.TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

func (s *Store) HasCapability(_ context.Context, identity string, capability model.Capability) (bool, error) {
	found := false
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(grantKey(identity, capability))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			return nil
		default:
			return unavailable(err, "check capability")
		}
	})
	return found, err
}

func (s *Store) CapabilitiesOf(_ context.Context, identity string) ([]model.Capability, error) {
	prefix := grantPrefix(identity)
	result := make([]model.Capability, 0)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return iterate(txn, prefix, func(item *badgerdb.Item) error {
			result = append(result, model.Capability(item.Key()[len(prefix):]))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Grant(_ context.Context, identity string, capability model.Capability) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(grantKey(identity, capability), nil)
	})
	if err != nil {
		return unavailable(err, "grant %s to %s", capability, identity)
	}
	return nil
}

func (s *Store) Revoke(_ context.Context, identity string, capability model.Capability) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(grantKey(identity, capability))
	})
	if err != nil {
		return unavailable(err, "revoke %s from %s", capability, identity)
	}
	return nil
}

func iterate(txn *badgerdb.Txn, prefix []byte, fn func(item *badgerdb.Item) error) error {
	it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

func putJSON(txn *badgerdb.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := txn.Set(key, data); err != nil {
		return unavailable(err, "write %s", key)
	}
	return nil
}

// getJSON returns badger.ErrKeyNotFound untouched so callers can map it.
func getJSON(txn *badgerdb.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return unavailable(err, "read %s", key)
	}
	return decodeItem(item, v)
}

func decodeItem(item *badgerdb.Item, v interface{}) error {
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return errors.Wrapf(err, "decode %s", item.Key())
		}
		return nil
	})
}

func unavailable(cause error, format string, args ...interface{}) error {
	return errors.Wrap(model.ErrStoreUnavailable, errors.WithMessagef(cause, format, args...).Error())
}
