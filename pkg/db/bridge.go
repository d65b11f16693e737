package db

import (
	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
)

// The bridge index maps every initialized mint so the set of bridges can be listed without decoding every
// stored account.
const bridgeIndexPrefix = "BRIDGE:IDX:V1:"

func bridgeIndexKey(mint solana.PublicKey) []byte {
	return append([]byte(bridgeIndexPrefix), mint[:]...)
}

func IndexBridge(txn *badger.Txn, mint solana.PublicKey) error {
	return txn.Set(bridgeIndexKey(mint), nil)
}

// IndexedBridges returns the mints of every initialized bridge in key order.
func (d *Database) IndexedBridges() ([]solana.PublicKey, error) {
	mints := []solana.PublicKey{}
	prefix := []byte(bridgeIndexPrefix)
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var mint solana.PublicKey
			copy(mint[:], key[len(prefix):])
			mints = append(mints, mint)
		}
		return nil
	})
	return mints, err
}
