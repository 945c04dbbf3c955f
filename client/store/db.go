package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

var (
	bucketMeta     = []byte("meta")
	bucketMintKeys = []byte("mint_keys_by_session")
	bucketClaims   = []byte("claims_by_session")

	keyLastQuery = []byte("last_claim_query")
)

const (
	mintKeyLayoutV1 = 1
	claimLayoutV1   = 1
)

// SessionKey identifies one claim attempt: a leaf of a distribution claimed
// by one claimant identity.
type SessionKey struct {
	Distributor protocol.Pubkey
	Index       uint64
	Claimant    protocol.Pubkey
}

// Layout: distributor 32 | index u64be | claimant 32
func (k SessionKey) bytes() []byte {
	out := make([]byte, 0, 72)
	out = append(out, k.Distributor[:]...)
	out = binary.BigEndian.AppendUint64(out, k.Index)
	return append(out, k.Claimant[:]...)
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s|%d|%s", k.Distributor, k.Index, k.Claimant)
}

// ClaimRecord is the last checkpoint of a claim session.
type ClaimRecord struct {
	State       string
	FailedIndex int32
	Txids       []string
	UpdatedAt   time.Time
}

type DB struct {
	dir string
	db  *bolt.DB
}

func NetworkDir(datadir, network string) string {
	return filepath.Join(datadir, network)
}

func Open(datadir string, network string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("network required")
	}
	dir := NetworkDir(datadir, network)
	if err := os.MkdirAll(filepath.Join(dir, "db"), 0o700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "db", "client.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketMintKeys, bucketClaims} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &DB{dir: dir, db: bdb}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Dir() string { return d.dir }

func (d *DB) PutLastQuery(raw string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyLastQuery, []byte(raw))
	})
}

func (d *DB) LastQuery() (string, bool, error) {
	var out []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyLastQuery); v != nil {
			out = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil || out == nil {
		return "", false, err
	}
	return string(out), true, nil
}

func (d *DB) PutMintKey(k SessionKey, w *crypto.WrappedKey) error {
	b, err := encodeWrappedKey(w)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMintKeys).Put(k.bytes(), b)
	})
}

func (d *DB) MintKey(k SessionKey) (*crypto.WrappedKey, bool, error) {
	var out *crypto.WrappedKey
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMintKeys).Get(k.bytes())
		if v == nil {
			return nil
		}
		w, err := decodeWrappedKey(v)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

func (d *DB) DeleteMintKey(k SessionKey) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMintKeys).Delete(k.bytes())
	})
}

func (d *DB) PutClaim(k SessionKey, rec ClaimRecord) error {
	b, err := encodeClaimRecord(rec)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClaims).Put(k.bytes(), b)
	})
}

func (d *DB) Claim(k SessionKey) (*ClaimRecord, bool, error) {
	var out *ClaimRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketClaims).Get(k.bytes())
		if v == nil {
			return nil
		}
		rec, err := decodeClaimRecord(v)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}
