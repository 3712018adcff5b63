package state

import (
	"bytes"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"salechain/storage"
)

// Manager provides keccak-keyed, RLP-encoded access to the underlying
// key-value database. All module state, including the token ledger, is
// persisted through it.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// Keys are hashed with keccak256 so arbitrary-length prefixes map onto
// uniform database keys.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return reports whether the key
// existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list
// stored under the supplied key. Duplicate values are ignored to keep index
// lists deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.db.Get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(hashed, encoded)
}

// KVWriteBatch applies a group of writes as one atomic database commit.
// Keys are raw (pre-hash) KV keys; put values carry the RLP encoding the
// caller wants stored verbatim, and append values extend the byte-slice list
// under their key with the same dedupe rule as KVAppend. Either every write
// lands or none do.
func (m *Manager) KVWriteBatch(puts map[string][]byte, appends map[string][][]byte) error {
	batch := m.db.NewBatch()
	for key, value := range puts {
		if len(key) == 0 {
			return fmt.Errorf("kv: key must not be empty")
		}
		batch.Put(kvKey([]byte(key)), value)
	}
	for key, values := range appends {
		if len(key) == 0 {
			return fmt.Errorf("kv: key must not be empty")
		}
		hashed := kvKey([]byte(key))
		data, err := m.db.Get(hashed)
		if err != nil {
			return err
		}
		var list [][]byte
		if len(data) > 0 {
			if err := rlp.DecodeBytes(data, &list); err != nil {
				return err
			}
		}
		for _, value := range values {
			duplicate := false
			for _, existing := range list {
				if bytes.Equal(existing, value) {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}
			list = append(list, append([]byte(nil), value...))
		}
		encoded, err := rlp.EncodeToBytes(list)
		if err != nil {
			return err
		}
		batch.Put(hashed, encoded)
	}
	return batch.Write()
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. A missing key
// yields an empty slice rather than nil.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
