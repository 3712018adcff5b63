package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"salechain/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func TestKVRoundTrip(t *testing.T) {
	manager := newTestManager()

	type payload struct {
		Label  string
		Amount *big.Int
	}
	in := payload{Label: "hello", Amount: big.NewInt(42)}
	if err := manager.KVPut([]byte("test/key"), &in); err != nil {
		t.Fatalf("put: %v", err)
	}

	var out payload
	ok, err := manager.KVGet([]byte("test/key"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected key to exist")
	}
	if out.Label != in.Label || out.Amount.Cmp(in.Amount) != 0 {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	ok, err = manager.KVGet([]byte("test/missing"), &out)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatalf("missing key reported as present")
	}
}

func TestKVRejectsEmptyKey(t *testing.T) {
	manager := newTestManager()
	if err := manager.KVPut(nil, "value"); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := manager.KVGet(nil, nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := manager.KVAppend(nil, []byte("v")); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	manager := newTestManager()
	key := []byte("test/list")

	for _, value := range []string{"a", "b", "a", "c", "b"} {
		if err := manager.KVAppend(key, []byte(value)); err != nil {
			t.Fatalf("append %q: %v", value, err)
		}
	}

	var list [][]byte
	if err := manager.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(list) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(list))
	}
	for i, value := range want {
		if string(list[i]) != value {
			t.Fatalf("entry %d = %q, want %q", i, list[i], value)
		}
	}
}

func TestKVWriteBatchAppliesPutsAndAppends(t *testing.T) {
	manager := newTestManager()
	if err := manager.KVAppend([]byte("test/list"), []byte("a")); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	type payload struct{ Label string }
	encoded, err := rlp.EncodeToBytes(payload{Label: "batched"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	puts := map[string][]byte{"test/key": encoded}
	// "a" already exists in the list; the batch must deduplicate it.
	appends := map[string][][]byte{"test/list": {[]byte("a"), []byte("b")}}
	if err := manager.KVWriteBatch(puts, appends); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	var out payload
	ok, err := manager.KVGet([]byte("test/key"), &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Label != "batched" {
		t.Fatalf("unexpected value %+v", out)
	}
	var list [][]byte
	if err := manager.KVGetList([]byte("test/list"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 || string(list[0]) != "a" || string(list[1]) != "b" {
		t.Fatalf("unexpected list %q", list)
	}

	if err := manager.KVWriteBatch(map[string][]byte{"": []byte("v")}, nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestKVGetListMissingYieldsEmptySlice(t *testing.T) {
	manager := newTestManager()
	list := [][]byte{[]byte("stale")}
	if err := manager.KVGetList([]byte("test/none"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty slice, got %v", list)
	}
}
