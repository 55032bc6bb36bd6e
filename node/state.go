package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ruteri/tee-enclave-node/cryptoutils"
	"github.com/ruteri/tee-enclave-node/interfaces"
)

// State store items.
const (
	keyItem   = "node-key"
	stateItem = "node-state"
)

var (
	// ErrNoSealedState is returned by recover when the store holds no node key.
	ErrNoSealedState = errors.New("no sealed node state to recover")
	// ErrStateExists is returned by a fresh create when a node key is already sealed.
	ErrStateExists = errors.New("sealed node state already exists")
)

// keyRecord is sealed under <service>/node-key.
type keyRecord struct {
	NodeID string `json:"node_id"`
	Key    []byte `json:"key"`
}

// stateRecord is sealed under <service>/node-state and rewritten while the
// node runs.
type stateRecord struct {
	NodeID   string `json:"node_id"`
	HostTime int64  `json:"host_time"`
	Seq      uint64 `json:"seq"`
}

// sealedStore seals JSON records into a state store. The state key is the
// additional data, so a blob moved to another slot fails to unseal.
type sealedStore struct {
	store   interfaces.StateStore
	key     []byte
	service string
}

func (s *sealedStore) put(ctx context.Context, item string, record any) error {
	key := interfaces.NewStateKey(s.service, item)

	plaintext, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", item, err)
	}

	sealed, err := cryptoutils.Seal(s.key, plaintext, []byte(key))
	if err != nil {
		return fmt.Errorf("sealing %s: %w", item, err)
	}

	if err := s.store.Put(ctx, key, sealed); err != nil {
		return fmt.Errorf("storing %s: %w", item, err)
	}
	return nil
}

func (s *sealedStore) get(ctx context.Context, item string, record any) error {
	key := interfaces.NewStateKey(s.service, item)

	sealed, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("loading %s: %w", item, err)
	}

	plaintext, err := cryptoutils.Unseal(s.key, sealed, []byte(key))
	if err != nil {
		return fmt.Errorf("unsealing %s: %w", item, err)
	}

	if err := json.Unmarshal(plaintext, record); err != nil {
		return fmt.Errorf("decoding %s: %w", item, err)
	}
	return nil
}

// exists reports whether the store holds anything under item. It does not
// unseal the blob.
func (s *sealedStore) exists(ctx context.Context, item string) (bool, error) {
	key := interfaces.NewStateKey(s.service, item)

	_, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, interfaces.ErrStateNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("checking %s: %w", item, err)
	}
}
