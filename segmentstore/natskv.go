package segmentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/ucc/retry"
)

// Bucket is the JetStream KV bucket holding segment artifacts.
const Bucket = "UCC_SEGMENTS"

// NATSStore keeps artifacts in a JetStream key-value bucket.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore binds (or creates) the segment bucket.
func NewNATSStore(ctx context.Context, js jetstream.JetStream) (*NATSStore, error) {
	kv, err := js.KeyValue(ctx, Bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      Bucket,
			Description: "UCC segment artifacts",
			History:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("create segment bucket: %w", err)
		}
	}
	return &NATSStore{kv: kv}, nil
}

// Put implements Store.
func (s *NATSStore) Put(ctx context.Context, key Key, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", key, err)
	}
	if _, err := s.kv.Put(ctx, key.String(), data); err != nil {
		return retry.Transient(fmt.Errorf("store artifact %s: %w", key, err))
	}
	return nil
}

// Get implements Store.
func (s *NATSStore) Get(ctx context.Context, key Key, out any) error {
	entry, err := s.kv.Get(ctx, key.String())
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return retry.Transient(fmt.Errorf("load artifact %s: %w", key, err))
	}
	if err := json.Unmarshal(entry.Value(), out); err != nil {
		return fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return nil
}

// Has implements Store.
func (s *NATSStore) Has(ctx context.Context, key Key) (bool, error) {
	_, err := s.kv.Get(ctx, key.String())
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}
		return false, retry.Transient(fmt.Errorf("check artifact %s: %w", key, err))
	}
	return true, nil
}

// DeleteOwner implements Store.
func (s *NATSStore) DeleteOwner(ctx context.Context, owner string) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return retry.Transient(fmt.Errorf("list artifact keys: %w", err))
	}
	for _, k := range keys {
		if strings.HasPrefix(k, owner+".") {
			if err := s.kv.Delete(ctx, k); err != nil {
				return retry.Transient(fmt.Errorf("delete artifact %s: %w", k, err))
			}
		}
	}
	return nil
}
