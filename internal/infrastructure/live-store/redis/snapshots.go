package redislivestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

type snapshotStore struct {
	rdb          *redis.Client
	numOfRetries int
	retryDelay   time.Duration
}

func NewSnapshotStore(rdb *redis.Client, numOfRetries int) ports.SnapshotStore {
	return &snapshotStore{
		rdb:          rdb,
		numOfRetries: numOfRetries,
		retryDelay:   10 * time.Millisecond,
	}
}

func (s *snapshotStore) Set(ctx context.Context, snapshot domain.ReserveSnapshot) error {
	if snapshot.Source == "" {
		return fmt.Errorf("missing snapshot source")
	}
	if snapshot.LockedReserveUnits == nil {
		return fmt.Errorf("missing locked reserve amount")
	}
	value, err := newSnapshotDTO(snapshot).serialize()
	if err != nil {
		return err
	}

	key := snapshotKey(snapshot.Source)
	for range s.numOfRetries {
		if err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, value, 0)
				return nil
			})
			return err
		}, key); err == nil {
			return nil
		}
		time.Sleep(s.retryDelay)
	}
	return fmt.Errorf("failed to store snapshot after max number of retries: %v", err)
}

func (s *snapshotStore) Get(ctx context.Context, source string) (*domain.ReserveSnapshot, error) {
	value, err := s.rdb.Get(ctx, snapshotKey(source)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	dto := &snapshotDTO{}
	return dto.deserialize(value)
}

func snapshotKey(source string) string {
	return fmt.Sprintf("%s:%s", snapshotKeyPrefix, source)
}

type snapshotDTO struct {
	LockedReserveUnits string `json:"lockedReserveUnits"`
	SourceCount        int    `json:"sourceCount"`
	PendingCount       int    `json:"pendingCount"`
	AsOf               int64  `json:"asOf"`
	IntegrityStatus    string `json:"integrityStatus"`
	Source             string `json:"source"`
	Warning            string `json:"warning"`
}

func newSnapshotDTO(s domain.ReserveSnapshot) snapshotDTO {
	return snapshotDTO{
		LockedReserveUnits: s.LockedReserveUnits.String(),
		SourceCount:        s.SourceCount,
		PendingCount:       s.PendingCount,
		AsOf:               s.AsOf,
		IntegrityStatus:    string(s.IntegrityStatus),
		Source:             s.Source,
		Warning:            s.Warning,
	}
}

func (s snapshotDTO) serialize() ([]byte, error) {
	return json.Marshal(s)
}

func (s *snapshotDTO) deserialize(buf []byte) (*domain.ReserveSnapshot, error) {
	if err := json.Unmarshal(buf, s); err != nil {
		return nil, err
	}
	locked, ok := new(big.Int).SetString(s.LockedReserveUnits, 10)
	if !ok {
		return nil, fmt.Errorf("malformed locked reserve amount %q", s.LockedReserveUnits)
	}
	return &domain.ReserveSnapshot{
		LockedReserveUnits: locked,
		SourceCount:        s.SourceCount,
		PendingCount:       s.PendingCount,
		AsOf:               s.AsOf,
		IntegrityStatus:    domain.IntegrityStatus(s.IntegrityStatus),
		Source:             s.Source,
		Warning:            s.Warning,
	}, nil
}
