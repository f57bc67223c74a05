// Package cache keeps the last known tracking sample of each shipment in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/tracking"
)

const keyPrefix = "fleet:position:"

// Positions stores one sample per shipment with a TTL.
type Positions struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, addr, password string, db int, ttl time.Duration, log *logrus.Logger) (*Positions, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	log.WithField("addr", addr).Info("Connected to Redis")
	return New(client, ttl, log), nil
}

func New(client *redis.Client, ttl time.Duration, log *logrus.Logger) *Positions {
	return &Positions{client: client, ttl: ttl, log: log}
}

func (p *Positions) Close() error {
	return p.client.Close()
}

func key(shipmentRef string) string {
	return keyPrefix + shipmentRef
}

// Put stores s unless a newer sample is already cached.
func (p *Positions) Put(ctx context.Context, s tracking.Sample) error {
	prev, ok, err := p.Get(ctx, s.ShipmentID)
	if err != nil {
		return err
	}
	if ok && prev.Timestamp.After(s.Timestamp) {
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}
	if err := p.client.Set(ctx, key(s.ShipmentID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Get returns the cached sample for a shipment, if any.
func (p *Positions) Get(ctx context.Context, shipmentRef string) (tracking.Sample, bool, error) {
	raw, err := p.client.Get(ctx, key(shipmentRef)).Bytes()
	if errors.Is(err, redis.Nil) {
		return tracking.Sample{}, false, nil
	}
	if err != nil {
		return tracking.Sample{}, false, fmt.Errorf("%w: redis get: %v", apperrors.ErrUpstreamUnavailable, err)
	}

	var s tracking.Sample
	if err := json.Unmarshal(raw, &s); err != nil {
		p.log.WithError(err).WithField("shipment_id", shipmentRef).Warn("Dropping unreadable cached position")
		return tracking.Sample{}, false, nil
	}
	return s, true, nil
}

// Forget removes the cached sample of a shipment.
func (p *Positions) Forget(ctx context.Context, shipmentRef string) error {
	if err := p.client.Del(ctx, key(shipmentRef)).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	return nil
}
