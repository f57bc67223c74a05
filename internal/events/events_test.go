package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/logger"
)

func TestAudienceIncludes(t *testing.T) {
	assert.True(t, Audience{}.Includes("customer", 3))

	admins := Audience{Roles: []string{"admin"}, UserIDs: []uint{9}}
	assert.True(t, admins.Includes("admin", 1))
	assert.True(t, admins.Includes("customer", 9))
	assert.False(t, admins.Includes("customer", 3))
	assert.False(t, admins.Includes("driver", 0))
}

func TestKafkaPublisherSendsEnvelope(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	ev := New(TypeShipmentStatusUpdated, "SHP004", StatusChanged{
		ShipmentID:  4,
		ReferenceID: "SHP004",
		Status:      "IN_TRANSIT",
	})

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "SHP004" {
			return errors.New("unexpected key " + string(key))
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got struct {
			Type string        `json:"type"`
			Data StatusChanged `json:"data"`
		}
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got.Type != string(TypeShipmentStatusUpdated) || got.Data.Status != "IN_TRANSIT" {
			return errors.New("unexpected payload " + string(raw))
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "fleet-events", logger.Discard())
	require.NoError(t, pub.Publish(context.Background(), ev))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherFailureIsUpstream(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, "fleet-events", logger.Discard())
	err := pub.Publish(context.Background(), New(TypeRequestCreated, "REQ0001", nil))
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	require.NoError(t, pub.Close())
}

type recordingSink struct {
	got []Event
	err error
}

func (r *recordingSink) Publish(_ context.Context, ev Event) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestFanoutContinuesPastFailingSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}
	f := NewFanout(logger.Discard(), failing, ok)

	err := f.Publish(context.Background(), New(TypeRequestUpdated, "REQ0002", nil))
	assert.Error(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

func TestNewAtStampsGivenTime(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2026, 3, 14, 15, 0, 0, 0, ist)

	ev := NewAt(TypeShipmentStatusUpdated, "SHP001", nil, at)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
	assert.True(t, at.Equal(ev.Timestamp))
	assert.NotEqual(t, New(TypeShipmentStatusUpdated, "SHP001", nil).ID, ev.ID)
}
