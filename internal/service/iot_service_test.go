package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_garage/internal/domain"
)

type fakePublisher struct {
	inputs []*iotdataplane.PublishInput
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, in *iotdataplane.PublishInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &iotdataplane.PublishOutput{}, nil
}

func TestIoTService_OpenBarrier(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewIoTService(pub, "garages/")

	require.NoError(t, svc.OpenBarrier(context.Background(), 7, domain.GateDirectionExit, "signed_out"))
	require.Len(t, pub.inputs, 1)
	in := pub.inputs[0]
	assert.Equal(t, "garages/7/barriers/exit", aws.ToString(in.Topic))
	assert.Equal(t, int32(1), in.Qos)

	var payload domain.BarrierControlCommandPayload
	require.NoError(t, json.Unmarshal(in.Payload, &payload))
	assert.Equal(t, domain.BarrierCommandOpen, payload.Command)
	assert.Equal(t, 7, payload.GarageID)
	assert.Equal(t, domain.GateDirectionExit, payload.Direction)
	assert.Equal(t, "signed_out", payload.Reason)
	assert.NotEmpty(t, payload.RequestID)
}

func TestIoTService_ControlBarrier(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewIoTService(pub, "")

	id, err := svc.ControlBarrier(context.Background(), 3, domain.ControlBarrierDTO{Direction: "entry", Command: "close"})
	require.NoError(t, err)

	var payload domain.BarrierControlCommandPayload
	require.NoError(t, json.Unmarshal(pub.inputs[0].Payload, &payload))
	assert.Equal(t, id, payload.RequestID)
	assert.Equal(t, domain.BarrierCommandClose, payload.Command)
	assert.Equal(t, "parking_garage/3/barriers/entry", aws.ToString(pub.inputs[0].Topic))

	pub.err = errors.New("offline")
	_, err = svc.ControlBarrier(context.Background(), 3, domain.ControlBarrierDTO{Direction: "entry", Command: "open"})
	assert.ErrorContains(t, err, "offline")

	assert.Error(t, NewIoTService(nil, "").OpenBarrier(context.Background(), 1, domain.GateDirectionEntry, "test"))
}
