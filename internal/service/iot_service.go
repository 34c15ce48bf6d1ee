package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"parking_garage/internal/domain"
	"parking_garage/internal/logger"
)

// MQTTPublisher is the part of the IoT data plane client used to command barriers.
type MQTTPublisher interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

// IoTService sends barrier commands to the gate controllers over MQTT.
type IoTService struct {
	publisher   MQTTPublisher
	topicPrefix string
	log         *logger.Logger
}

func NewIoTService(publisher MQTTPublisher, topicPrefix string) *IoTService {
	if topicPrefix == "" {
		topicPrefix = "parking_garage"
	}
	return &IoTService{
		publisher:   publisher,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		log:         logger.Named("iot"),
	}
}

// BarrierTopic is where the controller of one gate listens.
func (s *IoTService) BarrierTopic(garageID int, direction domain.GateDirection) string {
	return fmt.Sprintf("%s/%d/barriers/%s", s.topicPrefix, garageID, direction)
}

func (s *IoTService) OpenBarrier(ctx context.Context, garageID int, direction domain.GateDirection, reason string) error {
	_, err := s.SendBarrierCommand(ctx, garageID, direction, domain.BarrierCommandOpen, reason)
	return err
}

// SendBarrierCommand publishes command with QoS 1 and returns the request id
// the controller echoes back.
func (s *IoTService) SendBarrierCommand(ctx context.Context, garageID int, direction domain.GateDirection, command, reason string) (string, error) {
	if s.publisher == nil {
		return "", fmt.Errorf("IoTService: MQTT publisher not configured")
	}
	requestID := uuid.NewString()
	payload, err := json.Marshal(domain.BarrierControlCommandPayload{
		Command:   command,
		RequestID: requestID,
		GarageID:  garageID,
		Direction: direction,
		Reason:    reason,
	})
	if err != nil {
		return "", fmt.Errorf("IoTService: marshal barrier command: %w", err)
	}

	topic := s.BarrierTopic(garageID, direction)
	_, err = s.publisher.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(topic),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		return "", fmt.Errorf("IoTService: publish to %s: %w", topic, err)
	}
	s.log.Info("barrier command sent",
		zap.String("topic", topic), zap.String("command", command),
		zap.String("request_id", requestID), zap.String("reason", reason))
	return requestID, nil
}

// ControlBarrier handles a manual command from an operator.
func (s *IoTService) ControlBarrier(ctx context.Context, garageID int, dto domain.ControlBarrierDTO) (string, error) {
	return s.SendBarrierCommand(ctx, garageID, domain.GateDirection(dto.Direction), dto.Command, "manual")
}
