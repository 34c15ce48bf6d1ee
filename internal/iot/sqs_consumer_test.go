package iot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_garage/internal/config"
	"parking_garage/internal/metrics"
)

type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]types.Message
	err      error
	inputs   []*sqs.ReceiveMessageInput
	deleted  []string
	received int
}

func (q *fakeQueue) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inputs = append(q.inputs, in)
	q.received++
	if q.err != nil {
		return nil, q.err
	}
	if len(q.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (q *fakeQueue) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeHandler struct {
	fail     map[string]error
	bodies   []string
	deadline bool
}

func (h *fakeHandler) HandleDetectionMessage(ctx context.Context, body string) error {
	h.bodies = append(h.bodies, body)
	_, h.deadline = ctx.Deadline()
	return h.fail[body]
}

func message(id, body string) types.Message {
	return types.Message{MessageId: aws.String(id), ReceiptHandle: aws.String("rh-" + id), Body: aws.String(body)}
}

func testConfig() *config.Config {
	return &config.Config{
		SQSDetectionQueueURL:  "https://sqs.test/detections",
		SQSMaxMessages:        10,
		SQSWaitTimeSeconds:    20,
		SQSVisibilityTimeout:  30,
		SQSProcessingDeadline: time.Second,
	}
}

func TestPoll_DeletesOnlyHandledMessages(t *testing.T) {
	queue := &fakeQueue{batches: [][]types.Message{{
		message("1", `{"garage_id":1,"licence_plate":"AB12CD"}`),
		message("2", "broken"),
		{MessageId: aws.String("3"), ReceiptHandle: aws.String("rh-3")},
	}}}
	handler := &fakeHandler{fail: map[string]error{"broken": errors.New("database down")}}
	consumer := NewSQSConsumer(queue, testConfig(), handler, metrics.NewUnregistered())

	require.True(t, consumer.Poll(context.Background()))
	assert.Equal(t, []string{"rh-1", "rh-3"}, queue.deleted)
	assert.Len(t, handler.bodies, 2)
	assert.True(t, handler.deadline)

	in := queue.inputs[0]
	assert.Equal(t, "https://sqs.test/detections", aws.ToString(in.QueueUrl))
	assert.Equal(t, int32(10), in.MaxNumberOfMessages)
	assert.Equal(t, int32(20), in.WaitTimeSeconds)
	assert.Equal(t, int32(30), in.VisibilityTimeout)
}

func TestPoll_ReceiveError(t *testing.T) {
	queue := &fakeQueue{err: errors.New("throttled")}
	consumer := NewSQSConsumer(queue, testConfig(), &fakeHandler{}, nil)
	assert.False(t, consumer.Poll(context.Background()))
	assert.Empty(t, queue.deleted)
}

func TestStart_StopsOnCancel(t *testing.T) {
	queue := &fakeQueue{err: errors.New("throttled")}
	consumer := NewSQSConsumer(queue, testConfig(), &fakeHandler{}, nil)
	consumer.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return queue.received >= 2
	}, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
