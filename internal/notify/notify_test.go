package notify

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func decodeMessage(payload []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(payload, &msg)
	return msg, err
}

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		AnalysisID:   "analysis-123",
		AnalysisType: "coding-review",
		TenantID:     "tenant-1",
		Status:       "completed",
		RequestID:    "request-456",
		CompletedAt:  "2026-01-30T22:00:00Z",
		Version:      1,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := decodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestEncodeMessageStampsVersion(t *testing.T) {
	payload, err := EncodeMessage(Message{AnalysisID: "a"})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	got, _ := decodeMessage(payload)
	if got.Version != messageVersion {
		t.Fatalf("expected version %d, got %d", messageVersion, got.Version)
	}
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSNotifierSend(t *testing.T) {
	fake := &fakeSQS{}
	n := &SQSNotifier{client: fake, queueURL: "https://sqs.local/results"}

	if err := n.Send(context.Background(), Message{AnalysisID: "a-1", AnalysisType: "qa-review"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected one send, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if aws.ToString(in.QueueUrl) != "https://sqs.local/results" {
		t.Fatalf("unexpected queue url %q", aws.ToString(in.QueueUrl))
	}
	msg, err := decodeMessage([]byte(aws.ToString(in.MessageBody)))
	if err != nil || msg.AnalysisID != "a-1" {
		t.Fatalf("unexpected body %q err=%v", aws.ToString(in.MessageBody), err)
	}
	if aws.ToString(in.MessageAttributes["analysisType"].StringValue) != "qa-review" {
		t.Fatalf("missing analysisType attribute")
	}
}

func TestSQSNotifierWrapsErrors(t *testing.T) {
	boom := errors.New("throttled")
	n := &SQSNotifier{client: &fakeSQS{err: boom}, queueURL: "q"}
	if err := n.Send(context.Background(), Message{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewSQSNotifierRequiresURL(t *testing.T) {
	if _, err := NewSQSNotifier(context.Background(), " ", "us-east-1"); err == nil {
		t.Fatalf("expected error for missing queue url")
	}
}
