package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

type fakeProxy struct {
	calls int
}

func (f *fakeProxy) ProxyWithContext(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	f.calls++
	return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: req.RawPath}, nil
}

func TestColdStartBuildsOnce(t *testing.T) {
	fake := &fakeProxy{}
	builds := 0
	s := &coldStart{build: func() (proxy, error) {
		builds++
		return fake, nil
	}}

	for i := 0; i < 3; i++ {
		resp, err := s.handle(context.Background(), events.APIGatewayV2HTTPRequest{RawPath: "/api/v1/health"})
		if err != nil || resp.StatusCode != http.StatusOK || resp.Body != "/api/v1/health" {
			t.Fatalf("unexpected response %+v err=%v", resp, err)
		}
	}
	if builds != 1 || fake.calls != 3 {
		t.Fatalf("expected one build and three proxied calls, got builds=%d calls=%d", builds, fake.calls)
	}
}

func TestColdStartReportsBootstrapFailure(t *testing.T) {
	boom := errors.New("DATABASE_URL is required")
	s := &coldStart{build: func() (proxy, error) { return nil, boom }}

	resp, err := s.handle(context.Background(), events.APIGatewayV2HTTPRequest{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected bootstrap error, got %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil || body.Error.Code != "bootstrap_failed" {
		t.Fatalf("unexpected body %q (%v)", resp.Body, err)
	}
}
