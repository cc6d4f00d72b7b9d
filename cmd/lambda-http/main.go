package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"clinical-review-backend/internal/bootstrap"
	"clinical-review-backend/internal/shared/config"
	"clinical-review-backend/internal/shared/telemetry"
)

type proxy interface {
	ProxyWithContext(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)
}

// coldStart builds the router on the first invocation and reuses it for the life of the
// execution environment. A failed build is remembered; Lambda recycles the environment.
type coldStart struct {
	build func() (proxy, error)

	once  sync.Once
	proxy proxy
	err   error
}

func (s *coldStart) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	s.once.Do(func() {
		s.proxy, s.err = s.build()
		if s.err != nil {
			telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": s.err.Error()})
		}
	})
	if s.err != nil {
		return errorResponse(http.StatusServiceUnavailable, "bootstrap_failed", "service is starting up or misconfigured"), s.err
	}
	return s.proxy.ProxyWithContext(ctx, req)
}

func buildProxy() (proxy, error) {
	app, err := bootstrap.Build(config.Load())
	if err != nil {
		return nil, err
	}
	return ginadapter.NewV2(app.Router), nil
}

// errorResponse mirrors the HTTP API error envelope for failures outside the router.
func errorResponse(status int, code, message string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(map[string]any{"error": map[string]string{"code": code, "message": message}})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func main() {
	lambda.Start((&coldStart{build: buildProxy}).handle)
}
