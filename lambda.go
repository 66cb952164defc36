// lambda.go
package routepay

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"sync"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/routepay/routepay/pkg/config"
	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/webhook"
)

var (
	// Global engine reused across warm invocations.
	globalLambdaEngine *Engine
	lambdaOnce         sync.Once
)

// signatureHeaders are tried in order when locating the webhook signature.
var signatureHeaders = []string{"X-Signature", "X-Webhook-Signature", "X-Hub-Signature-256"}

// LambdaEngine wraps Engine for webhook receipt behind API Gateway. The
// heavy wiring runs once per container; warm starts reuse it.
type LambdaEngine struct {
	*Engine
	isLambda       bool
	lambdaMemoryMB int
}

// NewLambda creates (or on a warm start, reuses) a Lambda-hosted engine.
// The build function runs once per container and supplies the engine's
// configuration and options, typically from environment variables.
func NewLambda(build func() (*config.Config, []Option, error)) (*LambdaEngine, error) {
	var err error
	lambdaOnce.Do(func() {
		var cfg *config.Config
		var opts []Option
		cfg, opts, err = build()
		if err != nil {
			return
		}
		globalLambdaEngine, err = New(cfg, opts...)
		if err != nil {
			return
		}
		globalLambdaEngine.Start(context.Background())
	})
	if err != nil {
		return nil, err
	}
	return &LambdaEngine{
		Engine:         globalLambdaEngine,
		isLambda:       IsLambdaEnvironment(),
		lambdaMemoryMB: GetLambdaMemoryMB(),
	}, nil
}

// HandleWebhook is an API Gateway proxy handler for gateway callbacks. The
// route is expected to carry tenant and gateway path parameters:
//
//	POST /webhooks/{tenant}/{gateway}
//
// Verification failures return 401 so the gateway operator sees the
// misconfiguration; validation failures return 400; accepted deliveries
// return 202 immediately while processing continues on the workers.
func (le *LambdaEngine) HandleWebhook(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (lambdaevents.APIGatewayProxyResponse, error) {
	receipt := webhook.Receipt{
		TenantID:  req.PathParameters["tenant"],
		Gateway:   req.PathParameters["gateway"],
		Headers:   req.Headers,
		Payload:   []byte(req.Body),
		Signature: signatureFrom(req.Headers),
	}

	result, err := le.ReceiveWebhook(ctx, receipt)
	status := http.StatusAccepted
	switch {
	case err == nil:
	case errors.IsSignatureInvalid(err):
		status = http.StatusUnauthorized
	case errors.IsValidation(err), errors.IsNotFound(err):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}

	body, _ := json.Marshal(result)
	return lambdaevents.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}, nil
}

func signatureFrom(headers map[string]string) string {
	for _, name := range signatureHeaders {
		for k, v := range headers {
			if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(name) {
				return v
			}
		}
	}
	return ""
}

// IsLambdaEnvironment reports whether the process runs inside AWS Lambda.
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// GetLambdaMemoryMB returns the configured Lambda memory size.
func GetLambdaMemoryMB() int {
	if v := os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil {
			return mb
		}
	}
	return 128
}
