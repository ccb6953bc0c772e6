package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"downloadrelay/handler"
	"downloadrelay/observability"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
)

// ErrResponseTooLarge is returned when a payload exceeds the configured
// Lambda response limit.
var ErrResponseTooLarge = errors.New("response exceeds lambda payload limit")

// LambdaAdapter adapts the handler to AWS Lambda behind API Gateway REST
// (v1) or HTTP API (v2) proxy integrations. Lambda cannot stream, so
// response bodies are buffered and returned base64-encoded.
type LambdaAdapter struct {
	handler *handler.Handler
	config  *LambdaConfig
	logger  observability.Logger
}

// LambdaConfig contains Lambda-specific configuration
type LambdaConfig struct {
	// MaxResponseBytes caps the buffered body. Zero means unlimited.
	MaxResponseBytes int64
}

// NewLambdaAdapter creates a new Lambda adapter
func NewLambdaAdapter(h *handler.Handler, config *LambdaConfig) *LambdaAdapter {
	if config == nil {
		config = DefaultLambdaConfig()
	}
	return &LambdaAdapter{
		handler: h,
		config:  config,
		logger:  h.Observability().Logger("lambda"),
	}
}

// DefaultLambdaConfig returns default Lambda configuration
func DefaultLambdaConfig() *LambdaConfig {
	return &LambdaConfig{}
}

// Start begins the Lambda runtime handler
func (a *LambdaAdapter) Start() {
	lambda.Start(a.HandleEvent)
}

// HandleEvent routes a raw invocation to the matching API Gateway handler.
func (a *LambdaAdapter) HandleEvent(ctx context.Context, event json.RawMessage) (interface{}, error) {
	var shape struct {
		Version        string `json:"version"`
		RequestContext struct {
			HTTP struct {
				Method string `json:"method"`
			} `json:"http"`
		} `json:"requestContext"`
	}
	if err := json.Unmarshal(event, &shape); err != nil {
		return nil, fmt.Errorf("unsupported event type: %w", err)
	}

	if shape.Version == "2.0" || shape.RequestContext.HTTP.Method != "" {
		var req events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(event, &req); err != nil {
			return nil, fmt.Errorf("decode http api event: %w", err)
		}
		return a.HandleHTTPAPI(ctx, req)
	}

	var req events.APIGatewayProxyRequest
	if err := json.Unmarshal(event, &req); err != nil {
		return nil, fmt.Errorf("decode api gateway event: %w", err)
	}
	return a.HandleAPIGateway(ctx, req)
}

// HandleAPIGateway handles a REST API (payload v1) proxy event.
func (a *LambdaAdapter) HandleAPIGateway(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req := a.buildRequest(event.RequestContext.RequestID, event.HTTPMethod, event.Path, event.QueryStringParameters, event.Headers)
	req.Metadata["api_stage"] = event.RequestContext.Stage
	req.Metadata["source_ip"] = event.RequestContext.Identity.SourceIP

	out := a.process(ctx, req)

	return events.APIGatewayProxyResponse{
		StatusCode:      out.statusCode,
		Headers:         out.headers,
		Body:            out.body,
		IsBase64Encoded: out.isBase64,
	}, nil
}

// HandleHTTPAPI handles an HTTP API (payload v2) proxy event.
func (a *LambdaAdapter) HandleHTTPAPI(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	req := a.buildRequest(event.RequestContext.RequestID, event.RequestContext.HTTP.Method, event.RawPath, event.QueryStringParameters, event.Headers)
	req.Metadata["api_stage"] = event.RequestContext.Stage
	req.Metadata["source_ip"] = event.RequestContext.HTTP.SourceIP

	out := a.process(ctx, req)

	return events.APIGatewayV2HTTPResponse{
		StatusCode:      out.statusCode,
		Headers:         out.headers,
		Body:            out.body,
		IsBase64Encoded: out.isBase64,
	}, nil
}

func (a *LambdaAdapter) buildRequest(gatewayID, method, path string, query, headers map[string]string) handler.Request {
	canonical := make(map[string]string, len(headers))
	for key, value := range headers {
		canonical[http.CanonicalHeaderKey(key)] = value
	}
	if query == nil {
		query = make(map[string]string)
	}

	requestID := extractRequestID(http.Header{
		"X-Request-Id":     {canonical["X-Request-Id"]},
		"X-Correlation-Id": {canonical["X-Correlation-Id"]},
	})
	if requestID == "" {
		requestID = gatewayID
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	metadata := map[string]string{"gateway_request_id": gatewayID}
	if traceID := canonical["X-Amzn-Trace-Id"]; traceID != "" {
		metadata["trace_id"] = traceID
	}

	return handler.Request{
		ID:        requestID,
		Source:    handler.PlatformLambda,
		Method:    method,
		Path:      path,
		Query:     query,
		Headers:   canonical,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

type lambdaReply struct {
	statusCode int
	headers    map[string]string
	body       string
	isBase64   bool
}

// process runs the handler and buffers its response into a gateway reply.
func (a *LambdaAdapter) process(ctx context.Context, req handler.Request) lambdaReply {
	resp, err := a.handler.Handle(ctx, req)
	if err != nil && resp.StatusCode == 0 {
		resp = a.handler.ErrorResponse(req.ID, err)
	}

	payload, err := a.readBody(resp)
	if err != nil {
		a.logger.Error(ctx, "Failed to buffer response body", err, observability.Fields{
			"request_id": req.ID,
			"limit":      a.config.MaxResponseBytes,
		})
		resp = a.handler.ErrorResponse(req.ID, err)
		if payload, err = a.readBody(resp); err != nil {
			payload = nil
		}
	}

	headers := make(map[string]string, len(resp.Headers)+1)
	for key, value := range resp.Headers {
		headers[key] = value
	}
	headers["X-Request-Id"] = req.ID

	reply := lambdaReply{statusCode: resp.StatusCode, headers: headers}
	if isTextual(headers["Content-Type"]) {
		reply.body = string(payload)
	} else if len(payload) > 0 {
		reply.body = base64.StdEncoding.EncodeToString(payload)
		reply.isBase64 = true
	}

	return reply
}

func (a *LambdaAdapter) readBody(resp handler.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	defer func() { _ = resp.CloseBody() }()

	limit := a.config.MaxResponseBytes
	if limit <= 0 {
		return io.ReadAll(resp.Body)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return payload, nil
}

// isTextual reports whether a body can be returned without base64 encoding.
func isTextual(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "application/json")
}
