package upstream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-relay/types"
	"github.com/saiset-co/sai-relay/utils"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 2
)

// HTTPCaller resolves logical endpoint names to HTTP targets. One
// circuit breaker per endpoint, so a failing target does not poison
// calls to the others.
type HTTPCaller struct {
	logger    types.Logger
	config    *types.UpstreamConfig
	client    *fasthttp.Client
	breakers  map[string]*CircuitBreaker
	breakerMu sync.Mutex
}

func NewHTTPCaller(logger types.Logger, config *types.UpstreamConfig) (*HTTPCaller, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrUpstreamCallerIsNil
	}

	timeout := config.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPCaller{
		logger: logger,
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		breakers: make(map[string]*CircuitBreaker),
	}, nil
}

func (c *HTTPCaller) Call(ctx context.Context, endpoint string, payload interface{}) (interface{}, error) {
	endpointConfig, exists := c.config.Endpoints[endpoint]
	if !exists {
		return nil, types.Errorf(types.ErrEndpointUnknown, "endpoint: %s", endpoint)
	}

	breaker := c.breakerFor(endpoint)
	if !breaker.CanExecute() {
		return nil, types.Errorf(types.ErrCircuitBreakerOpen, "endpoint: %s", endpoint)
	}

	body, statusCode, err := c.execute(ctx, endpoint, &endpointConfig, payload)

	if IsSuccessfulResponse(statusCode, err) {
		breaker.RecordSuccess()
		return decodeResponse(body)
	}

	if IsBreakerFailure(statusCode, err) {
		breaker.RecordFailure()
	}

	if err == nil {
		err = types.Errorf(types.ErrClientResponseInvalid, "HTTP %d from %s", statusCode, endpoint)
	}

	return nil, types.WrapError(err, "upstream call failed")
}

func (c *HTTPCaller) execute(ctx context.Context, endpoint string, endpointConfig *types.EndpointConfig, payload interface{}) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	method := endpointConfig.Method
	if method == "" {
		method = fasthttp.MethodPost
	}

	req.SetRequestURI(endpointConfig.URL)
	req.Header.SetMethod(strings.ToUpper(method))

	if payload != nil {
		jsonData, err := utils.Marshal(payload)
		if err != nil {
			return nil, 0, types.WrapError(err, "failed to marshal request payload")
		}
		req.SetBody(jsonData)
		req.Header.SetContentType("application/json")
	}

	timeout := endpointConfig.Timeout
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retries := endpointConfig.Retries
	if retries <= 0 {
		retries = c.config.DefaultRetries
	}
	if retries <= 0 {
		retries = defaultRetries
	}

	var lastErr error
	var statusCode int

	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, types.WrapError(err, "call abandoned")
		}

		err := c.client.DoTimeout(req, resp, timeout)
		statusCode = resp.StatusCode()

		if IsSuccessfulResponse(statusCode, err) {
			body := make([]byte, len(resp.Body()))
			copy(body, resp.Body())
			return body, statusCode, nil
		}

		lastErr = err
		if err == nil {
			lastErr = types.Errorf(types.ErrClientResponseInvalid, "HTTP %d", statusCode)
		}

		// Client errors other than 408/429 will not improve on retry.
		if err == nil && statusCode >= 400 && statusCode < 500 &&
			statusCode != 408 && statusCode != 429 {
			break
		}

		if attempt < retries {
			backoff := time.Duration(attempt+1) * time.Second

			select {
			case <-time.After(backoff):
				c.logger.Debug("Retrying upstream call",
					zap.String("endpoint", endpoint),
					zap.Duration("backoff", backoff),
					zap.Error(lastErr))
			case <-ctx.Done():
				return nil, 0, types.WrapError(ctx.Err(), "call abandoned during retry")
			}
		}
	}

	return nil, statusCode, types.Errorf(types.ErrClientRequestFailed,
		"all %d attempts failed for endpoint %s: %v", retries+1, endpoint, lastErr)
}

func (c *HTTPCaller) breakerFor(endpoint string) *CircuitBreaker {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()

	if breaker, exists := c.breakers[endpoint]; exists {
		return breaker
	}

	breaker := NewCircuitBreaker(c.config.CircuitBreaker, c.logger, endpoint)
	c.breakers[endpoint] = breaker
	return breaker
}

func decodeResponse(body []byte) (interface{}, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var decoded interface{}
	if err := utils.Unmarshal(body, &decoded); err != nil {
		// Non-JSON bodies are passed through as raw text.
		return string(body), nil
	}
	return decoded, nil
}
