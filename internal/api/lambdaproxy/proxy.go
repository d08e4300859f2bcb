// Package lambdaproxy runs an http.Handler behind API Gateway proxy
// integration, so the serverless function serves the same chi router as the
// standalone server. Event translation is done by aws-lambda-go-api-proxy;
// this package only fills in headers the gateway leaves out.
package lambdaproxy

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// Adapter wraps an httpadapter.HandlerAdapter.
type Adapter struct {
	proxy *httpadapter.HandlerAdapter

	// DefaultContentType is applied to requests that carry a body but no
	// Content-Type header.
	DefaultContentType string
}

// New wraps h.
func New(h http.Handler) *Adapter {
	return &Adapter{proxy: httpadapter.New(h)}
}

// Proxy is the Lambda handler function.
func (a *Adapter) Proxy(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ev = a.withDefaults(ev)
	return a.proxy.ProxyWithContext(ctx, ev)
}

// withDefaults returns ev with copied header maps, so the caller's event is
// never mutated.
func (a *Adapter) withDefaults(ev events.APIGatewayProxyRequest) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(ev.Headers)+2)
	for k, v := range ev.Headers {
		headers[k] = v
	}
	var multi map[string][]string
	if ev.MultiValueHeaders != nil {
		multi = make(map[string][]string, len(ev.MultiValueHeaders)+2)
		for k, vs := range ev.MultiValueHeaders {
			multi[k] = vs
		}
	}

	set := func(name, value string) {
		if hasHeader(headers, multi, name) {
			return
		}
		headers[name] = value
		if multi != nil {
			multi[name] = []string{value}
		}
	}

	if ev.Body != "" && a.DefaultContentType != "" {
		set("Content-Type", a.DefaultContentType)
	}
	if ev.RequestContext.RequestID != "" {
		set("X-Request-Id", ev.RequestContext.RequestID)
	}

	ev.Headers = headers
	ev.MultiValueHeaders = multi
	return ev
}

// hasHeader reports a non-empty value under name in either map. Gateway
// header casing is not canonical.
func hasHeader(headers map[string]string, multi map[string][]string, name string) bool {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(name) && v != "" {
			return true
		}
	}
	for k, vs := range multi {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(name) && len(vs) > 0 && vs[0] != "" {
			return true
		}
	}
	return false
}
