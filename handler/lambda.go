package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"health-agent/internal/usecase"
)

// Handle serves an API Gateway proxy event through the HTTP router. It only
// returns an error for events that cannot be turned into a request at all.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := requestFromEvent(ctx, event)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid proxy event", "path", event.Path, "err", err)
		rec := newProxyResponseWriter()
		correlationID(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_event"})
		})).ServeHTTP(rec, headerOnlyRequest(ctx, event))
		return rec.response(), nil
	}

	rec := newProxyResponseWriter()
	h.ServeHTTP(rec, req)
	return rec.response(), nil
}

func requestFromEvent(ctx context.Context, event events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, err
		}
		body = decoded
	}

	u := url.URL{Path: event.Path, RawQuery: queryString(event)}
	if u.Path == "" {
		u.Path = "/"
	}
	method := event.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = eventHeaders(event)
	req.RemoteAddr = event.RequestContext.Identity.SourceIP
	return req, nil
}

func headerOnlyRequest(ctx context.Context, event events.APIGatewayProxyRequest) *http.Request {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "/", http.NoBody)
	req.Header = eventHeaders(event)
	return req
}

// eventHeaders canonicalizes header names, so lookups are case-insensitive.
func eventHeaders(event events.APIGatewayProxyRequest) http.Header {
	h := make(http.Header, len(event.Headers))
	for k, values := range event.MultiValueHeaders {
		for _, v := range values {
			h.Add(k, v)
		}
	}
	for k, v := range event.Headers {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
	return h
}

func queryString(event events.APIGatewayProxyRequest) string {
	q := url.Values{}
	for k, values := range event.MultiValueQueryStringParameters {
		for _, v := range values {
			q.Add(k, v)
		}
	}
	for k, v := range event.QueryStringParameters {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	return q.Encode()
}

// proxyResponseWriter buffers a response for conversion into a proxy
// response.
type proxyResponseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newProxyResponseWriter() *proxyResponseWriter {
	return &proxyResponseWriter{header: make(http.Header)}
}

func (w *proxyResponseWriter) Header() http.Header {
	return w.header
}

func (w *proxyResponseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *proxyResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *proxyResponseWriter) response() events.APIGatewayProxyResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(w.header))
	for k, values := range w.header {
		headers[k] = strings.Join(values, ",")
	}
	return events.APIGatewayProxyResponse{
		StatusCode:        status,
		Headers:           headers,
		MultiValueHeaders: w.header,
		Body:              w.body.String(),
	}
}
