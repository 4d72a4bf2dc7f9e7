package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/outreach-console/pkg/logging"
)

// forwardedPaths are the Twilio callbacks relayed to the API.
var forwardedPaths = map[string]struct{}{
	"/phone-call/twiml":        {},
	"/phone-call/handle-input": {},
	"/phone-call/webhook":      {},
}

type config struct {
	apiBaseURL string
	timeout    time.Duration
}

func loadConfig() (config, error) {
	baseURL := strings.TrimSpace(os.Getenv("API_BASE_URL"))
	if baseURL == "" {
		return config{}, errors.New("API_BASE_URL is required")
	}

	timeout := 5 * time.Second
	if raw := strings.TrimSpace(os.Getenv("API_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return config{}, fmt.Errorf("invalid API_TIMEOUT: %w", err)
		}
		timeout = parsed
	}

	return config{
		apiBaseURL: strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
	}, nil
}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rl := &relay{cfg: cfg, client: &http.Client{Timeout: cfg.timeout}, logger: logger}
	lambda.Start(rl.handle)
}

// relay forwards Twilio call webhooks from API Gateway to the console API
// so the API itself can stay private.
type relay struct {
	cfg    config
	client *http.Client
	logger *logging.Logger
}

func (rl *relay) handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if _, ok := forwardedPaths[path]; !ok {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}
	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	target := rl.cfg.apiBaseURL + path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}

	reqCtx, cancel := context.WithTimeout(ctx, rl.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	if ct := headerValue(evt.Headers, "content-type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	// The API validates the signature against its public webhook base.
	if sig := strings.TrimSpace(headerValue(evt.Headers, "x-twilio-signature")); sig != "" {
		req.Header.Set("X-Twilio-Signature", sig)
	}

	resp, err := rl.client.Do(req)
	if err != nil {
		rl.logger.Warn("webhook relay failed", "path", path, "error", err)
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadGateway, Body: "upstream error"}, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		Headers:    map[string]string{},
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		out.Headers["content-type"] = ct
	}
	return out, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
