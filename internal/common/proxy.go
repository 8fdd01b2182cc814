package common

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	OK                     int = 200
	BAD_REQUEST            int = 400
	UNAUTHORIZED           int = 401
	FORBIDDEN              int = 403
	DATA_NOT_FOUND         int = 404
	METHOD_NOT_ALLOWED     int = 405
	UNSUPPORTED_MEDIA_TYPE int = 415
	RATE_LIMIT_EXCEEDED    int = 429
	INTERNAL_SERVER_ERROR  int = 500
	BAD_GATEWAY            int = 502
	SERVICE_UNAVAILABLE    int = 503
	GATEWAY_TIMEOUT        int = 504
)

var messages = map[int]string{
	OK:                     "OK",
	BAD_REQUEST:            "Bad request",
	UNAUTHORIZED:           "Unauthorized",
	FORBIDDEN:              "Forbidden",
	DATA_NOT_FOUND:         "Data not found",
	METHOD_NOT_ALLOWED:     "Method not allowed",
	UNSUPPORTED_MEDIA_TYPE: "Unsupported media type",
	RATE_LIMIT_EXCEEDED:    "Rate limit exceeded",
	INTERNAL_SERVER_ERROR:  "Internal server error",
	BAD_GATEWAY:            "Bad gateway",
	SERVICE_UNAVAILABLE:    "Service unavailable",
	GATEWAY_TIMEOUT:        "Gateway timeout",
}

// Cooldown applied after a 429 without a usable Retry-After header
const defaultRetryAfter = 30 * time.Second

// Largest response body the proxy accepts
const maxBodySize = 8 << 20

// StatusError is returned when the remote end answers with anything but 200
type StatusError struct {
	Url  string
	Code int
}

func (e *StatusError) Error() string {
	message, ok := messages[e.Code]
	if !ok {
		message = "Status not understood"
	}
	return fmt.Sprintf("request to %s failed: %d %s", e.Url, e.Code, message)
}

type Proxy struct {
	header      map[string]string
	client      *http.Client
	rateLimiter *RateLimiter
}

func NewProxy(header map[string]string, restrictions []Restriction, timeout time.Duration) *Proxy {
	return &Proxy{header, &http.Client{Timeout: timeout}, NewRateLimiter(restrictions, nil)}
}

// Make a GET request to the provided url and return the body.
// The request waits for the rate limiter before going out
func (proxy *Proxy) Request(ctx context.Context, url string, query map[string]string) ([]byte, error) {

	// ask for permission to execute the request
	// and wait if necessary
	if err := proxy.rateLimiter.Wait(ctx); err != nil {
		log.Warn().Msg("Rate limiter is not allowing the request")
		return nil, err
	}

	// Create the request and add the header
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Error().Msg(fmt.Sprintf("Could not create request for url %s", url))
		return nil, err
	}
	for key, value := range proxy.header {
		request.Header.Set(key, value)
	}
	if len(query) > 0 {
		values := request.URL.Query()
		for key, value := range query {
			values.Set(key, value)
		}
		request.URL.RawQuery = values.Encode()
	}

	// Perform the request
	res, err := proxy.client.Do(request)
	if err != nil {
		log.Error().Err(err).Msg("Could not perform request")
		return nil, err
	}
	defer res.Body.Close()

	log.Debug().Msg(fmt.Sprintf("%d %s", res.StatusCode, messages[res.StatusCode]))

	switch res.StatusCode {
	case OK:
		// Read the response
		stream, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
		if err != nil {
			log.Debug().Msg(fmt.Sprintf("Could not extract the response for url %s", url))
			return nil, err
		}
		return stream, nil
	case RATE_LIMIT_EXCEEDED:
		proxy.rateLimiter.ReceivedRateLimit(RetryAfter(res.Header.Get("Retry-After")))
		return nil, &StatusError{url, res.StatusCode}
	default:
		return nil, &StatusError{url, res.StatusCode}
	}
}

// RetryAfter reads a Retry-After header given in seconds
func RetryAfter(header string) time.Duration {
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultRetryAfter
}
