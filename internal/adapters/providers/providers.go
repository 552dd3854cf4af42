// Package providers holds the POS vendor clients. Each client owns only
// protocol translation for its vendor and normalizes vendor responses into
// the domain error taxonomy.
package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// DefaultHTTPClient is shared by vendor clients that are not handed one.
// Per-call deadlines come from the dispatcher's context; this timeout is the
// hard backstop.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// classifyResponse maps an HTTP status to the shared error taxonomy so the
// dispatcher's retry policy stays vendor-agnostic.
func classifyResponse(vendor string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s status=%d", domain.ErrProviderUnauthorized, vendor, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s status=%d", domain.ErrProviderRateLimited, vendor, resp.StatusCode)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s status=%d body=%s", domain.ErrProviderUnreachable, vendor, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%w: %s status=%d body=%s", domain.ErrProviderRejected, vendor, resp.StatusCode, detail)
	}
}

// wrapTransportError converts client/network failures into the retryable
// unreachable class.
func wrapTransportError(vendor string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnreachable, vendor, err)
}

// verifyHMACSHA256 checks a hex-encoded HMAC-SHA256 signature over the raw
// body. Constant-time compare; pure function of its inputs.
func verifyHMACSHA256(rawPayload []byte, signature, sharedSecret string) bool {
	if signature == "" || sharedSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(sharedSecret))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(expected))
}
