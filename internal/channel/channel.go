// Package channel delivers plain-text alerts to the administrator through an
// external messaging provider.
package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/observability"
)

// Channel sends one message and returns the provider's message id.
type Channel interface {
	Name() string
	Send(ctx context.Context, to, body string) (messageID string, err error)
}

// isSystemErr treats 5xx, 429 and timeouts as provider trouble worth a
// Sentry event. Validation-type 4xx answers are the caller's problem.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	if strings.Contains(s, "Bad Request") ||
		strings.Contains(s, "chat not found") ||
		strings.Contains(s, "http 400") ||
		strings.Contains(s, "http 401") {
		return false
	}
	return strings.Contains(s, "429") ||
		strings.Contains(s, "http 5") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "deadline exceeded")
}

func deliveryErr(provider string, err error) error {
	if isSystemErr(err) {
		observability.CaptureWith(err, map[string]string{"channel": provider})
	}
	return fmt.Errorf("%s: %w: %w", provider, apperr.ErrChannelDelivery, err)
}
