package managedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/parlorchat/parlor"
)

// Classify maps a provider failure to an actionable user-facing message.
// Credentials and raw provider payloads never reach the channel; callers log
// the underlying error server-side.
func Classify(err error, botName string) string {
	var httpErr *parlor.ErrHTTP
	if errors.As(err, &httpErr) {
		body := strings.ToLower(httpErr.Body)
		switch {
		case httpErr.Status == 401 || httpErr.Status == 403 || strings.Contains(body, "unauthorized"):
			return fmt.Sprintf("%s's API key was rejected by the provider. Ask the guild owner to check it.", botName)
		case httpErr.Status == 429 || strings.Contains(body, "rate limit"):
			return fmt.Sprintf("%s is being rate-limited by its provider. Try again in a moment.", botName)
		case strings.Contains(body, "quota") || strings.Contains(body, "insufficient"):
			return fmt.Sprintf("%s has run out of provider quota. Ask the guild owner to top up the account.", botName)
		case httpErr.Status == 400:
			if msg := providerMessage(httpErr.Body); msg != "" {
				return fmt.Sprintf("%s's provider rejected the request: %s", botName, msg)
			}
			return fmt.Sprintf("%s's provider rejected the request.", botName)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s's provider took too long to respond. Try again.", botName)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("%s's provider took too long to respond. Try again.", botName)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || strings.Contains(err.Error(), "connection refused") {
		return fmt.Sprintf("%s can't reach its provider right now. Try again later.", botName)
	}

	return fmt.Sprintf("%s is temporarily unavailable. Please try again later.", botName)
}

// providerMessage extracts the human-readable error message some providers
// embed in a 400 body, truncated for the channel.
func providerMessage(body string) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return ""
	}
	msg := strings.TrimSpace(envelope.Error.Message)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
