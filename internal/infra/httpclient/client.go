package httpclient

import (
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// New returns a JSON REST client rooted at baseURL. Retries are left to callers.
func New(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(baseURL), "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "content-bot/1.0")
}
