package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Prober checks that the text service answers its model listing endpoint.
type Prober struct {
	http *resty.Client
}

func NewProber(baseURL, apiKey string, timeout time.Duration) *Prober {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &Prober{http: client}
}

func (p *Prober) Check(ctx context.Context) error {
	resp, err := p.http.R().SetContext(ctx).Get("/models")
	if err != nil {
		return fmt.Errorf("text service unreachable: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("text service returned status %d", resp.StatusCode())
	}
	return nil
}
