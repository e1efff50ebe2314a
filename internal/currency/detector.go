package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/htkfoods/storefront/internal/config"
)

type Detector struct {
	url      string
	fallback string
	timeout  time.Duration
	client   *http.Client
}

func NewDetector(cfg *config.Currency, client *http.Client) *Detector {
	if client == nil {
		client = http.DefaultClient
	}

	fallback := cfg.Default
	if !IsSupported(fallback) {
		fallback = Base
	}

	return &Detector{
		url:      cfg.DetectURL,
		fallback: strings.ToUpper(fallback),
		timeout:  cfg.DetectTimeout,
		client:   client,
	}
}

type geoResponse struct {
	Currency string `json:"currency"`
	Error    bool   `json:"error"`
}

// Detect guesses the shopper's currency from their IP. It never fails: any
// lookup problem yields the configured default.
func (d *Detector) Detect(ctx context.Context, ip string) string {
	if d.url == "" {
		return d.fallback
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return d.fallback
	}

	code, err := d.lookup(ctx, parsed.String())
	if err != nil {
		slog.Debug("Currency detection fell back to default",
			slog.String("ip", ip),
			slog.String("error", err.Error()),
		)
		return d.fallback
	}

	return code
}

func (d *Detector) lookup(ctx context.Context, ip string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	url := strings.ReplaceAll(d.url, "{ip}", ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var geo geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}

	if geo.Error {
		return "", fmt.Errorf("lookup rejected for %s", ip)
	}

	c, ok := Lookup(geo.Currency)
	if !ok {
		return "", fmt.Errorf("unsupported currency %q", geo.Currency)
	}

	return c.Code, nil
}
