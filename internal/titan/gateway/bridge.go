package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// maxBridgeBodyBytes bounds how much of a bridge response we ever read,
// matching the teacher's forward()'s drain-and-discard cap.
const maxBridgeBodyBytes = 1 << 20

// Bridge is the outbound HTTP client the gateway uses to talk to a
// channel's bridge process (the Discord/Slack/etc. collaborator the core
// itself never embeds a client for). Grounded on the teacher's
// webhook.Proxy.forward — explicit timeout, context-bound request,
// bounded response read, no retry.
type Bridge struct {
	BaseURL    string
	HTTPClient *http.Client
}

// BridgeURLEnv returns the environment variable name a channel's bridge
// URL is configured under, e.g. TITAN_DISCORD_BRIDGE_URL.
func BridgeURLEnv(channel string) string {
	return "TITAN_" + strings.ToUpper(channel) + "_BRIDGE_URL"
}

// NewBridge returns a Bridge for channel if its URL env var is set, and
// false otherwise — a channel with no configured bridge simply has no
// outbound path, which is not itself an error.
func NewBridge(channel string) (*Bridge, bool) {
	url := os.Getenv(BridgeURLEnv(channel))
	if url == "" {
		return nil, false
	}
	return &Bridge{
		BaseURL:    strings.TrimSuffix(url, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}, true
}

// Health calls GET {bridge}/health and returns an error unless the
// bridge responds 200.
func (b *Bridge) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("gateway: build bridge health request: %w", err)
	}
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: bridge health request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBridgeBodyBytes)) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway: bridge health returned status %d", resp.StatusCode)
	}
	return nil
}

type sendMessageBody struct {
	PeerID string `json:"peer_id"`
	Text   string `json:"text"`
}

// SendMessage posts {peer_id, text} to {bridge}/send so the bridge can
// deliver the gateway's reply back onto the channel.
func (b *Bridge) SendMessage(ctx context.Context, peerID, text string) error {
	payload, err := json.Marshal(sendMessageBody{PeerID: peerID, Text: text})
	if err != nil {
		return fmt.Errorf("gateway: encode bridge send body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: build bridge send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: bridge send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBridgeBodyBytes)) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway: bridge send returned status %d", resp.StatusCode)
	}
	return nil
}
