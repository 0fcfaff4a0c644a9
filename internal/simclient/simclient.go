// Package simclient is the one-method HTTP client of §4.2: it POSTs
// outbound messages to the Sim's injection endpoint, authenticating with the
// shared bridge_secret. Timeout convention grounded on
// duo-matrix-wechat/internal/wechat/client.go's per-call
// context.WithTimeout(context.Background(), …) idiom.
package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mteedev/lighthouse-bridge/internal/berr"
)

const requestTimeout = 10 * time.Second

type Client struct {
	RegionURL    string
	BridgeSecret string

	HTTPClient *http.Client
}

func New(regionURL, bridgeSecret string) *Client {
	return &Client{
		RegionURL:    regionURL,
		BridgeSecret: bridgeSecret,
		HTTPClient:   &http.Client{Timeout: requestTimeout},
	}
}

type injectRequest struct {
	GroupUUID string `json:"group_uuid"`
	FromName  string `json:"from_name"`
	Message   string `json:"message"`
}

// Inject POSTs one chat message to <region_url>/matrix/group-message (§4.2,
// §6). No retries: Non-goals exclude delivery guarantees beyond this one
// HTTP call.
func (c *Client) Inject(ctx context.Context, groupID, fromName, message string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(injectRequest{GroupUUID: groupID, FromName: fromName, Message: message})
	if err != nil {
		return berr.SimAPIf(err, "encoding inject request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RegionURL+"/matrix/group-message", bytes.NewReader(body))
	if err != nil {
		return berr.SimAPIf(err, "building inject request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bridge-Secret", c.BridgeSecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return berr.SimAPIf(err, "calling sim inject endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return berr.SimAPIf(nil, "sim inject endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
