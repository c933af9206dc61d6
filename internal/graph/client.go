// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package graph provides the outbound Microsoft Graph API client the action
// executor uses to mutate mailbox state (mark messages read). Tokens come
// from per-tenant OAuth2 clients refreshed out-of-band; a 401 surfaces as an
// action failure rather than a retry with stale credentials.
package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client performs mailbox mutations against the Graph API.
type Client struct {
	httpClients  map[string]*http.Client // keyed by tenant alias
	graphBaseURL string
}

// NewClient creates a Graph mailbox client. The per-tenant HTTP clients carry
// OAuth2 client-credentials transports.
func NewClient(httpClients map[string]*http.Client, graphBaseURL string) *Client {
	return &Client{
		httpClients:  httpClients,
		graphBaseURL: graphBaseURL,
	}
}

// MarkAsRead flags a message as read in the user's mailbox.
func (c *Client) MarkAsRead(ctx context.Context, tenantAlias, userID, messageID string) error {
	httpClient, ok := c.httpClients[tenantAlias]
	if !ok {
		return fmt.Errorf("no Graph client for tenant %q", tenantAlias)
	}

	url := fmt.Sprintf("%s/users/%s/messages/%s", c.graphBaseURL, userID, messageID)
	body := []byte(`{"isRead": true}`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		// Token refresh happens out-of-band — surface the failure instead
		// of retrying with the same credentials.
		return fmt.Errorf("graph API returned HTTP 401 for message %s", messageID)
	case resp.StatusCode == http.StatusNotFound:
		slog.Warn("message not found (may have been deleted)",
			"user_id", userID,
			"message_id", messageID,
		)
		return fmt.Errorf("message %s not found", messageID)
	default:
		respBody, _ := io.ReadAll(resp.Body)
		slog.Error("mark as read error", "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("graph API returned HTTP %d for message %s", resp.StatusCode, messageID)
	}
}
