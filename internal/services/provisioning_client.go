package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProvisioningClient calls a remote create-user endpoint.
type ProvisioningClient struct {
	endpoint string
	client   *http.Client
}

func NewProvisioningClient(endpoint string, timeout time.Duration) *ProvisioningClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProvisioningClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *ProvisioningClient) ProvisionUser(ctx context.Context, accessToken, name string) error {
	var body io.Reader
	if name != "" {
		payload, err := json.Marshal(map[string]string{"name": name})
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return fmt.Errorf("build provisioning request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call provisioning endpoint: %w", err)
	}
	defer resp.Body.Close()

	var reply struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply); err != nil {
		return fmt.Errorf("provisioning endpoint returned %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !reply.Success {
		if reply.Error == "" {
			reply.Error = http.StatusText(resp.StatusCode)
		}
		return errors.New(reply.Error)
	}
	return nil
}
