package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSMSClient posts messages to a JSON SMS gateway.
type HTTPSMSClient struct {
	baseURL     string
	apiKey      string
	senderID    string
	countryCode string
	httpClient  *http.Client
}

func NewHTTPSMSClient(baseURL, apiKey, senderID, countryCode string) *HTTPSMSClient {
	return &HTTPSMSClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		senderID:    senderID,
		countryCode: countryCode,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPSMSClient) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.httpClient = hc
	}
}

func (c *HTTPSMSClient) Send(ctx context.Context, sms SMS) error {
	if strings.TrimSpace(c.baseURL) == "" {
		return errors.New("sms gateway baseURL is required")
	}
	to := c.e164(sms.To)
	if to == "" {
		return errors.New("sms recipient is required")
	}

	payload := map[string]string{
		"to":      to,
		"from":    c.senderID,
		"message": sms.Body,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway send failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// e164 prefixes numbers stored without a country code.
func (c *HTTPSMSClient) e164(mobile string) string {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" || strings.HasPrefix(mobile, "+") || c.countryCode == "" {
		return mobile
	}
	return c.countryCode + mobile
}
