package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*HTTPMailer)(nil)

// HTTPMailer delivers entitlement emails through a transactional mail API.
// Delivery is best-effort by contract: callers log failures and move on.
type HTTPMailer struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func NewHTTPMailer(endpoint, apiKey, from string) *HTTPMailer {
	return &HTTPMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (m *HTTPMailer) SendEntitlement(ctx context.Context, to *model.User, res *model.Resource, licenseKey, downloadURL string, expires time.Time) error {
	body := sendRequest{
		From:    m.from,
		To:      to.Email,
		Subject: fmt.Sprintf("Your purchase: %s", res.Title),
		HTML: fmt.Sprintf(
			`<p>Hi %s,</p>
<p>Thanks for your purchase of <strong>%s</strong>.</p>
<p>License key: <code>%s</code></p>
<p><a href="%s">Download your files</a> (link valid until %s).</p>`,
			to.Name, res.Title, licenseKey, downloadURL, expires.Format("2 Jan 2006 15:04 MST")),
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail api returned http %d", resp.StatusCode)
	}
	return nil
}
