package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PaylinkGateway)(nil)

const (
	paylinkLiveURL = "https://restapi.paylink.sa"
	paylinkTestURL = "https://restpilot.paylink.sa"
)

// PaylinkGateway implements the gateway port against Paylink's hosted
// invoice API using direct HTTP calls. Credentials arrive per call from the
// settings store, so key rotation needs no restart.
type PaylinkGateway struct {
	client *http.Client
}

func NewPaylinkGateway(client *http.Client) *PaylinkGateway {
	if client == nil {
		client = &http.Client{}
	}
	return &PaylinkGateway{client: client}
}

func (g *PaylinkGateway) Name() string { return "paylink" }

func (g *PaylinkGateway) baseURL(cfg *model.GatewayConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Live {
		return paylinkLiveURL
	}
	return paylinkTestURL
}

// addInvoiceRequest mirrors Paylink's invoice creation body.
type addInvoiceRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	OrderNumber string `json:"orderNumber"`
	ClientName  string `json:"clientName"`
	ClientEmail string `json:"clientEmail"`
	CallBackURL string `json:"callBackUrl"`
	Note        string `json:"note,omitempty"`
	CardToken   string `json:"cardToken,omitempty"`
}

type addInvoiceResponse struct {
	TransactionNo string `json:"transactionNo"`
	URL           string `json:"url"`
	Success       bool   `json:"success"`
	Message       string `json:"message"`
}

type getInvoiceResponse struct {
	TransactionNo string `json:"transactionNo"`
	OrderStatus   string `json:"orderStatus"`
	Amount        int64  `json:"amount"`
	PaymentID     string `json:"paymentReceiptId"`
	Success       bool   `json:"success"`
	Message       string `json:"message"`
}

// CreateIntent opens a hosted invoice. Transport errors and timeouts map to
// domain.ErrGatewayUnavailable (indeterminate); an explicit provider "no"
// maps to domain.ErrGatewayRejected.
func (g *PaylinkGateway) CreateIntent(ctx context.Context, cfg *model.GatewayConfig, in adapter.IntentRequest) (*adapter.Intent, error) {
	body := addInvoiceRequest{
		Amount:      in.Amount,
		Currency:    in.Currency,
		OrderNumber: in.CustomerRef,
		ClientName:  in.Name,
		ClientEmail: in.Email,
		CallBackURL: in.CallbackURL,
		Note:        in.Description,
		CardToken:   in.CardToken,
	}
	var resp addInvoiceResponse
	if err := g.post(ctx, cfg, "/api/addInvoice", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.TransactionNo == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayRejected, resp.Message)
	}
	return &adapter.Intent{ExternalID: resp.TransactionNo, PaymentURL: resp.URL}, nil
}

// QueryStatus asks the gateway's authoritative status endpoint. This is the
// only trusted source of payment outcomes; pushed statuses are never used
// to drive transitions directly.
func (g *PaylinkGateway) QueryStatus(ctx context.Context, cfg *model.GatewayConfig, externalID string) (*adapter.GatewayStatus, error) {
	url := g.baseURL(cfg) + "/api/getInvoice/" + externalID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	var resp getInvoiceResponse
	if err := g.do(req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayRejected, resp.Message)
	}
	return &adapter.GatewayStatus{
		Status:        resp.OrderStatus,
		TransactionID: resp.PaymentID,
		Amount:        resp.Amount,
	}, nil
}

func (g *PaylinkGateway) post(ctx context.Context, cfg *model.GatewayConfig, path string, body any, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL(cfg)+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	return g.do(req, out)
}

func (g *PaylinkGateway) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		// Transport failures and timeouts are indeterminate outcomes.
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: http %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
	}
	return nil
}
