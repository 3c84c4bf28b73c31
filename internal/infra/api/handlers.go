package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/infra/payment"
	red "resource-marketplace/internal/infra/redis"
	"resource-marketplace/internal/usecase"
)

// ----- checkout -----

type checkoutRequest struct {
	ResourceID    string `json:"resourceId"`
	Amount        int64  `json:"amount"`
	SavedMethodID string `json:"savedMethodId,omitempty"`
}

type checkoutResponse struct {
	PaymentID  string `json:"paymentId"`
	Status     string `json:"status"`
	PaymentURL string `json:"paymentUrl,omitempty"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.allow(r, red.CheckoutKey(uid, r.RemoteAddr), s.cfg.RateLimit.CheckoutPerMinute) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	p, payURL, err := s.checkout.Initiate(r.Context(), uid, req.ResourceID, req.Amount, req.SavedMethodID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		PaymentID:  p.ID,
		Status:     string(p.Status),
		PaymentURL: payURL,
	})
}

// ----- webhook (push channel) -----

// webhookPayload is the gateway-shaped body. Unknown extra fields are
// tolerated by plain JSON decoding; only the identifiers matter, the
// claimed status is audit data.
type webhookPayload struct {
	TransactionNo string `json:"transactionNo"`
	OrderNumber   string `json:"orderNumber"`
	OrderStatus   string `json:"orderStatus"`
	Amount        int64  `json:"amount"`
}

type webhookResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	cfg, err := s.settings.Load(r.Context(), nil)
	if err != nil {
		// Without the stored secret the signature cannot be checked. Fail
		// closed; a non-2xx makes the gateway redeliver once settings are
		// back.
		writeError(w, http.StatusServiceUnavailable, "gateway configuration unavailable")
		return
	}
	if cfg.WebhookSecret != "" {
		if !payment.VerifyWebhookSignature(cfg.WebhookSecret, body, r.Header.Get("X-Paylink-Signature")) {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if payload.TransactionNo == "" && payload.OrderNumber == "" {
		writeError(w, http.StatusBadRequest, "missing payment identifiers")
		return
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	outcome, err := s.reconcile.Reconcile(r.Context(), usecase.Signal{
		Channel:       usecase.ChannelWebhook,
		ExternalID:    payload.TransactionNo,
		CustomerRef:   payload.OrderNumber,
		ClaimedStatus: payload.OrderStatus,
		Raw:           raw,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound):
			// Recorded for investigation; the gateway should not retry.
			writeError(w, http.StatusOK, "unknown payment")
		case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrGatewayNotConfigured):
			// Non-2xx triggers the gateway's own retry cadence.
			writeError(w, http.StatusServiceUnavailable, "verification unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "processing failed")
		}
		return
	}
	// 200 on idempotent no-ops too: redelivery is expected behavior.
	writeJSON(w, http.StatusOK, webhookResponse{
		PaymentID: outcome.Payment.ID,
		Status:    string(outcome.Payment.Status),
	})
}

// ----- redirect (browser channel) -----

// handleRedirect lands the user's browser returning from the gateway's
// hosted page. It always answers with a redirect, never a JSON body.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	externalID := q.Get("transactionNo")
	customerRef := q.Get("orderNumber")
	if externalID == "" && customerRef == "" {
		http.Redirect(w, r, s.cfg.Server.ErrorURL, http.StatusSeeOther)
		return
	}

	outcome, err := s.reconcile.Reconcile(r.Context(), usecase.Signal{
		Channel:       usecase.ChannelRedirect,
		ExternalID:    externalID,
		CustomerRef:   customerRef,
		ClaimedStatus: q.Get("orderStatus"),
		Raw:           map[string]any{"query": r.URL.RawQuery},
	})
	if err != nil {
		http.Redirect(w, r, s.cfg.Server.ErrorURL, http.StatusSeeOther)
		return
	}

	switch outcome.Payment.Status {
	case model.PaymentStatusCompleted:
		http.Redirect(w, r, s.cfg.Server.SuccessURL, http.StatusSeeOther)
	case model.PaymentStatusPending:
		http.Redirect(w, r, s.cfg.Server.PendingURL, http.StatusSeeOther)
	default:
		http.Redirect(w, r, s.cfg.Server.ErrorURL, http.StatusSeeOther)
	}
}

// ----- status poll -----

type statusResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	HasAccess bool   `json:"hasAccess"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	outcome, err := s.reconcile.Poll(r.Context(), paymentID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	hasAccess, err := s.reconcile.HasAccess(r.Context(), outcome.Payment)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		PaymentID: outcome.Payment.ID,
		Status:    string(outcome.Payment.Status),
		HasAccess: hasAccess,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, err := s.reconcile.Cancel(r.Context(), chi.URLParam(r, "paymentID"), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{PaymentID: p.ID, Status: string(p.Status)})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, payURL, err := s.reconcile.Retry(r.Context(), chi.URLParam(r, "paymentID"), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{PaymentID: p.ID, Status: string(p.Status), PaymentURL: payURL})
}

// ----- saved payment methods -----

type methodRequest struct {
	GatewayToken string `json:"gatewayToken"`
	Brand        string `json:"brand"`
	Last4        string `json:"last4"`
}

func (s *Server) handleMethodSave(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req methodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	m, err := s.methods.Save(r.Context(), uid, req.GatewayToken, req.Brand, req.Last4)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleMethodList(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := s.methods.List(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMethodDelete(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.methods.Delete(r.Context(), uid, chi.URLParam(r, "methodID")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----- entitlements / downloads -----

type downloadLinkResponse struct {
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (s *Server) handleRefreshDownload(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	url, expires, err := s.entitle.RefreshDownload(r.Context(), chi.URLParam(r, "purchaseID"), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadLinkResponse{DownloadURL: url, ExpiresAt: expires})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, red.DownloadKey(r.RemoteAddr), s.cfg.RateLimit.DownloadPerMinute) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	grant, err := s.download.Authorize(r.Context(), chi.URLParam(r, "slug"), r.URL.Query().Get("token"))
	if err != nil {
		// Category only: expired vs unauthorized vs not found. Anything more
		// specific would help someone enumerating tokens.
		switch {
		case errors.Is(err, domain.ErrTokenExpired):
			writeError(w, http.StatusGone, "download link expired")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		default:
			writeError(w, http.StatusForbidden, "download not permitted")
		}
		return
	}

	rc, size, err := s.files.Open(r.Context(), grant.FileKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.log.Error().Err(err).Str("file_key", grant.FileKey).Msg("open protected file")
		writeError(w, http.StatusInternalServerError, "download failed")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", grant.FileName))
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn().Err(err).Str("purchase_id", grant.PurchaseID).Msg("download stream interrupted")
	}
}

// ----- operator routes -----

type stalePaymentDTO struct {
	PaymentID   string    `json:"paymentId"`
	UserID      string    `json:"userId"`
	ResourceID  string    `json:"resourceId"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	ExternalID  string    `json:"externalId,omitempty"`
	CustomerRef string    `json:"customerRef"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Server) handleStalePending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.reconcile.ListStalePending(r.Context(), limit)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]stalePaymentDTO, 0, len(list))
	for _, p := range list {
		out = append(out, stalePaymentDTO{
			PaymentID:   p.ID,
			UserID:      p.UserID,
			ResourceID:  p.ResourceID,
			Amount:      p.Amount,
			Currency:    p.Currency,
			ExternalID:  p.ExternalID,
			CustomerRef: p.CustomerRef,
			CreatedAt:   p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ----- helpers -----

func (s *Server) allow(r *http.Request, key string, perMinute int) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), key, perMinute, time.Minute)
	if err != nil {
		// A broken limiter store must not take checkout down with it.
		s.log.Warn().Err(err).Msg("rate limiter unavailable; allowing request")
		return true
	}
	return ok
}

// writeDomainError maps the error taxonomy onto HTTP statuses: validation
// 4xx, configuration 503, gateway communication 502, integrity flat 4xx.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrResourceNotPurchasable),
		errors.Is(err, domain.ErrPriceMismatch),
		errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrAlreadyOwned):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrGatewayNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "payment service unavailable")
	case errors.Is(err, domain.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "payment verification unavailable")
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrDownloadForbidden):
		writeError(w, http.StatusForbidden, "not permitted")
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many requests")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
