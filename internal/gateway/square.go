package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ticket-service/internal/util"

	"go.uber.org/zap"
)

const squareVersion = "2024-01-18"

// SquareClient charges cards through the Square Payments API.
type SquareClient struct {
	baseURL     string
	accessToken string
	locationID  string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewSquareClient creates a client for the given Square environment.
// baseURL selects sandbox or production.
func NewSquareClient(baseURL, accessToken, locationID string, timeout time.Duration) *SquareClient {
	return &SquareClient{
		baseURL:     baseURL,
		accessToken: accessToken,
		locationID:  locationID,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      util.GetLogger(),
	}
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareChargeRequest struct {
	IdempotencyKey string      `json:"idempotency_key"`
	SourceID       string      `json:"source_id"`
	AmountMoney    squareMoney `json:"amount_money"`
	LocationID     string      `json:"location_id,omitempty"`
	BuyerEmail     string      `json:"buyer_email_address,omitempty"`
	Note           string      `json:"note,omitempty"`
}

type squarePayment struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
	ReceiptURL  string      `json:"receipt_url"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type squareChargeResponse struct {
	Payment *squarePayment `json:"payment"`
	Errors  []squareError  `json:"errors"`
}

// Charge posts one payment to Square. An error list in the response, a
// payment in FAILED or CANCELED status, and any transport error (timeouts
// included) all come back as errors; only a COMPLETED payment succeeds.
func (c *SquareClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	note := req.Note
	if len(note) > NoteLimit {
		note = note[:NoteLimit]
	}

	body := squareChargeRequest{
		IdempotencyKey: req.IdempotencyKey,
		SourceID:       req.SourceToken,
		AmountMoney:    squareMoney{Amount: req.AmountMinorUnits, Currency: req.Currency},
		LocationID:     c.locationID,
		BuyerEmail:     req.BuyerEmail,
		Note:           note,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Square-Version", squareVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	util.GatewayCallLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	var parsed squareChargeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response (status %d): %w", resp.StatusCode, err)
	}

	if len(parsed.Errors) > 0 {
		details := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			details = append(details, fmt.Sprintf("%s: %s", e.Code, e.Detail))
		}
		c.logger.Warn("Square rejected charge",
			zap.Int("http_status", resp.StatusCode),
			zap.Strings("errors", details))
		return nil, &DeclinedError{Details: details}
	}

	if parsed.Payment == nil {
		return nil, fmt.Errorf("gateway response had neither payment nor errors (status %d)", resp.StatusCode)
	}

	if parsed.Payment.Status != "COMPLETED" && parsed.Payment.Status != "APPROVED" {
		return nil, &DeclinedError{
			Details: []string{fmt.Sprintf("payment %s in status %s", parsed.Payment.ID, parsed.Payment.Status)},
		}
	}

	return &ChargeResult{
		PaymentID:        parsed.Payment.ID,
		Status:           parsed.Payment.Status,
		AmountMinorUnits: parsed.Payment.AmountMoney.Amount,
		ReceiptURL:       parsed.Payment.ReceiptURL,
	}, nil
}
