package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avreline/repairbooking/internal/domain"
	"go.uber.org/zap"
)

// SubmissionPayload is the outbound order-system shape. Field names follow
// the backend contract, not this module's own JSON conventions.
type SubmissionPayload struct {
	DeviceModelID      string                 `json:"deviceModelId"`
	RepairType         string                 `json:"repairType"`
	ProblemDescription string                 `json:"problemDescription"`
	UrgencyLevel       string                 `json:"urgencyLevel"`
	PreferredDate      string                 `json:"preferredDate,omitempty"`
	CustomerInfo       CustomerPayload        `json:"customerInfo"`
	DeviceCondition    DeviceConditionPayload `json:"deviceCondition"`
	CustomerNotes      string                 `json:"customerNotes,omitempty"`
}

type CustomerPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address,omitempty"`
}

type DeviceConditionPayload struct {
	HasWarranty bool   `json:"hasWarranty"`
	Condition   string `json:"condition"`
}

type ConfirmationReceipt struct {
	BookingRef string `json:"bookingId"`
}

// HTTPGateway submits finished sessions to the order system. Timeouts and 5xx
// responses come back as retryable SubmissionErrors; 4xx rejections are
// terminal.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPGateway(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (g *HTTPGateway) Submit(ctx context.Context, payload SubmissionPayload) (*ConfirmationReceipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/bookings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// Network failure or timeout: worth retrying.
		return nil, &domain.SubmissionError{Retryable: true, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		g.logger.Warn("order system returned server error", zap.Int("status", resp.StatusCode))
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Retryable: true, Reason: "order system unavailable"}
	}
	if resp.StatusCode >= 300 {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Retryable: false, Reason: string(reason)}
	}

	var receipt ConfirmationReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Retryable: false, Reason: "malformed receipt: " + err.Error()}
	}
	if receipt.BookingRef == "" {
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Retryable: false, Reason: "receipt missing bookingId"}
	}
	return &receipt, nil
}
