// Package oracle calls the payment verification service over HTTP.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/uplink/internal/payment/domain"
	"go.uber.org/zap"
)

const maxResponseBytes = 64 << 10

type Verifier struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

func New(endpoint string, timeout time.Duration, log *zap.Logger) *Verifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:   &http.Client{Timeout: timeout},
		log:      log.Named("payment.oracle"),
	}
}

type verifyRequest struct {
	Reference string `json:"reference"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

func (v *Verifier) Verify(ctx context.Context, externalRef, expectedRecipient string, expectedAmount int64) (bool, error) {
	body, err := json.Marshal(verifyRequest{
		Reference: externalRef,
		Recipient: expectedRecipient,
		Amount:    expectedAmount,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint+"/verify", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", paymentdomain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("%w: %v", paymentdomain.ErrOracleUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return false, fmt.Errorf("%w: status %d", paymentdomain.ErrOracleUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		v.log.Warn("payment rejected by oracle",
			zap.String("external_ref", externalRef),
			zap.Int("status", resp.StatusCode),
		)
		return false, nil
	}

	var out verifyResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return false, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidResponse, err)
	}
	if !out.Verified {
		v.log.Info("payment not verified",
			zap.String("external_ref", externalRef),
			zap.String("reason", out.Reason),
		)
	}
	return out.Verified, nil
}
