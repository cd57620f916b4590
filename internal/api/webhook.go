package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/slok/taskbroker/internal/model"
)

const (
	headerGatewaySignature = "X-Gateway-Signature"
	maxWebhookBodySize     = 1 << 20
)

// SignWebhook returns the hex HMAC-SHA256 of the body, the value the gateway sends in the
// signature header.
func SignWebhook(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("could not read webhook body: %w", err))
		return
	}

	if len(h.webhookSecret) > 0 {
		got, err := hex.DecodeString(r.Header.Get(headerGatewaySignature))
		exp, _ := hex.DecodeString(SignWebhook(h.webhookSecret, body))
		if err != nil || !hmac.Equal(got, exp) {
			h.logger.Warningf("Rejected webhook with invalid signature")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
			return
		}
	}

	var req webhookRequestJSON
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, r, fmt.Errorf("invalid webhook body: %s: %w", err, model.ErrNotValid))
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), req.event()); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
