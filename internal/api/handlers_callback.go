/**
 * @description
 * This file contains the HTTP handler for payment gateway callbacks. The
 * callback endpoint is unauthenticated at the transport level; authenticity is
 * established inside the service by the HMAC signature check, so a forged or
 * tampered callback never mutates state.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
)

// PaymentCallbackHandler processes a gateway payment callback and returns the
// membership record in its post-reconciliation state.
func (h *MembershipHandlers) PaymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var cb domain.PaymentCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		log.Printf("level=warn component=api endpoint=payment_callback outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if cb.GatewayOrderID == "" {
		h.writeError(w, http.StatusBadRequest, "razorpay_order_id is required")
		return
	}
	if cb.Outcome == "" {
		cb.Outcome = domain.OutcomeSuccess
	}

	rec, err := h.service.HandlePaymentCallback(r.Context(), cb)
	if err != nil {
		h.writeServiceError(w, "payment_callback", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}
