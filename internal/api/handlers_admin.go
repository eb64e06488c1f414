/**
 * @description
 * This file contains the HTTP handlers for the admin API endpoints: application
 * review, manual grants, member code assignment, record edits, cancellation,
 * deletion, and forced invoice regeneration. All routes in this file sit behind
 * the RequireAdmin middleware.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
)

// ListMembershipsHandler returns records matching the query filters.
// Supported filters: status, application_status, membership_type, limit, offset.
func (h *MembershipHandlers) ListMembershipsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := domain.MembershipListOptions{
		Status:            domain.MembershipStatus(q.Get("status")),
		ApplicationStatus: domain.ApplicationStatus(q.Get("application_status")),
		MembershipType:    domain.MembershipType(q.Get("membership_type")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}

	records, err := h.service.ListMemberships(r.Context(), opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_memberships outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list memberships")
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

// ReviewApplicationHandler applies an approve/reject decision to a submitted application.
func (h *MembershipHandlers) ReviewApplicationHandler(w http.ResponseWriter, r *http.Request) {
	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	var req domain.ReviewApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	rec, err := h.service.ReviewApplication(r.Context(), membershipID, req)
	if err != nil {
		h.writeServiceError(w, "review_application", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// CreateManualMembershipHandler grants a membership directly, bypassing the
// application and payment flow.
func (h *MembershipHandlers) CreateManualMembershipHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ManualMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	rec, err := h.service.CreateManualMembership(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create_manual_membership", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, rec)
}

// RecordManualPaymentHandler activates an approved application without a
// gateway payment (cheque, bank transfer, waived fee).
func (h *MembershipHandlers) RecordManualPaymentHandler(w http.ResponseWriter, r *http.Request) {
	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	rec, err := h.service.RecordManualPayment(r.Context(), membershipID)
	if err != nil {
		h.writeServiceError(w, "record_manual_payment", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// AssignMemberCodeHandler assigns an explicit member code to a record.
func (h *MembershipHandlers) AssignMemberCodeHandler(w http.ResponseWriter, r *http.Request) {
	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		MemberCode string `json:"member_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.MemberCode == "" {
		h.writeError(w, http.StatusBadRequest, "member_code is required")
		return
	}

	rec, err := h.service.AssignCustomMemberCode(r.Context(), membershipID, req.MemberCode)
	if err != nil {
		h.writeServiceError(w, "assign_member_code", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// UpdateMembershipHandler applies admin edits to a record.
func (h *MembershipHandlers) UpdateMembershipHandler(w http.ResponseWriter, r *http.Request) {
	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	var req domain.UpdateMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	rec, err := h.service.UpdateMembership(r.Context(), membershipID, req)
	if err != nil {
		h.writeServiceError(w, "update_membership", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// DeleteMembershipHandler hard-deletes a record and its ledger entries.
func (h *MembershipHandlers) DeleteMembershipHandler(w http.ResponseWriter, r *http.Request) {
	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteMembership(r.Context(), membershipID); err != nil {
		h.writeServiceError(w, "delete_membership", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMembershipOrdersHandler returns the ledger entries for a record.
func (h *MembershipHandlers) ListMembershipOrdersHandler(w http.ResponseWriter, r *http.Request) {
	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrdersByMembership(r.Context(), membershipID)
	if err != nil {
		h.writeServiceError(w, "list_membership_orders", err)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// RegenerateInvoiceHandler forces invoice regeneration for a paid order.
func (h *MembershipHandlers) RegenerateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	url, err := h.service.GenerateInvoice(r.Context(), orderID, true)
	if err != nil {
		h.writeServiceError(w, "regenerate_invoice", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"invoice_url": url})
}
