/**
 * @description
 * This file contains the HTTP handlers for the member-facing API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Soundar1309/ispb-membership-service/internal/app"
	"github.com/Soundar1309/ispb-membership-service/internal/domain"
	"github.com/Soundar1309/ispb-membership-service/internal/store"
)

// maxDocumentUploadBytes caps application document uploads.
const maxDocumentUploadBytes = 10 << 20

// MembershipHandlers holds the application service that handlers will use.
type MembershipHandlers struct {
	service *app.Service
}

// NewMembershipHandlers creates a new instance of MembershipHandlers.
func NewMembershipHandlers(service *app.Service) *MembershipHandlers {
	return &MembershipHandlers{service: service}
}

// SubmitApplicationHandler handles a member submitting a new membership application.
func (h *MembershipHandlers) SubmitApplicationHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=submit_application outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	rec, err := h.service.SubmitApplication(r.Context(), actor.UserID, req)
	if err != nil {
		h.writeServiceError(w, "submit_application", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, rec)
}

// UploadDocumentHandler stores an application document and returns its reference.
func (h *MembershipHandlers) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentUploadBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "Document exceeds the upload size limit")
		return
	}
	if len(data) == 0 {
		h.writeError(w, http.StatusBadRequest, "Document body must not be empty")
		return
	}

	doc, err := h.service.UploadApplicationDocument(r.Context(), actor.UserID, name, data, contentType)
	if err != nil {
		log.Printf("level=error component=api endpoint=upload_document outcome=failed user_id=%s err=%v", actor.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to store document")
		return
	}

	h.writeJSON(w, http.StatusCreated, doc)
}

// GetOwnMembershipHandler returns the caller's live membership record.
func (h *MembershipHandlers) GetOwnMembershipHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	rec, err := h.service.GetOwnMembership(r.Context(), actor.UserID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			h.writeError(w, http.StatusNotFound, "No live membership found")
			return
		}
		log.Printf("level=error component=api endpoint=get_own_membership outcome=failed user_id=%s err=%v", actor.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load membership")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// ListOwnOrdersHandler returns the caller's payment history.
func (h *MembershipHandlers) ListOwnOrdersHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	orders, err := h.service.ListOwnOrders(r.Context(), actor.UserID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_own_orders outcome=failed user_id=%s err=%v", actor.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// StartPaymentHandler creates a gateway order for an approved membership.
func (h *MembershipHandlers) StartPaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.service.StartPayment(r.Context(), actor, membershipID)
	if err != nil {
		h.writeServiceError(w, "start_payment", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

// CancelMembershipHandler cancels the caller's active membership.
func (h *MembershipHandlers) CancelMembershipHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Cancel(r.Context(), actor, membershipID)
	if err != nil {
		h.writeServiceError(w, "cancel_membership", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// GetMembershipHandler returns a record by id, enforcing ownership for members.
func (h *MembershipHandlers) GetMembershipHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	membershipID, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	rec, err := h.service.GetMembership(r.Context(), actor, membershipID)
	if err != nil {
		h.writeServiceError(w, "get_membership", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// parseIDParam extracts and validates the {id} URL parameter.
func (h *MembershipHandlers) parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid membership ID format")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service-layer sentinel errors onto HTTP statuses.
func (h *MembershipHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrMembershipNotFound):
		h.writeError(w, http.StatusNotFound, "Membership not found")
	case errors.Is(err, store.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, app.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, "You do not have access to this record")
	case errors.Is(err, app.ErrExistingLiveMembership):
		h.writeError(w, http.StatusConflict, "A pending or active membership already exists for this user")
	case errors.Is(err, app.ErrInvalidStateTransition):
		h.writeError(w, http.StatusConflict, "The record is not in the required state for this operation")
	case errors.Is(err, store.ErrDuplicateMemberCode):
		h.writeError(w, http.StatusConflict, "The member code is already in use")
	case errors.Is(err, app.ErrUnknownMembershipType):
		h.writeError(w, http.StatusBadRequest, "Unknown membership type")
	case errors.Is(err, app.ErrVerificationFailed):
		h.writeError(w, http.StatusBadRequest, "Payment verification failed")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *MembershipHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *MembershipHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
