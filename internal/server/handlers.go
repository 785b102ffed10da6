// ABOUTME: HTTP handlers for the papergate JSON API
// ABOUTME: Decodes request bodies, invokes services, and maps domain errors to status codes

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/papergate/papergate/internal/auth"
	"github.com/papergate/papergate/internal/codes"
	"github.com/papergate/papergate/internal/store"
	"github.com/papergate/papergate/internal/webhook"
)

// LoginRequest is the JSON request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id,omitempty"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	Token     string `json:"token"`
}

// CreateUserRequest is the JSON request body for POST /auth/create-user.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// ValidateCodeRequest is the JSON request body for POST /auth/validate-code.
type ValidateCodeRequest struct {
	Code string `json:"code"`
}

// GenerateCodesRequest is the JSON request body for POST /admin/generate-codes.
type GenerateCodesRequest struct {
	Count int `json:"count"`
}

// CodeResponse is one entry in the GET /admin/codes listing.
type CodeResponse struct {
	Code      string `json:"code"`
	Used      bool   `json:"used"`
	UsedAt    string `json:"used_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

// UserResponse is one entry in the GET /admin/users listing.
type UserResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	HasAccess   bool   `json:"has_access"`
	IsAdmin     bool   `json:"is_admin"`
	DeviceBound bool   `json:"device_bound"`
	CreatedAt   string `json:"created_at"`
}

// UpdateAccessRequest is the JSON request body for PUT /admin/users/{id}/access.
type UpdateAccessRequest struct {
	HasAccess *bool `json:"has_access"`
}

// DocumentSummaryResponse is one entry in the GET /admin/documents listing.
type DocumentSummaryResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Pesel     string `json:"pesel"`
	CreatedAt string `json:"created_at"`
}

// PurchaseWebhookRequest is the JSON request body for POST /webhooks/purchase.
type PurchaseWebhookRequest struct {
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"`
	ProductType string `json:"product_type,omitempty"`
	Secret      string `json:"secret"`
}

// handleLogin handles POST /auth/login requests.
// Device pinning applies only when the request carries a device_id.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	identity, err := s.auth.Login(r.Context(), req.Username, req.Password, req.DeviceID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, auth.ErrAccessDenied):
			s.sendJSONError(w, http.StatusForbidden, "access denied, contact administrator")
		case errors.Is(err, auth.ErrDeviceMismatch):
			s.sendJSONError(w, http.StatusForbidden, "account is bound to another device")
		default:
			s.logger.Error("login failed", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	token, err := s.verifier.Generate(identity.AccountID, s.tokenTTL)
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, LoginResponse{
		AccountID: identity.AccountID,
		Username:  identity.Username,
		IsAdmin:   identity.IsAdmin,
		Token:     token,
	})
}

// handleCreateUser handles POST /auth/create-user requests. Admin only.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "username and password required")
		return
	}

	account, err := s.auth.CreateAccount(r.Context(), req.Username, req.Password, req.IsAdmin)
	if err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			s.sendJSONError(w, http.StatusConflict, "username already exists")
			return
		}
		s.logger.Error("create user failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"account_id": account.ID,
		"username":   account.Username,
	})
}

// handleValidateCode handles POST /auth/validate-code requests.
func (s *Server) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	var req ValidateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		s.sendJSONError(w, http.StatusBadRequest, "code required")
		return
	}

	if err := s.codes.Validate(r.Context(), req.Code); err != nil {
		if errors.Is(err, codes.ErrCodeInvalid) {
			s.sendJSONError(w, http.StatusUnauthorized, "invalid or already used code")
			return
		}
		s.logger.Error("code validation failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "code accepted"})
}

// handleGenerateCodes handles POST /admin/generate-codes requests.
func (s *Server) handleGenerateCodes(w http.ResponseWriter, r *http.Request) {
	var req GenerateCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	generated, err := s.codes.Generate(r.Context(), req.Count)
	if err != nil {
		if errors.Is(err, codes.ErrInvalidCount) {
			s.sendJSONError(w, http.StatusBadRequest, "count must be between 1 and 100")
			return
		}
		s.logger.Error("code generation failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{"codes": generated})
}

// handleListCodes handles GET /admin/codes requests.
func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	stored, err := s.codes.List(r.Context())
	if err != nil {
		s.logger.Error("listing codes failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]CodeResponse, 0, len(stored))
	for _, c := range stored {
		entry := CodeResponse{
			Code:      c.Code,
			Used:      c.Used,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		}
		if c.UsedAt != nil {
			entry.UsedAt = c.UsedAt.Format(time.RFC3339)
		}
		response = append(response, entry)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"codes": response})
}

// handleListUsers handles GET /admin/users requests.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.logger.Error("listing users failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]UserResponse, 0, len(accounts))
	for _, a := range accounts {
		response = append(response, UserResponse{
			ID:          a.ID,
			Username:    a.Username,
			Email:       a.Email,
			HasAccess:   a.HasAccess,
			IsAdmin:     a.IsAdmin,
			DeviceBound: a.DeviceID != nil,
			CreatedAt:   a.CreatedAt.Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"users": response})
}

// handleUpdateAccess handles PUT /admin/users/{id}/access requests.
func (s *Server) handleUpdateAccess(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req UpdateAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HasAccess == nil {
		s.sendJSONError(w, http.StatusBadRequest, "has_access required")
		return
	}

	if err := s.store.SetAccess(r.Context(), accountID, *req.HasAccess); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "account not found")
			return
		}
		s.logger.Error("updating access failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "access updated"})
}

// handleCreateDocument handles POST /documents/create-and-get-id requests.
// The body is a free-form JSON object; an access_code key, when present, is
// stored as the code reference rather than as payload. Only the assigned ID
// is returned so contents can be shared indirectly.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || fields == nil {
		s.sendJSONError(w, http.StatusInternalServerError, "invalid document body")
		return
	}

	var codeRef string
	if v, ok := fields["access_code"].(string); ok {
		codeRef = v
		delete(fields, "access_code")
	}

	var ownerID *int64
	if authCtx := auth.FromContext(r.Context()); authCtx != nil {
		ownerID = &authCtx.AccountID
	}

	id, err := s.documents.Create(r.Context(), ownerID, fields, codeRef)
	if err != nil {
		s.logger.Error("document creation failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{"document_id": id})
}

// handleRetrieveDocument handles GET /documents/{id} requests.
func (s *Server) handleRetrieveDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendJSONError(w, http.StatusNotFound, "document not found")
		return
	}

	payload, err := s.documents.Retrieve(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("document retrieval failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, payload)
}

// handleUpdateDocument handles PUT /admin/documents/{id} requests.
func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendJSONError(w, http.StatusNotFound, "document not found")
		return
	}

	var partial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil || partial == nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.documents.Update(r.Context(), id, partial); err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("document update failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "document updated"})
}

// handleDeleteDocument handles DELETE /admin/documents/{id} requests.
// Deletion is idempotent: unknown IDs return success.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := s.documents.Delete(r.Context(), id); err != nil {
		s.logger.Error("document deletion failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

// handleListDocuments handles GET /admin/documents requests.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.documents.ListSummaries(r.Context())
	if err != nil {
		s.logger.Error("listing documents failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]DocumentSummaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		response = append(response, DocumentSummaryResponse{
			ID:        sum.ID,
			Username:  sum.Username,
			Name:      sum.Name,
			Surname:   sum.Surname,
			Pesel:     sum.Pesel,
			CreatedAt: sum.CreatedAt.Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"documents": response})
}

// handlePurchaseWebhook handles POST /webhooks/purchase requests.
func (s *Server) handlePurchaseWebhook(w http.ResponseWriter, r *http.Request) {
	var req PurchaseWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, err := s.provisioner.HandlePurchase(r.Context(), req.Email, req.Username, req.ProductType, req.Secret)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrBadSecret):
			s.sendJSONError(w, http.StatusUnauthorized, "invalid webhook secret")
		case errors.Is(err, webhook.ErrMissingIdentity):
			s.sendJSONError(w, http.StatusBadRequest, "email or username required")
		case errors.Is(err, webhook.ErrAccountNotFound):
			s.sendJSONError(w, http.StatusNotFound, "account not found")
		default:
			s.logger.Error("purchase webhook failed", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"account_id": identity.AccountID,
		"username":   identity.Username,
	})
}
