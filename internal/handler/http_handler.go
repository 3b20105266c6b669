package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
	"github.com/pesio-ai/be-ap-payables/internal/lifecycle"
	"github.com/pesio-ai/be-ap-payables/internal/ocr"
	"github.com/pesio-ai/be-ap-payables/internal/service"
)

// maxUploadBytes bounds the multipart body of a document scan.
const maxUploadBytes = ocr.MaxDocumentSizeBytes + 1<<20

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service *service.Service
	log     zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc *service.Service, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: svc,
		log:     log.With().Str("handler", "http").Logger(),
	}
}

// Routes mounts the payables endpoints under /v1.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/v1/entities/{entityID}/{kind}", func(r chi.Router) {
		r.Post("/evaluate", h.Evaluate)
		r.Post("/submit", h.Submit)
		r.Post("/approvers", h.AssignApprover)
		r.Post("/payment-methods/switch", h.SwitchPaymentMethod)
		r.Post("/scan", h.ScanDocument)
		r.Get("/{invoiceID}/evaluation", h.GetEvaluation)
		r.Post("/{invoiceID}/actions/{action}", h.RunAction)
	})
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Code    apperrors.Code        `json:"code"`
	Message string                `json:"message"`
	Field   string                `json:"field,omitempty"`
	Reasons apperrors.FieldErrors `json:"reasons,omitempty"`
	Result  any                   `json:"result,omitempty"`
}

func (h *HTTPHandler) adapter(w http.ResponseWriter, r *http.Request) (*service.Adapter, bool) {
	kind, err := service.ParseKind(chi.URLParam(r, "kind"))
	if err == nil {
		var a *service.Adapter
		if a, err = h.service.Adapter(kind); err == nil {
			return a, true
		}
	}
	h.writeError(w, r, err, nil)
	return nil, false
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid request body"), nil)
		return false
	}
	return true
}

// Evaluate handles evaluate HTTP requests
func (h *HTTPHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapter(w, r)
	if !ok {
		return
	}
	var req service.EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EntityID = chi.URLParam(r, "entityID")

	ev, err := a.Evaluate(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// GetEvaluation evaluates the stored invoice.
func (h *HTTPHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapter(w, r)
	if !ok {
		return
	}
	ev, err := a.Evaluate(r.Context(), &service.EvaluateRequest{
		EntityID:  chi.URLParam(r, "entityID"),
		InvoiceID: chi.URLParam(r, "invoiceID"),
	})
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Submit handles submit HTTP requests
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapter(w, r)
	if !ok {
		return
	}
	var req service.SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EntityID = chi.URLParam(r, "entityID")
	h.submit(w, r, a, &req)
}

// RunAction handles an explicit lifecycle action on a stored invoice.
func (h *HTTPHandler) RunAction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapter(w, r)
	if !ok {
		return
	}
	name := strings.ToUpper(strings.ReplaceAll(chi.URLParam(r, "action"), "-", "_"))
	action, known := lifecycle.ParseAction(name)
	if !known || action == lifecycle.ActionNone {
		h.writeError(w, r, apperrors.InvalidInput("action", "unknown action"), nil)
		return
	}

	var body struct {
		ActorID        string               `json:"actorId"`
		Reason         string               `json:"reason"`
		Comment        string               `json:"comment"`
		OverrideStatus domain.InvoiceStatus `json:"overrideStatus"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	h.submit(w, r, a, &service.SubmitRequest{
		EntityID:  chi.URLParam(r, "entityID"),
		InvoiceID: chi.URLParam(r, "invoiceID"),
		Input:     service.Input{Action: action, OverrideStatus: body.OverrideStatus},
		Comment:   body.Comment,
		ActorID:   body.ActorID,
		Reason:    body.Reason,
	})
}

func (h *HTTPHandler) submit(w http.ResponseWriter, r *http.Request, a *service.Adapter, req *service.SubmitRequest) {
	res, err := a.Submit(r.Context(), req)
	switch {
	case err != nil && res != nil:
		h.writeError(w, r, err, res)
	case err != nil:
		h.writeError(w, r, err, nil)
	case res.Stale:
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Code:    apperrors.ErrCodeStaleTransition,
			Message: "invoice changed, re-fetched latest state",
			Result:  res,
		})
	case res.Decision.Held():
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Code:    apperrors.ErrCodeInvalidInput,
			Message: "invoice is incomplete",
			Reasons: res.Decision.Reasons,
			Result:  res,
		})
	case res.Invoice != nil && res.Decision.Mutation == lifecycle.MutationCreate:
		writeJSON(w, http.StatusCreated, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// AssignApprover handles approver assignment HTTP requests
func (h *HTTPHandler) AssignApprover(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapter(w, r)
	if !ok {
		return
	}
	var req service.AssignApproverRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EntityID = chi.URLParam(r, "entityID")

	res, err := a.AssignApprover(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SwitchPaymentMethod handles payment method type changes.
func (h *HTTPHandler) SwitchPaymentMethod(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapter(w, r)
	if !ok {
		return
	}
	var req service.SwitchPaymentMethodRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EntityID = chi.URLParam(r, "entityID")

	res, err := a.SwitchPaymentMethod(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ScanDocument accepts a multipart upload with a "document" file and an
// optional "invoice" JSON field holding the current draft.
func (h *HTTPHandler) ScanDocument(w http.ResponseWriter, r *http.Request) {
	a, ok := h.adapter(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("document", "invalid multipart upload"), nil)
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput("document", "document file is required"), nil)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput("document", "failed to read document"), nil)
		return
	}

	req := &service.ScanDocumentRequest{
		EntityID: chi.URLParam(r, "entityID"),
		Document: ocr.Document{
			Content:  content,
			MimeType: header.Header.Get("Content-Type"),
			Filename: header.Filename,
		},
	}
	if raw := r.FormValue("invoice"); raw != "" {
		req.Invoice = &domain.Invoice{}
		if err := json.Unmarshal([]byte(raw), req.Invoice); err != nil {
			h.writeError(w, r, apperrors.InvalidInput("invoice", "invalid invoice JSON"), nil)
			return
		}
	}

	res, err := a.ScanDocument(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperrors.Code) int {
	switch code {
	case apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeAlreadyExists, apperrors.ErrCodeStaleTransition:
		return http.StatusConflict
	case apperrors.ErrCodeExternal:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error, result any) {
	code := apperrors.CodeOf(err)
	status := StatusFor(code)
	resp := ErrorResponse{Code: code, Message: err.Error(), Result: result}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	}

	evt := h.log.Warn()
	if status >= http.StatusInternalServerError {
		evt = h.log.Error()
	}
	evt.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("Request failed")

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
