package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cooklab/api/internal/mail"
)

// MailSender dispatches a templated email. Satisfied by the mail service.
type MailSender interface {
	Send(ctx context.Context, to, templateName, lang string, vars map[string]string) error
}

// MailHandler handles the transactional-mail dispatch endpoint used by the
// membership provider's event hooks.
type MailHandler struct {
	sender MailSender
	logger *slog.Logger
}

// NewMailHandler creates a new mail dispatch handler.
func NewMailHandler(sender MailSender, logger *slog.Logger) *MailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailHandler{sender: sender, logger: logger}
}

// RegisterRoutes registers the mail endpoint.
func (h *MailHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/mail/send", h.Send)
}

type sendMailRequest struct {
	To        string            `json:"to"`
	Template  string            `json:"template"`
	Language  string            `json:"language"`
	Variables map[string]string `json:"variables"`
}

type sendMailResponse struct {
	Message string `json:"message"`
}

// Send handles POST /api/v1/mail/send. Unsupported languages fall back to the
// default rather than erroring; an unknown template name is a 404.
func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}

	if req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "to is required"})
		return
	}
	if req.Template == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "template is required"})
		return
	}

	err := h.sender.Send(r.Context(), req.To, req.Template, req.Language, req.Variables)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sendMailResponse{Message: "mail dispatched"})
	case errors.Is(err, mail.ErrTemplateNotFound):
		writeJSON(w, http.StatusNotFound, errorJSON{Error: "unknown template", Details: req.Template})
	case errors.Is(err, mail.ErrUpstream):
		h.logger.Error("mail provider failure", "error", err, "template", req.Template)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "mail provider unavailable"})
	default:
		h.logger.Error("mail dispatch failed", "error", err, "template", req.Template)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
	}
}
