package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/welanie/dealpipe/internal/notify"
	"github.com/welanie/dealpipe/internal/product"
)

const (
	defaultProductLimit = 10
	maxProductLimit     = 500
)

type submitMessageRequest struct {
	Text       string     `json:"text"`
	Images     []string   `json:"images"`
	Image      string     `json:"image_base64"`
	CapturedAt *time.Time `json:"captured_at"`
}

type notificationRequest struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

// submitMessage handles POST /v1/messages. It assigns an ID and capture
// time and enqueues the message for the extraction pipeline.
func (s *Server) submitMessage(w http.ResponseWriter, r *http.Request) {
	var req submitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	id, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate message id")
		return
	}
	capturedAt := s.clock.Now()
	if req.CapturedAt != nil {
		capturedAt = *req.CapturedAt
	}
	msg := product.RawMessage{
		ID:         id,
		Text:       req.Text,
		Images:     req.Images,
		Image:      req.Image,
		CapturedAt: capturedAt,
	}
	if err := s.queue.Enqueue(r.Context(), msg); err != nil {
		s.logger.Error("enqueue message failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enqueue message")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message_id": id})
}

// listProducts handles GET /v1/products?limit=. Records come back newest
// first.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultProductLimit, maxProductLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.records.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if records == nil {
		records = []product.StoredRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": records})
}

// registerUser handles POST /v1/users, upserting the registration.
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var user notify.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if user.ID == 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := s.users.Upsert(r.Context(), user); err != nil {
		s.logger.Error("register user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": user.ID})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []notify.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// sendNotification handles POST /v1/notifications. The target must be a
// registered user.
func (s *Server) sendNotification(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are not configured")
		return
	}
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == 0 || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "user_id and text are required")
		return
	}
	user, err := s.users.Get(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, notify.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error("lookup user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to look up user")
		return
	}
	if err := s.sender.Send(r.Context(), user.ID, req.Text); err != nil {
		s.logger.Error("send notification failed",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to deliver notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
