package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planhub/api/internal/audit"
	"planhub/api/internal/auth"
	"planhub/api/internal/metrics"
	"planhub/api/internal/store"
)

// Request and response bodies kept for the traffic log are capped so one
// oversized payload cannot bloat x_traffic.
const maxAuditBody = 64 << 10

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *zap.Logger
	limiter    *ipLimiter
}

func NewHTTPServer(service *Service, corsOrigin string, log *zap.Logger) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		log:        log,
		limiter:    newIPLimiter(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

type trafficIDKey struct{}

func trafficIDFrom(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(trafficIDKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trafficID := uuid.New()
		ctx := context.WithValue(r.Context(), trafficIDKey{}, trafficID)
		r = r.WithContext(ctx)

		var reqBody []byte
		if r.Body != nil && r.ContentLength != 0 {
			reqBody, _ = io.ReadAll(io.LimitReader(r.Body, maxAuditBody))
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(reqBody), r.Body))
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Traffic-ID", trafficID.String())

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		metrics.ObserveRequest(r.Method, r.URL.Path, writer.status, elapsed)
		s.log.Info("request",
			zap.String("trafficId", trafficID.String()),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("durationMs", elapsed.Milliseconds()),
		)

		if r.URL.Path == "/api/metrics" || r.URL.Path == "/api/health" {
			return
		}
		traffic := store.Traffic{
			ID:      trafficID,
			Method:  r.Method,
			Path:    r.URL.Path,
			Code:    writer.status,
			Elapsed: elapsed.Milliseconds(),
			Headers: clientHeaders(r),
		}
		// Success bodies stay out of the log; failures keep both sides for
		// debugging.
		if writer.status >= http.StatusBadRequest {
			traffic.Request = string(reqBody)
			traffic.Response = writer.body.String()
		}
		s.service.Audit().Traffic(traffic)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.body.Len() < maxAuditBody {
		r.body.Write(b[:min(len(b), maxAuditBody-r.body.Len())])
	}
	return r.ResponseWriter.Write(b)
}

func clientHeaders(r *http.Request) string {
	return fmt.Sprintf("x-app-store=%s x-app-version=%s user-agent=%s",
		r.Header.Get("x-app-store"), r.Header.Get("x-app-version"), r.UserAgent())
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	seg := splitPath(r.URL.Path)
	if len(seg) < 2 || seg[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "invalid path base", "")
		return
	}
	seg = seg[1:]

	switch {
	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "health":
		s.handleHealth(w, r)
		return
	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "metrics":
		metrics.Handler().ServeHTTP(w, r)
		return
	case seg[0] == "audit":
		s.handleAudit(w, r, seg[1:])
		return
	}

	if r.Header.Get("x-app-store") == "" || r.Header.Get("x-app-version") == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "required headers missing", "")
		return
	}

	if r.Method == http.MethodPost && len(seg) == 2 && seg[0] == "users" && seg[1] == "register" {
		if !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", "")
			return
		}
		s.handleRegister(w, r)
		return
	}

	// Logout may race a merge that re-pointed the device, so the device
	// ownership check moves into the service there.
	checkDevice := !(len(seg) == 2 && seg[0] == "users" && seg[1] == "logout")
	meta, err := s.service.Authenticate(r.Context(), bearerToken(r), checkDevice)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	meta.TrafficID = trafficIDFrom(r.Context())

	switch seg[0] {
	case "users":
		s.handleUsers(w, r, seg[1:], meta)
	case "plans":
		s.handlePlans(w, r, seg[1:], meta)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", "")
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	node := s.service.Node()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"apiName":    node.APIName,
		"apiVersion": node.APIVersion,
		"envName":    node.EnvName,
		"nodeIp":     node.IP,
		"nodeName":   node.Name,
	})
}

// handleAudit accepts client-side log lines and writes them through the same
// queue as server traffic.
func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request, seg []string) {
	if r.Method != http.MethodPost || len(seg) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", "")
		return
	}
	var kind string
	switch seg[0] {
	case "error":
		kind = audit.KindError
	case "info":
		kind = audit.KindInfo
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", "")
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil || strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "message is required", "")
		return
	}

	trafficID := trafficIDFrom(r.Context())
	if kind == audit.KindError {
		s.service.Audit().Error(&trafficID, body.Message)
	} else {
		s.service.Audit().Info(&trafficID, body.Message)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input DeviceInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
		return
	}
	created, err := s.service.Register(r.Context(), input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, seg []string, meta Meta) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "send-otp":
		if !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", "")
			return
		}
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		sid, err := s.service.SendOTP(r.Context(), body.Email)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"sid": sid})

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "verify-otp":
		var body struct {
			Email string `json:"email"`
			SID   string `json:"sid"`
			OTP   string `json:"otp"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		verified, err := s.service.VerifyOTP(r.Context(), meta, body.Email, body.SID, body.OTP)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, verified)

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "refresh-token":
		verified, err := s.service.RefreshToken(r.Context(), meta)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, verified)

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "name":
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		if err := s.service.UpdateName(r.Context(), meta, body.Name); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "logout":
		var body struct {
			DeviceID uuid.UUID `json:"deviceId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		if err := s.service.Logout(r.Context(), meta, body.DeviceID); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case r.Method == http.MethodDelete && len(seg) == 0:
		var body struct {
			SID string `json:"sid"`
			OTP string `json:"otp"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		if err := s.service.DeleteAccount(r.Context(), meta, body.SID, body.OTP); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusNoContent, map[string]any{})

	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "devices":
		devices, err := s.service.Devices(r.Context(), meta)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, devices)

	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "suggested-emails":
		suggestions, err := s.service.SuggestedEmails(r.Context(), meta)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, suggestions)

	case r.Method == http.MethodDelete && len(seg) == 2 && seg[0] == "suggested-emails":
		id, err := uuid.Parse(seg[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid suggested email id", "")
			return
		}
		if err := s.service.DeleteSuggestedEmail(r.Context(), meta, id); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusNoContent, map[string]any{})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", "")
	}
}

func (s *HTTPServer) handlePlans(w http.ResponseWriter, r *http.Request, seg []string, meta Meta) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 0:
		var draft store.PlanDraft
		if err := decodeBody(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		id, err := s.service.CreatePlan(r.Context(), meta, draft)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})

	case r.Method == http.MethodGet && len(seg) == 0:
		planType := r.URL.Query().Get("type")
		if planType == "" {
			planType = store.PlanTypeMain
		}
		plans, err := s.service.ListPlans(r.Context(), meta, planType)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, plans)

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "reorder":
		var body struct {
			Type     string `json:"type"`
			OldOrder int    `json:"oldOrder"`
			NewOrder int    `json:"newOrder"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		if err := s.service.ReorderPlans(r.Context(), meta, body.Type, body.OldOrder, body.NewOrder); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	default:
		planID, err := uuid.Parse(seg[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid plan id", "")
			return
		}
		s.handlePlan(w, r, seg[1:], meta, planID)
	}
}

func (s *HTTPServer) handlePlan(w http.ResponseWriter, r *http.Request, seg []string, meta Meta, planID uuid.UUID) {
	switch {
	case r.Method == http.MethodGet && len(seg) == 0:
		plan, err := s.service.GetPlan(r.Context(), planID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)

	case r.Method == http.MethodPut && len(seg) == 0:
		var draft store.PlanDraft
		if err := decodeBody(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		draft.ID = planID
		if err := s.service.UpdatePlan(r.Context(), meta, draft); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case r.Method == http.MethodDelete && len(seg) == 0:
		if err := s.service.DeletePlan(r.Context(), meta, planID); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusNoContent, map[string]any{})

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "share":
		s.handleMembership(w, r, meta, planID, s.service.SharePlan)

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "unshare":
		s.handleMembership(w, r, meta, planID, s.service.UnsharePlan)

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "leave":
		if err := s.service.LeavePlan(r.Context(), meta, planID); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "type":
		var body struct {
			Type string `json:"type"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		if err := s.service.ChangePlanType(r.Context(), meta, planID, body.Type); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case len(seg) >= 1 && seg[0] == "tasks":
		s.handleTasks(w, r, seg[1:], meta, planID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", "")
	}
}

func (s *HTTPServer) handleMembership(w http.ResponseWriter, r *http.Request, meta Meta, planID uuid.UUID, op func(context.Context, Meta, uuid.UUID, string) error) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
		return
	}
	if err := op(r.Context(), meta, planID, body.Email); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, seg []string, meta Meta, planID uuid.UUID) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 0:
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		id, err := s.service.CreateTask(r.Context(), planID, body.Title)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})

	case r.Method == http.MethodGet && len(seg) == 0:
		tasks, err := s.service.ListTasks(r.Context(), planID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "reorder":
		var body struct {
			OldOrder int `json:"oldOrder"`
			NewOrder int `json:"newOrder"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		if err := s.service.ReorderTasks(r.Context(), planID, body.OldOrder, body.NewOrder); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case len(seg) >= 1:
		taskID, err := uuid.Parse(seg[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid task id", "")
			return
		}
		s.handleTask(w, r, seg[1:], planID, taskID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", "")
	}
}

func (s *HTTPServer) handleTask(w http.ResponseWriter, r *http.Request, seg []string, planID, taskID uuid.UUID) {
	switch {
	case r.Method == http.MethodDelete && len(seg) == 0:
		if err := s.service.DeleteTask(r.Context(), planID, taskID); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusNoContent, map[string]any{})

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "done":
		var body struct {
			Done bool `json:"done"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		if err := s.service.UpdateTaskDone(r.Context(), planID, taskID, body.Done); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	case r.Method == http.MethodPatch && len(seg) == 1 && seg[0] == "title":
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), "")
			return
		}
		if err := s.service.UpdateTaskTitle(r.Context(), taskID, body.Title); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", "")
	}
}

// respondError is the single boundary translator from service failures to
// HTTP. Unclassified errors get a generic body; the detail goes to the
// process log and the audit trail keyed by traffic id.
func (s *HTTPServer) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, key := mapError(err)
	if status >= http.StatusInternalServerError {
		trafficID := trafficIDFrom(r.Context())
		s.log.Error("request failed",
			zap.String("trafficId", trafficID.String()),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.service.Audit().Error(&trafficID, err.Error())
	}
	writeError(w, status, code, message, key)
}

func mapError(err error) (status int, code, message, key string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Key
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", ""
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", ""
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", ""
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-App-Store, X-App-Version")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message, key string) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if key != "" {
		response["key"] = key
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
