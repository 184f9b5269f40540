package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"restaurant-pos/internal/logger"
)

type ctxKey string

const (
	ctxRequestID  ctxKey = "request_id"
	ctxEmployeeID ctxKey = "employee_id"
)

// RequestIDHeader carries the correlation id in both directions
const RequestIDHeader = "X-Request-ID"

// withRequestID reuses the caller's X-Request-ID or generates one
func (h *Handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), ctxRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

// employeeFrom returns the employee named by the bearer token, if any
func employeeFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxEmployeeID).(string)
	return id
}

// withLogging logs request start and completion
func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFrom(r.Context())

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// employeeClaims is the token issued to a terminal session
type employeeClaims struct {
	EmployeeID string `json:"employee_id"`
	jwt.RegisteredClaims
}

// authMiddleware verifies the HS256 bearer token when a secret is configured
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		requestID := requestIDFrom(r.Context())
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			h.writeErrorResponse(w, http.StatusUnauthorized, "missing bearer token", "", "", requestID)
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])

		claims := &employeeClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return h.secret, nil
		})
		if err != nil || !token.Valid || claims.EmployeeID == "" {
			h.logger.Debug("auth_rejected", "Rejected bearer token", requestID, map[string]interface{}{
				"path": r.URL.Path,
			})
			h.writeErrorResponse(w, http.StatusUnauthorized, "invalid token", "", "", requestID)
			return
		}

		ctx := context.WithValue(r.Context(), ctxEmployeeID, claims.EmployeeID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
