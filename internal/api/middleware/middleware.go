package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/security"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type contextKey string

// ClaimsKey — ключ контекста с JWT-утверждениями аутентифицированного пользователя
const ClaimsKey contextKey = "claims"

// RequestID добавляет уникальный идентификатор запроса
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger логирует входящие запросы и время их выполнения
func Logger(log interfaces.LoggerPort) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := NewResponseWriter(w)

			log.InfoWithContext(r.Context(), "Входящий запрос",
				interfaces.LogField{Key: "method", Value: r.Method},
				interfaces.LogField{Key: "path", Value: r.URL.Path},
				interfaces.LogField{Key: "remote_addr", Value: r.RemoteAddr},
				interfaces.LogField{Key: "user_agent", Value: r.UserAgent()},
			)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			log.InfoWithContext(r.Context(), "Исходящий ответ",
				interfaces.LogField{Key: "method", Value: r.Method},
				interfaces.LogField{Key: "path", Value: r.URL.Path},
				interfaces.LogField{Key: "status", Value: ww.Status()},
				interfaces.LogField{Key: "duration", Value: duration.String()},
			)
		})
	}
}

// ResponseWriter обертка для отслеживания статус-кода
type ResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// NewResponseWriter создает новую обертку ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader записывает статус-код
func (rw *ResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Status возвращает статус-код
func (rw *ResponseWriter) Status() int {
	return rw.statusCode
}

// Recoverer обрабатывает панику в запросах
func Recoverer(log interfaces.LoggerPort) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					log.ErrorWithContext(r.Context(), "Паника при обработке запроса",
						interfaces.LogField{Key: "error", Value: rvr},
						interfaces.LogField{Key: "path", Value: r.URL.Path},
						interfaces.LogField{Key: "method", Value: r.Method},
					)

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Metrics регистрирует счетчик и длительность HTTP-запросов.
// Путь берется из шаблона маршрута, чтобы не раздувать кардинальность метрик.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := NewResponseWriter(w)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// JWTAuth проверяет подпись и срок действия bearer-токена
func JWTAuth(manager *security.JWTManager, log interfaces.LoggerPort) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			claims, err := manager.Validate(parts[1])
			if err != nil {
				log.WarnWithContext(r.Context(), "Отклонен запрос с недействительным токеном",
					interfaces.LogField{Key: "error", Value: err.Error()},
					interfaces.LogField{Key: "path", Value: r.URL.Path},
				)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext возвращает JWT-утверждения запроса
func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*security.Claims)
	return claims, ok
}

// RequireRole пропускает только запросы с указанной ролью в утверждениях токена
func RequireRole(manager *security.JWTManager, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !manager.HasRole(claims, role) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout устанавливает таймаут для запроса
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})

			go func() {
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
				return
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					http.Error(w, "Request timeout", http.StatusGatewayTimeout)
				}
				return
			}
		})
	}
}

// CORS добавляет заголовки для Cross-Origin Resource Sharing
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if allowedOrigin == "*" || origin == allowedOrigin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
