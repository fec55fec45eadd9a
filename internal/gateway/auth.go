package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/logwarden/logwarden/internal/audit"
	apperrors "github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/types"
)

const tokenIssuer = "logwarden"

// Claims is the JWT payload for access tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	Username string `json:"usr"`
	Role     string `json:"role"`
}

// JWTService issues and validates HMAC-signed access tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

func NewJWTService(secret []byte, ttl time.Duration) *JWTService {
	return &JWTService{secret: secret, ttl: ttl}
}

// GenerateToken creates a signed access token for the given user.
func (s *JWTService) GenerateToken(user *types.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a token string.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Issuer != tokenIssuer {
		return nil, fmt.Errorf("invalid issuer")
	}
	return claims, nil
}

// TTLSeconds returns the token lifetime in seconds for login responses.
func (s *JWTService) TTLSeconds() int {
	return int(s.ttl.Seconds())
}

// --- Login throttling ---

// lockoutTracker counts failed logins per client IP and refuses further
// attempts once the limit is hit, until the lockout window expires.
type lockoutTracker struct {
	mu       sync.Mutex
	limit    int
	duration time.Duration
	attempts map[string]*lockoutState
}

type lockoutState struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// stale reports whether the entry carries no live state: an expired
// lockout, or failures old enough that the window has lapsed.
func (st *lockoutState) stale(now time.Time, window time.Duration) bool {
	if !st.lockedUntil.IsZero() {
		return now.After(st.lockedUntil)
	}
	return now.Sub(st.lastFailure) > window
}

func newLockoutTracker(limit int, duration time.Duration) *lockoutTracker {
	return &lockoutTracker{
		limit:    limit,
		duration: duration,
		attempts: make(map[string]*lockoutState),
	}
}

func (t *lockoutTracker) locked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.attempts[key]
	if !ok {
		return false
	}
	if !st.lockedUntil.IsZero() && time.Now().Before(st.lockedUntil) {
		return true
	}
	if !st.lockedUntil.IsZero() {
		delete(t.attempts, key)
	}
	return false
}

func (t *lockoutTracker) recordFailure(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Drop stale entries so the map does not grow with every IP that
	// ever failed a login.
	now := time.Now()
	for k, st := range t.attempts {
		if k != key && st.stale(now, t.duration) {
			delete(t.attempts, k)
		}
	}

	st, ok := t.attempts[key]
	if !ok || st.stale(now, t.duration) {
		st = &lockoutState{}
		t.attempts[key] = st
	}
	st.failures++
	st.lastFailure = now
	if st.failures >= t.limit {
		st.lockedUntil = now.Add(t.duration)
	}
}

func (t *lockoutTracker) reset(key string) {
	t.mu.Lock()
	delete(t.attempts, key)
	t.mu.Unlock()
}

// --- Handlers ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expires_in"`
	User      *types.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if s.lockout.locked(ip) {
		writeAPIError(w, http.StatusTooManyRequests, apperrors.ErrLockout, "Too many failed attempts, try again later")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrInvalidInput, "Invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrMissingParam, "username and password are required")
		return
	}

	user, err := s.store.UserByUsername(req.Username)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, apperrors.ErrStorage, "login failed")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.lockout.recordFailure(ip)
		s.audit.Record(audit.Entry{
			Username: req.Username, Action: audit.ActionLoginFailed,
			Result: audit.ResultFailed, IPAddress: ip,
			RequestMethod: r.Method, RequestURL: r.URL.Path,
		})
		writeAPIError(w, http.StatusUnauthorized, apperrors.ErrInvalidCreds, "Invalid username or password")
		return
	}

	token, err := s.jwt.GenerateToken(user)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, apperrors.ErrAuth, "token generation failed")
		return
	}

	s.lockout.reset(ip)
	if err := s.store.TouchLastLogin(user.ID); err != nil {
		s.logger.Warn().Err(err).Str("user", user.Username).Msg("last login update failed")
	}
	s.audit.Record(audit.Entry{
		UserID: user.ID, Username: user.Username, Action: audit.ActionLogin,
		Result: audit.ResultSuccess, IPAddress: ip,
		RequestMethod: r.Method, RequestURL: r.URL.Path,
	})

	writeAPISuccess(w, loginResponse{
		Token:     token,
		ExpiresIn: s.jwt.TTLSeconds(),
		User:      user,
	})
}

// --- Middleware ---

type contextKey string

const claimsKey contextKey = "claims"

// requireAuth validates the Bearer token and stashes the claims in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeAPIError(w, http.StatusUnauthorized, apperrors.ErrAuth, "Missing bearer token")
			return
		}
		claims, err := s.jwt.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeAPIError(w, http.StatusUnauthorized, apperrors.ErrTokenExpired, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// requireRole gates a route behind a role. Auth must run first.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFrom(r.Context())
			if claims == nil || claims.Role != role {
				writeAPIError(w, http.StatusForbidden, apperrors.ErrForbidden, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimsFrom(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i != -1 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
