package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/campusforum/memberd/internal/services"
	"github.com/campusforum/memberd/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 24 * time.Hour

// AuthHandler provides the account lifecycle endpoints: signup,
// promotion, login, password change and the token-based recovery
// flows.
type AuthHandler struct {
	identity *services.IdentityService
	tokens   *services.TokenService
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(identity *services.IdentityService, tokens *services.TokenService, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		tokens:   tokens,
		secret:   []byte(jwtSecret),
		tokenTTL: defaultTokenTTL,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, identity *services.IdentityService, tokens *services.TokenService, jwtSecret string) {
	handler := NewAuthHandler(identity, tokens, jwtSecret)

	r.Post("/signup", handler.Signup)
	r.Post("/validate", handler.Validate)
	r.Post("/login", handler.Login)
	r.Post("/login/token", handler.LoginWithToken)
	r.Post("/password/change", handler.ChangePassword)
	r.Post("/username/unlock", handler.UnlockUsername)
	r.Post("/password/unlock", handler.UnlockPassword)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
	r.With(handler.RequireAuth).Delete("/users", handler.DeleteUsers)
	r.With(handler.RequireAuth).Delete("/users/pending", handler.DeletePendingUsers)
	r.With(handler.RequireAuth).Delete("/users/{username}", handler.DeleteUser)
}

// DeleteUser removes a single valid account.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if err := h.identity.DeleteUser(r.Context(), username); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// Me returns the account of the authenticated caller.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.identity.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNoSuchUser) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// RequireAuth enforces JWT authentication and injects the subject into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.secret)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return requireAuth([]byte(jwtSecret))
}

func requireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, err := parseTokenSubject(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Signup records a new pending account. No credential hashing happens
// here; the plaintext is held until promotion.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	pending, err := h.identity.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pending)
}

// Validate promotes a pending account and returns the new valid
// account with a session token.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.identity.Validate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// Login verifies credentials and returns the account with a session
// token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.identity.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// LoginWithToken is Login qualified by the account id.
func (h *AuthHandler) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var req TokenLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	user, err := h.identity.LoginWithToken(r.Context(), req.Username, req.Password, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// ChangePassword rotates the credential. An empty old or new password
// requests a reset; the generated temporary password is returned in
// the response body, which the transport in front of this service must
// protect.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "missing username")
		return
	}

	user, err := h.identity.ChangePassword(r.Context(), req.Username, req.OldPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := ChangePasswordResponse{User: user}
	if req.OldPassword == "" || req.NewPassword == "" {
		resp.TempPassword = user.Password
	}
	writeJSON(w, http.StatusOK, resp)
}

// UnlockUsername resolves an account id back to its username.
func (h *AuthHandler) UnlockUsername(w http.ResponseWriter, r *http.Request) {
	var req UnlockUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	username, err := h.tokens.ResolveUsernameByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UnlockUsernameResponse{Username: username})
}

// UnlockPassword discloses the current password for an exact
// username+id match. Legacy recovery endpoint; see TokenService.
func (h *AuthHandler) UnlockPassword(w http.ResponseWriter, r *http.Request) {
	var req UnlockPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	plaintext, err := h.tokens.ResolvePasswordByID(r.Context(), req.Username, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UnlockPasswordResponse{Password: plaintext})
}

// DeleteUsers removes valid accounts in one batch. The batch aborts on
// the first missing username and leaves every record in place.
func (h *AuthHandler) DeleteUsers(w http.ResponseWriter, r *http.Request) {
	usernames, ok := decodeUsernames(w, r)
	if !ok {
		return
	}
	if err := h.identity.DeleteUsers(r.Context(), usernames); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "users deleted"})
}

// DeletePendingUsers removes pending signups in one batch, with the
// same abort-on-first-missing contract as DeleteUsers.
func (h *AuthHandler) DeletePendingUsers(w http.ResponseWriter, r *http.Request) {
	usernames, ok := decodeUsernames(w, r)
	if !ok {
		return
	}
	if err := h.identity.DeletePendingUsers(r.Context(), usernames); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "pending users deleted"})
}

func decodeUsernames(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req DeleteUsersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return nil, false
	}
	if len(req.Usernames) == 0 {
		writeError(w, http.StatusBadRequest, "usernames are required")
		return nil, false
	}
	return req.Usernames, true
}

type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ID       string `json:"id"`
}

type ChangePasswordRequest struct {
	Username    string `json:"username"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordResponse struct {
	User         types.User `json:"user"`
	TempPassword string     `json:"temp_password,omitempty"`
}

type UnlockUsernameRequest struct {
	ID string `json:"id"`
}

type UnlockUsernameResponse struct {
	Username string `json:"username"`
}

type UnlockPasswordRequest struct {
	Username string `json:"username"`
	ID       string `json:"id"`
}

type UnlockPasswordResponse struct {
	Password string `json:"password"`
}

type DeleteUsersRequest struct {
	Usernames []string `json:"usernames"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

func issueToken(userID uuid.UUID, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
