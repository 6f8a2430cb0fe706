package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/landforge/server/internal/database"
)

// AuthHandlers handles authentication HTTP endpoints
type AuthHandlers struct {
	accounts        *database.AccountStorage
	jwtService      *JWTService
	passwordService *PasswordService
	validator       *validator.Validate
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(accounts *database.AccountStorage, jwtService *JWTService, passwordService *PasswordService) *AuthHandlers {
	return &AuthHandlers{
		accounts:        accounts,
		jwtService:      jwtService,
		passwordService: passwordService,
		validator:       validator.New(),
	}
}

// Register handles account registration. New accounts always start as
// editors; admins are promoted out of band.
// POST /api/auth/register
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.sendValidationError(w, err)
		return
	}

	if err := h.passwordService.ValidatePasswordStrength(req.Password); err != nil {
		h.sendError(w, http.StatusBadRequest, "InvalidPassword", err.Error())
		return
	}

	existing, err := h.accounts.GetAccountByUsername(req.Username)
	if err != nil {
		log.Printf("Error checking username: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to check username")
		return
	}
	if existing != nil {
		h.sendError(w, http.StatusConflict, "UsernameExists", "Username already exists")
		return
	}

	passwordHash, err := h.passwordService.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to process password")
		return
	}

	account, err := h.accounts.CreateAccount(req.Username, req.Email, passwordHash, RoleEditor)
	if err != nil {
		log.Printf("Error creating account: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to create account")
		return
	}

	accessToken, err := h.jwtService.GenerateAccessToken(account.ID, account.Username, account.Role)
	if err != nil {
		log.Printf("Error generating access token: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	refreshToken, err := h.jwtService.GenerateRefreshToken(account.ID)
	if err != nil {
		log.Printf("Error generating refresh token: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate refresh token")
		return
	}

	expiresAt := time.Now().Add(h.jwtService.GetTokenExpiration())
	h.sendTokenResponse(w, http.StatusCreated, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		UserID:       account.ID,
		Username:     account.Username,
		Role:         account.Role,
	})
}

// Login handles account login
// POST /api/auth/login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.sendValidationError(w, err)
		return
	}

	account, err := h.accounts.GetAccountByUsername(req.Username)
	if err != nil {
		log.Printf("Error querying account: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to authenticate")
		return
	}
	if account == nil || !h.passwordService.VerifyPassword(req.Password, account.PasswordHash) {
		h.sendError(w, http.StatusUnauthorized, "InvalidCredentials", "Invalid username or password")
		return
	}

	if err := h.accounts.UpdateLastLogin(account.ID); err != nil {
		log.Printf("Warning: failed to update last login for account %d: %v", account.ID, err)
	}

	accessToken, err := h.jwtService.GenerateAccessToken(account.ID, account.Username, account.Role)
	if err != nil {
		log.Printf("Error generating access token: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	refreshToken, err := h.jwtService.GenerateRefreshToken(account.ID)
	if err != nil {
		log.Printf("Error generating refresh token: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate refresh token")
		return
	}

	expiresAt := time.Now().Add(h.jwtService.GetTokenExpiration())
	h.sendTokenResponse(w, http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		UserID:       account.ID,
		Username:     account.Username,
		Role:         account.Role,
	})
}

// Refresh handles token refresh with rotation
// POST /api/auth/refresh
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	// Refresh token may arrive in the Authorization header or the body
	var refreshToken string

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			refreshToken = parts[1]
		}
	}

	if refreshToken == "" {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}

	if refreshToken == "" {
		h.sendError(w, http.StatusBadRequest, "InvalidRequest", "Refresh token required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "InvalidToken", "Invalid or expired refresh token")
		return
	}

	account, err := h.accounts.GetAccountByID(claims.UserID)
	if err != nil {
		log.Printf("Error querying account: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to refresh token")
		return
	}
	if account == nil {
		h.sendError(w, http.StatusUnauthorized, "UserNotFound", "Account no longer exists")
		return
	}

	accessToken, err := h.jwtService.GenerateAccessToken(account.ID, account.Username, account.Role)
	if err != nil {
		log.Printf("Error generating access token: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	newRefreshToken, err := h.jwtService.GenerateRefreshToken(account.ID)
	if err != nil {
		log.Printf("Error generating refresh token: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate refresh token")
		return
	}

	expiresAt := time.Now().Add(h.jwtService.GetTokenExpiration())
	h.sendTokenResponse(w, http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresAt:    expiresAt,
		UserID:       account.ID,
		Username:     account.Username,
		Role:         account.Role,
	})
}

// Profile returns the authenticated account. Requires AuthMiddleware.
// GET /api/auth/profile
func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r)
	if !ok {
		h.sendError(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}

	account, err := h.accounts.GetAccountByID(userID)
	if err != nil {
		log.Printf("Error querying account: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to load profile")
		return
	}
	if account == nil {
		h.sendError(w, http.StatusNotFound, "UserNotFound", "Account no longer exists")
		return
	}

	profile := ProfileResponse{
		UserID:    account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
	}
	if account.LastLogin.Valid {
		t := account.LastLogin.Time
		profile.LastLogin = &t
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(profile)
}

// Logout handles account logout. Tokens are stateless, so logout is
// client-side; the endpoint exists so clients have something to call.
// POST /api/auth/logout
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Logged out successfully",
	})
}

// Helper methods

func (h *AuthHandlers) sendTokenResponse(w http.ResponseWriter, status int, response TokenResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func (h *AuthHandlers) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Code:    code,
	})
}

func (h *AuthHandlers) sendValidationError(w http.ResponseWriter, err error) {
	var validationErrors []string
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", fe.Field(), getValidationMessage(fe)))
		}
	}

	h.sendError(w, http.StatusBadRequest, "ValidationError", strings.Join(validationErrors, "; "))
}

func getValidationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "alphanum":
		return "must contain only alphanumeric characters"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
