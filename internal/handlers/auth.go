package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/services"
	"github.com/tuliahq/tulia-backend/pkg/utils"
)

// User Signup Request
type UserSignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User Signin Request
type UserSigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Auth Response
type AuthResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	User    map[string]interface{} `json:"user,omitempty"`
	Token   string                 `json:"token,omitempty"`
}

// extractBearerToken pulls the token out of an "Authorization: Bearer <token>" header.
func extractBearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// requireAuth validates the session and returns the authenticated user's ID.
// Returns (uuid.Nil, false) if not authenticated.
func requireAuth(r *http.Request) (uuid.UUID, bool) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return uuid.Nil, false
	}
	userID, ok, err := services.ValidateSession(token)
	if err != nil || !ok {
		return uuid.Nil, false
	}
	return userID, true
}

// UserSignup handles user registration
func UserSignup(w http.ResponseWriter, r *http.Request) {
	var req UserSignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Validate required fields
	if req.Username == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "Username, email, and password are required", http.StatusBadRequest)
		return
	}

	// Validate username format
	if err := utils.ValidateUsername(req.Username); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(AuthResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	// Validate password
	if len(req.Password) < 8 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(AuthResponse{
			Success: false,
			Message: "Password must be at least 8 characters",
		})
		return
	}

	normalizedUsername := utils.NormalizeUsername(req.Username)
	email := strings.TrimSpace(strings.ToLower(req.Email))

	// Check if username already exists
	var existingUsername string
	err := database.PostgresDB.QueryRow(
		"SELECT username FROM users WHERE LOWER(username) = $1",
		normalizedUsername,
	).Scan(&existingUsername)
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(AuthResponse{
			Success: false,
			Message: "Username is already taken",
		})
		return
	} else if err != sql.ErrNoRows {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	// Check if email already exists
	var existingEmail string
	err = database.PostgresDB.QueryRow(
		"SELECT email FROM users WHERE email = $1",
		email,
	).Scan(&existingEmail)
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(AuthResponse{
			Success: false,
			Message: "User with this email already exists",
		})
		return
	} else if err != sql.ErrNoRows {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	// Hash password
	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	// Create user
	userID := uuid.New()
	now := time.Now()

	_, err = database.PostgresDB.Exec(`
		INSERT INTO users (id, username, email, password_hash, is_subscribed, is_active, created_at)
		VALUES ($1, $2, $3, $4, FALSE, TRUE, $5)
	`, userID, normalizedUsername, email, hashedPassword, now)
	if err != nil {
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	// Return user (without password)
	userMap := map[string]interface{}{
		"id":            userID.String(),
		"username":      normalizedUsername,
		"email":         email,
		"is_subscribed": false,
		"created_at":    now,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{
		Success: true,
		Message: "User created successfully",
		User:    userMap,
	})
}

// UserSignin handles user login and issues a session token
func UserSignin(w http.ResponseWriter, r *http.Request) {
	var req UserSigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Validate required fields
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	normalizedUsername := utils.NormalizeUsername(req.Username)

	// Find user
	var userID uuid.UUID
	var email, passwordHash string
	var profilePic sql.NullString
	var isSubscribed, isActive bool
	var createdAt time.Time

	err := database.PostgresDB.QueryRow(`
		SELECT id, email, password_hash, profile_pic, is_subscribed, is_active, created_at
		FROM users
		WHERE LOWER(username) = $1
	`, normalizedUsername).Scan(&userID, &email, &passwordHash, &profilePic, &isSubscribed, &isActive, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		} else {
			http.Error(w, "Database error", http.StatusInternalServerError)
		}
		return
	}

	// Check if account is active
	if !isActive {
		http.Error(w, "Account is inactive", http.StatusForbidden)
		return
	}

	// Verify password
	valid, err := utils.VerifyPassword(req.Password, passwordHash)
	if err != nil || !valid {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	// Issue session token (stored in Redis, 7-day TTL)
	token, err := services.CreateSession(userID)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	userMap := map[string]interface{}{
		"id":            userID.String(),
		"username":      normalizedUsername,
		"email":         email,
		"profile_pic":   profilePic.String,
		"is_subscribed": isSubscribed,
		"created_at":    createdAt,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Success: true,
		Message: "Login successful",
		User:    userMap,
		Token:   token,
	})
}

// UserSignout invalidates the caller's session token
func UserSignout(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		http.Error(w, "Missing session token", http.StatusUnauthorized)
		return
	}

	if err := services.InvalidateSession(token); err != nil {
		http.Error(w, "Failed to sign out", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Success: true,
		Message: "Signed out successfully",
	})
}

// GetMe returns the authenticated user's profile
func GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(AuthResponse{
			Success: false,
			Message: "Authentication required",
		})
		return
	}

	user, err := services.GetUserByID(userID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	userMap := map[string]interface{}{
		"id":            user.ID.String(),
		"username":      user.Username,
		"email":         user.Email,
		"profile_pic":   user.ProfilePic,
		"is_subscribed": user.IsSubscribed,
		"created_at":    user.CreatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Success: true,
		Message: "OK",
		User:    userMap,
	})
}
