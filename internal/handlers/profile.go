package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/tuliahq/tulia-backend/internal/config"
	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/services"
	"github.com/tuliahq/tulia-backend/pkg/utils"
)

var cloudinaryService *services.CloudinaryService

func InitCloudinaryService(cfg *config.Config) error {
	service, err := services.NewCloudinaryService(
		cfg.CloudinaryName,
		cfg.CloudinaryAPIKey,
		cfg.CloudinaryAPISecret,
	)
	if err != nil {
		return err
	}
	cloudinaryService = service
	return nil
}

// UpdateProfile handles profile changes: optional username, optional password,
// optional profile picture upload. All fields are independent; at least one
// must be provided.
func UpdateProfile(w http.ResponseWriter, r *http.Request) {
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

	// Parse multipart form (max 20MB)
	if err := r.ParseMultipartForm(20 << 20); err != nil {
		http.Error(w, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	_, picHeader, picErr := r.FormFile("profile_pic")
	hasPic := picErr == nil && picHeader != nil

	if username == "" && password == "" && !hasPic {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(AuthResponse{
			Success: false,
			Message: "Nothing to update",
		})
		return
	}

	if username != "" {
		if err := utils.ValidateUsername(username); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(AuthResponse{
				Success: false,
				Message: err.Error(),
			})
			return
		}
		normalized := utils.NormalizeUsername(username)

		// Username must stay unique (excluding the caller's own row)
		var existing string
		err := database.PostgresDB.QueryRow(
			"SELECT username FROM users WHERE LOWER(username) = $1 AND id != $2",
			normalized, userID,
		).Scan(&existing)
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

		if _, err := database.PostgresDB.Exec(
			"UPDATE users SET username = $1 WHERE id = $2",
			normalized, userID,
		); err != nil {
			http.Error(w, "Failed to update username", http.StatusInternalServerError)
			return
		}
	}

	if password != "" {
		if len(password) < 8 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(AuthResponse{
				Success: false,
				Message: "Password must be at least 8 characters",
			})
			return
		}
		hashed, err := utils.HashPassword(password)
		if err != nil {
			http.Error(w, "Failed to hash password", http.StatusInternalServerError)
			return
		}
		if _, err := database.PostgresDB.Exec(
			"UPDATE users SET password_hash = $1 WHERE id = $2",
			hashed, userID,
		); err != nil {
			http.Error(w, "Failed to update password", http.StatusInternalServerError)
			return
		}
	}

	if hasPic {
		if cloudinaryService == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(AuthResponse{
				Success: false,
				Message: "Upload service not available",
			})
			return
		}
		url, err := cloudinaryService.UploadFileFromHeader(r.Context(), picHeader, "profiles")
		if err != nil {
			log.Printf("⚠️  Profile picture upload failed: %v", err)
			http.Error(w, "Failed to upload profile picture", http.StatusInternalServerError)
			return
		}
		if _, err := database.PostgresDB.Exec(
			"UPDATE users SET profile_pic = $1 WHERE id = $2",
			url, userID,
		); err != nil {
			http.Error(w, "Failed to update profile picture", http.StatusInternalServerError)
			return
		}
		log.Printf("✅ Profile picture updated for user %s", userID)
	}

	user, err := services.GetUserByID(userID)
	if err != nil || user == nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
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
		Message: "Profile updated successfully!",
		User:    userMap,
	})
}
