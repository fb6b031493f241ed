package services

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/models"
)

// GetUserByID retrieves a user row by ID. Returns nil when the user does not
// exist or is inactive.
func GetUserByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	var profilePic sql.NullString

	err := database.PostgresDB.QueryRow(`
		SELECT id, username, email, profile_pic, is_subscribed, is_active, created_at
		FROM users WHERE id = $1 AND is_active = TRUE
	`, userID).Scan(&user.ID, &user.Username, &user.Email, &profilePic, &user.IsSubscribed, &user.IsActive, &user.CreatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	user.ProfilePic = profilePic.String
	return &user, nil
}

// SetUserSubscribed flags a user as subscribed after a successful payment.
func SetUserSubscribed(userID uuid.UUID) error {
	_, err := database.PostgresDB.Exec(`
		UPDATE users SET is_subscribed = TRUE WHERE id = $1
	`, userID)
	return err
}
