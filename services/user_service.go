// coin-offers-system/services/user_service.go
package services

import (
	"errors"
	"log"
	"strconv"

	"coin-offers-system/models"
	"coin-offers-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// EnsureUser returns the local user for an external identity, creating the
// row with the default starting balance on first contact (idempotent).
func (s *UserService) EnsureUser(externalUserID, username string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("external_user_id = ?", externalUserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			ID:             uuid.NewString(),
			ExternalUserID: externalUserID,
			Username:       username,
			Handle:         slug.Make(username),
			Balance:        models.DefaultStartingBalance,
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// --- HTTP Handlers ---

// RegisterMe bootstraps the local user record from the gateway's auth context.
func (s *UserService) RegisterMe(c *fiber.Ctx) error {
	externalUserID := c.Locals("user_id").(string)

	var req struct {
		Username string `json:"username"`
	}
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "username is required"})
	}

	user, err := s.EnsureUser(externalUserID, req.Username)
	if err != nil {
		log.Printf("DB Error ensuring user %s: %v", externalUserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to register user"})
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

// GetMe returns the authenticated user's record, including the balance.
func (s *UserService) GetMe(c *fiber.Ctx) error {
	externalUserID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "external_user_id = ?", externalUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(user)
}

// UploadMyAvatar stores the user's avatar in R2 and saves the public URL.
func (s *UserService) UploadMyAvatar(c *fiber.Ctx) error {
	externalUserID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "external_user_id = ?", externalUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "avatar file is required"})
	}

	avatarURL, err := utils.UploadAvatarToR2(fileHeader, user.ID)
	if err != nil {
		log.Printf("R2 Error uploading avatar for user %s: %v", user.ID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user.AvatarURL = avatarURL
	if err := s.DB.Save(&user).Error; err != nil {
		log.Printf("DB Error saving avatar URL: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save avatar"})
	}

	return c.JSON(fiber.Map{"avatar_url": avatarURL})
}

// GetLeaderboard returns the top users by balance (?limit=N, default 25).
func (s *UserService) GetLeaderboard(c *fiber.Ctx) error {
	limit := 25
	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit parameter"})
		}
		limit = l
	}

	var users []models.User
	if err := s.DB.Order("balance DESC").Limit(limit).Find(&users).Error; err != nil {
		log.Printf("DB Error fetching leaderboard: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch leaderboard"})
	}

	type LeaderboardEntry struct {
		Handle    string  `json:"handle"`
		Username  string  `json:"username"`
		AvatarURL string  `json:"avatar_url,omitempty"`
		Balance   float64 `json:"balance"`
	}

	res := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		res[i] = LeaderboardEntry{
			Handle:    u.Handle,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Balance:   u.Balance,
		}
	}

	return c.JSON(res)
}
