package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/linkfield/linkfield-api/internal/models"
)

// UserRepository resolves the minimal user records the messaging core needs.
type UserRepository interface {
	FindByID(ctx context.Context, id uint) (models.User, error)
	DisplayName(ctx context.Context, id uint) (string, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) DisplayName(ctx context.Context, id uint) (string, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Select("id", "name").First(&user, id).Error; err != nil {
		return "", err
	}
	return user.Name, nil
}
