// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for User rows,
// focused on the agent-resolution needs of the importer: lookups by real
// name and username, uniqueness checks for usernames and phone numbers, and
// placeholder-agent creation.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// FindAgentByRealName fetches the first agent whose display name matches,
// or ErrNotFound.
func FindAgentByRealName(ctx context.Context, db *gorm.DB, realName string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("role = ? AND real_name = ?", domain.RoleAgent, realName).
		Order("created_at ASC").
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindAgentByUsername fetches the agent with the given username, or ErrNotFound.
func FindAgentByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("role = ? AND username = ?", domain.RoleAgent, username).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FirstAgent returns the oldest agent row, or ErrNotFound when no agent
// exists yet. Used as the fallback assignee for rows without an agent name.
func FirstAgent(ctx context.Context, db *gorm.DB) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("role = ?", domain.RoleAgent).
		Order("created_at ASC").
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UsernameExists reports whether any user row holds the given username.
func UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("username = ?", username).
		Count(&n).Error
	return n > 0, err
}

// PhoneExists reports whether any user row holds the given phone number.
func PhoneExists(ctx context.Context, db *gorm.DB, phone string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("phone = ?", phone).
		Count(&n).Error
	return n > 0, err
}

// CreateAgent inserts a verified agent row with a UUID primary key.
func CreateAgent(ctx context.Context, db *gorm.DB, username, phone, realName, company string) (*domain.User, error) {
	u := &domain.User{
		ID:        uuid.NewString(),
		Username:  username,
		Phone:     phone,
		Role:      domain.RoleAgent,
		RealName:  realName,
		Company:   company,
		Verified:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// SetAgentRealName backfills the display name of an agent matched by
// username only.
func SetAgentRealName(ctx context.Context, db *gorm.DB, u *domain.User, realName string) error {
	return db.WithContext(ctx).Model(u).Update("real_name", realName).Error
}
