package authoring

import (
	"context"
	"github.com/google/uuid"
	"io"
	"snapgram/errs"
	"snapgram/events"
	"snapgram/storage"
	"snapgram/storage/models"
	"strings"
)

type NewUser struct {
	Name     string
	Username string
	Email    string
	ImageURL string
}

func (s *Service) CreateUser(ctx context.Context, input NewUser) (*models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Username = strings.TrimSpace(input.Username)
	if input.Name == "" || input.Username == "" {
		return nil, errs.InvalidOperation("name and username are required")
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Username:  input.Username,
		Email:     strings.TrimSpace(input.Email),
		ImageURL:  input.ImageURL,
		CreatedAt: now(),
	}
	err := s.store.Write(ctx, func(tx storage.Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.bus.Emit(ctx, events.NewEvent(events.UserCreated, user.ID, user.ID))
	return user, nil
}

type UserUpdate struct {
	UserID      string
	RequesterID string
	Name        string
	Username    string
	Email       string
	Bio         string
	// File replaces the avatar when set.
	File io.Reader
}

func (s *Service) UpdateUser(ctx context.Context, input UserUpdate) (*models.User, error) {
	if input.UserID != input.RequesterID {
		return nil, errs.InvalidOperation("users can only edit their own profile")
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Username = strings.TrimSpace(input.Username)
	if input.Name == "" || input.Username == "" {
		return nil, errs.InvalidOperation("name and username are required")
	}
	if err := s.store.Read(ctx, func(tx storage.Tx) error {
		_, err := tx.GetUser(ctx, input.UserID)
		return err
	}); err != nil {
		return nil, err
	}

	var image *uploaded
	if input.File != nil {
		uploadedImage, err := s.upload(ctx, input.File)
		if err != nil {
			return nil, err
		}
		image = &uploadedImage
	}

	var updated *models.User
	var replacedImageID string
	err := s.store.Write(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUser(ctx, input.UserID)
		if err != nil {
			return err
		}
		user.Name = input.Name
		user.Username = input.Username
		user.Bio = input.Bio
		if input.Email != "" {
			user.Email = strings.TrimSpace(input.Email)
		}
		if image != nil {
			replacedImageID = user.ImageID
			user.ImageID = image.fileID
			user.ImageURL = image.url
		}
		updated = user
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		if image != nil {
			return nil, errs.NewPartialFailure("update user", err, s.discard(ctx, image.fileID))
		}
		return nil, err
	}

	if replacedImageID != "" {
		s.discard(ctx, replacedImageID)
	}
	s.bus.Emit(ctx, events.NewEvent(events.UserUpdated, updated.ID, updated.ID))
	return updated, nil
}
