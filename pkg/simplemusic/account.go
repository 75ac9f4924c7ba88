package simplemusic

import (
	"context"
	"errors"
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

const (
	minNameLength = 3
	maxNameLength = 30
)

// RegisterUser creates a listener account. The optional profile image is
// uploaded first and deleted again if the record cannot be written.
func (s *service) RegisterUser(ctx context.Context, req RegisterUserRequest) (*User, error) {
	name := normalizeText(req.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	email := NormalizeEmail(req.Email)
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if req.PasswordHash == "" {
		return nil, ErrMissingPassword
	}

	if _, err := s.repository.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	op := s.begin("register_user")
	defer s.finish(op)

	var image *UploadResult
	if hasUpload(req.ProfileImage) {
		op.enter(StateUploading)
		var err error
		image, err = s.uploadAsset(ctx, req.ProfileImage, ContentClassImage, s.profileFolder)
		if err != nil {
			return nil, op.fail(err)
		}
	}

	op.enter(StatePersisting)
	now := s.now()
	user := &User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: req.PasswordHash,
		Gender:       normalizeText(req.Gender),
		Role:         RoleListener,
		PlaylistIDs:  []uuid.UUID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if image != nil {
		user.ProfileImageURL = image.URL
	}

	if err := s.repository.CreateUser(ctx, user); err != nil {
		if image != nil {
			op.enter(StateCompensating)
			s.compensate(ctx, op, image.URL, ContentClassImage)
		}
		return nil, op.fail(err)
	}

	op.done()
	return user, nil
}

// GetUser returns a user by id.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repository.GetUser(ctx, id)
}

// FindUserByEmail looks an account up by its normalized email.
func (s *service) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.repository.GetUserByEmail(ctx, NormalizeEmail(email))
}

// UpgradeToCreator grants the caller the creator role. Already being a
// creator is not an error.
func (s *service) UpgradeToCreator(ctx context.Context, caller Caller) (*User, error) {
	user, err := s.repository.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if user.Role == RoleCreator {
		return user, nil
	}

	user.Role = RoleCreator
	user.UpdatedAt = s.now()
	if err := s.repository.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user upgraded to creator", "user_id", user.ID)
	return user, nil
}

// UpdateProfile updates the caller's own profile. A new profile image is
// uploaded before the previous one is deleted.
func (s *service) UpdateProfile(ctx context.Context, caller Caller, req UpdateProfileRequest) (*User, error) {
	if req.UserID != caller.UserID {
		return nil, ErrNotOwner
	}

	op := s.begin("update_profile")
	defer s.finish(op)

	user, err := s.repository.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, op.fail(err)
	}
	if req.Name != nil {
		if name := normalizeText(*req.Name); name != "" {
			if err := validateName(name); err != nil {
				return nil, op.fail(err)
			}
		}
	}

	if hasUpload(req.ProfileImage) {
		op.enter(StateUploading)
		image, err := s.uploadAsset(ctx, req.ProfileImage, ContentClassImage, s.profileFolder)
		if err != nil {
			return nil, op.fail(err)
		}
		op.enter(StateDeleting)
		s.deleteBestEffort(ctx, user.ProfileImageURL, ContentClassImage, "user_id", user.ID, "op", op.Name)
		user.ProfileImageURL = image.URL
	}

	applyText(&user.Name, req.Name)
	applyText(&user.Gender, req.Gender)

	op.enter(StatePersisting)
	user.UpdatedAt = s.now()
	if err := s.repository.UpdateUser(ctx, user); err != nil {
		return nil, op.fail(err)
	}

	op.done()
	return user, nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return ErrInvalidName
	}
	return nil
}
