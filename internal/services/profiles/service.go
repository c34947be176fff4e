package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"titan/internal/api"
	"titan/internal/crypto"
	"titan/internal/logger"
	"titan/internal/models"
)

var (
	// ErrNotFound is returned when no profile matches
	ErrNotFound = errors.New("profile not found")
	// ErrDuplicateName is returned when another profile already uses the name
	ErrDuplicateName = errors.New("profile name already in use")
)

// Service manages persisted connection profiles and their passwords
type Service struct {
	db      *gorm.DB
	box     *crypto.Box
	backoff time.Duration
}

// NewService creates a new profile service
func NewService(db *gorm.DB, box *crypto.Box) *Service {
	return &Service{db: db, box: box, backoff: pullBackoff}
}

// List returns all profiles ordered by name, without passwords
func (s *Service) List() ([]models.ConnectionProfile, error) {
	var profiles []models.ConnectionProfile
	if err := s.db.Order("name").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// Get retrieves a profile by ID, without its password
func (s *Service) Get(id string) (*models.ConnectionProfile, error) {
	return s.first("id = ?", id)
}

// GetByName retrieves a profile by name, without its password
func (s *Service) GetByName(name string) (*models.ConnectionProfile, error) {
	return s.first("name = ?", name)
}

func (s *Service) first(query string, arg string) (*models.ConnectionProfile, error) {
	var profile models.ConnectionProfile
	err := s.db.Where(query, arg).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}

// Resolve finds a profile by ID or name and restores its plaintext password
func (s *Service) Resolve(nameOrID string) (*models.ConnectionProfile, error) {
	profile, err := s.Get(nameOrID)
	if errors.Is(err, ErrNotFound) {
		profile, err = s.GetByName(nameOrID)
	}
	if err != nil {
		return nil, err
	}

	password, err := s.reveal(profile)
	if err != nil {
		return nil, err
	}
	profile.Password = password
	return profile, nil
}

// Create stores a new profile. Its password goes to the keychain when
// SaveToKeychain is set, otherwise it is encrypted into the store.
func (s *Service) Create(profile *models.ConnectionProfile) error {
	if err := validate(profile); err != nil {
		return err
	}
	if err := s.checkName(profile.Name, ""); err != nil {
		return err
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.seal(profile); err != nil {
			return err
		}
		return tx.Create(profile).Error
	})
	if err != nil {
		if profile.SaveToKeychain {
			s.dropPassword(profile)
		}
		return fmt.Errorf("failed to create profile %q: %w", profile.Name, err)
	}

	logger.Info("Profile created", "profile", profile.Name, "driver", profile.Driver, "keychain", profile.SaveToKeychain)
	return nil
}

// Update replaces the profile with the given ID. An empty password keeps the
// stored one, moving it between keychain and store if SaveToKeychain changed.
func (s *Service) Update(id string, changes *models.ConnectionProfile) error {
	if err := validate(changes); err != nil {
		return err
	}
	existing, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.checkName(changes.Name, id); err != nil {
		return err
	}

	var previous string
	if changes.Password == "" || (existing.SaveToKeychain && changes.SaveToKeychain) {
		if previous, err = s.reveal(existing); err != nil {
			return err
		}
	}
	password := changes.Password
	if password == "" {
		password = previous
	}

	updated := *changes
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.Password = password
	if updated.Driver == "" {
		updated.Driver = existing.Driver
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.seal(&updated); err != nil {
			return err
		}
		return tx.Save(&updated).Error
	})
	if err != nil {
		switch {
		case updated.SaveToKeychain && !existing.SaveToKeychain:
			s.dropPassword(&updated)
		case updated.SaveToKeychain && password != previous:
			if err := crypto.SavePassword(existing.ID, previous); err != nil {
				logger.Warn("Failed to restore keychain entry", "profile", existing.Name, "error", err)
			}
		}
		return fmt.Errorf("failed to update profile %q: %w", updated.Name, err)
	}

	if existing.SaveToKeychain && !updated.SaveToKeychain {
		if err := crypto.DeletePassword(existing.ID); err != nil {
			logger.Warn("Failed to remove old keychain entry", "profile", updated.Name, "error", err)
		}
	}
	return nil
}

// Delete removes a profile and its keychain entry
func (s *Service) Delete(id string) error {
	profile, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(&models.ConnectionProfile{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if profile.SaveToKeychain {
		if err := crypto.DeletePassword(id); err != nil {
			return err
		}
	}
	logger.Info("Profile deleted", "profile", profile.Name)
	return nil
}

// Pull fetches shared profiles from a remote catalogue and merges them by name.
// Transport failures are retried with backoff.
func (s *Service) Pull(ctx context.Context, client *api.Client, team string) (*ImportResult, error) {
	var remote []models.ConnectionProfile
	err := retryWithBackoff(ctx, func() error {
		var err error
		remote, err = api.Do[[]models.ConnectionProfile](ctx, client, api.ListProfilesRequest(team))
		return err
	}, pullAttempts, s.backoff, transient)
	if err != nil {
		return nil, fmt.Errorf("failed to pull profiles from %s: %w", client.BasePath(), err)
	}
	logger.Info("Pulled profiles", "source", client.BasePath(), "count", len(remote))
	return s.merge(remote)
}

// seal moves the plaintext password into its storage. The profile must have an ID.
func (s *Service) seal(profile *models.ConnectionProfile) error {
	if profile.SaveToKeychain {
		profile.PasswordEnc = ""
		return crypto.SavePassword(profile.ID, profile.Password)
	}
	if profile.Password == "" {
		profile.PasswordEnc = ""
		return nil
	}
	enc, err := s.box.Encrypt(profile.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}
	profile.PasswordEnc = enc
	return nil
}

// dropPassword removes a keychain entry written for a row that was never stored
func (s *Service) dropPassword(profile *models.ConnectionProfile) {
	if err := crypto.DeletePassword(profile.ID); err != nil {
		logger.Warn("Failed to remove keychain entry", "profile", profile.Name, "error", err)
	}
}

func (s *Service) reveal(profile *models.ConnectionProfile) (string, error) {
	if profile.SaveToKeychain {
		password, err := crypto.LoadPassword(profile.ID)
		if errors.Is(err, crypto.ErrPasswordNotFound) {
			logger.Warn("No keychain password for profile", "profile", profile.Name)
			return "", nil
		}
		return password, err
	}
	if profile.PasswordEnc == "" {
		return "", nil
	}
	password, err := s.box.Decrypt(profile.PasswordEnc)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt password for %q: %w", profile.Name, err)
	}
	return password, nil
}

func (s *Service) checkName(name, exceptID string) error {
	var count int64
	q := s.db.Model(&models.ConnectionProfile{}).Where("name = ?", name)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check profile name: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	return nil
}

func validate(profile *models.ConnectionProfile) error {
	if profile == nil {
		return errors.New("profile is required")
	}
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return errors.New("profile name is required")
	}
	return nil
}
