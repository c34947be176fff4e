package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"titan/internal/logger"
	"titan/internal/models"
)

// Format is a profile export file format
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml, case-insensitively
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported format %q (use json or yaml)", value)
}

// ImportResult counts what Import or Pull changed
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Export writes every profile to w. Passwords are left out.
func (s *Service) Export(w io.Writer, format Format) error {
	profiles, err := s.List()
	if err != nil {
		return err
	}
	for i := range profiles {
		profiles[i].Password = ""
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(profiles)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(profiles)
		if err == nil {
			err = enc.Close()
		}
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to export profiles: %w", err)
	}
	return nil
}

// Import reads profiles from r and merges them by name: new names are
// created, existing ones updated. An imported profile without a password
// keeps the stored one.
func (s *Service) Import(r io.Reader, format Format) (*ImportResult, error) {
	var raw []map[string]interface{}
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse profiles: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse profiles: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	incoming := make([]models.ConnectionProfile, 0, len(raw))
	for i, data := range raw {
		profile, err := models.ProfileFromMap(data)
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i+1, err)
		}
		incoming = append(incoming, *profile)
	}
	return s.merge(incoming)
}

func (s *Service) merge(incoming []models.ConnectionProfile) (*ImportResult, error) {
	result := &ImportResult{}
	for i := range incoming {
		profile := incoming[i]
		profile.ID = ""

		existing, err := s.GetByName(strings.TrimSpace(profile.Name))
		switch {
		case errors.Is(err, ErrNotFound):
			if err := s.Create(&profile); err != nil {
				return result, err
			}
			result.Created++
		case err != nil:
			return result, err
		default:
			if err := s.Update(existing.ID, &profile); err != nil {
				return result, err
			}
			result.Updated++
		}
	}
	logger.Info("Profiles merged", "created", result.Created, "updated", result.Updated)
	return result, nil
}
