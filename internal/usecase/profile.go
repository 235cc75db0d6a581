package usecase

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"careerdesk/internal/cache"
	"careerdesk/internal/domain"
)

// ProfileCache persists the account profile.
type ProfileCache interface {
	Profile() (domain.Profile, error)
	SaveProfile(p domain.Profile) error
}

// ProfileService reads and edits the locally cached account profile. It is
// independent of the chat subsystem.
type ProfileService struct {
	cache  ProfileCache
	logger *slog.Logger
}

func NewProfileService(c ProfileCache, logger *slog.Logger) (*ProfileService, error) {
	if c == nil {
		return nil, errors.New("usecase: profile cache must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{cache: c, logger: logger}, nil
}

// Get returns the cached profile. A never-written profile is the zero value,
// not an error.
func (p *ProfileService) Get() domain.Profile {
	prof, err := p.cache.Profile()
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			p.logger.Warn("reading cached profile failed", "err", err)
		}
		return domain.Profile{}
	}
	return prof
}

// Update validates and persists the profile, stamping UpdatedAt.
func (p *ProfileService) Update(prof domain.Profile) error {
	if strings.TrimSpace(prof.Name) == "" {
		return newError(ErrorInvalidInput, "empty_name", nil)
	}
	prof.UpdatedAt = time.Now().UTC()
	if err := p.cache.SaveProfile(prof); err != nil {
		return newError(ErrorInternal, "persist_profile", err)
	}
	return nil
}
