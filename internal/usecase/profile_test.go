package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"careerdesk/internal/cache"
	"careerdesk/internal/domain"
)

type mockProfileCache struct {
	profile *domain.Profile
	saveErr error
}

func (m *mockProfileCache) Profile() (domain.Profile, error) {
	if m.profile == nil {
		return domain.Profile{}, cache.ErrNotFound
	}
	return *m.profile, nil
}

func (m *mockProfileCache) SaveProfile(p domain.Profile) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.profile = &p
	return nil
}

func TestProfileGet_ZeroValueWhenNeverWritten(t *testing.T) {
	svc, err := NewProfileService(&mockProfileCache{}, discardLogger())
	require.NoError(t, err)
	require.Equal(t, domain.Profile{}, svc.Get())
}

func TestProfileUpdate_RequiresName(t *testing.T) {
	svc, err := NewProfileService(&mockProfileCache{}, discardLogger())
	require.NoError(t, err)
	expectStoreError(t, svc.Update(domain.Profile{Email: "a@b.c"}), ErrorInvalidInput)
}

func TestProfileUpdate_StampsAndPersists(t *testing.T) {
	c := &mockProfileCache{}
	svc, err := NewProfileService(c, discardLogger())
	require.NoError(t, err)

	require.NoError(t, svc.Update(domain.Profile{Name: "Dana", Email: "dana@example.com"}))
	require.NotNil(t, c.profile)
	require.Equal(t, "Dana", c.profile.Name)
	require.False(t, c.profile.UpdatedAt.IsZero())

	got := svc.Get()
	require.Equal(t, "Dana", got.Name)
}
