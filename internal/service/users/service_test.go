package users

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirinyoku/tix-events/internal/auth"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg Config) (*Service, *auth.Service) {
	t.Helper()

	tokens, err := auth.New(auth.Config{Secret: []byte("test"), TTL: time.Hour})
	require.NoError(t, err)

	return New(memory.NewStore(), tokens, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg), tokens
}

func register(t *testing.T, s *Service, email string) *domain.User {
	t.Helper()
	u, err := s.Register(context.Background(), RegisterInput{
		Email: email, Password: "secret1", Name: "Some One", Role: domain.RoleClient,
	})
	require.NoError(t, err)
	return u
}

func strPtr(s string) *string { return &s }

func TestRegister_DistinctEmailsGetDistinctIDs(t *testing.T) {
	s, _ := newTestService(t, Config{})

	a := register(t, s, "a@example.com")
	b := register(t, s, "b@example.com")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, "secret1", a.PasswordHash)
	assert.Empty(t, a.OrganizationName)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	s, _ := newTestService(t, Config{})
	register(t, s, "dup@example.com")

	_, err := s.Register(context.Background(), RegisterInput{
		Email: "DUP@example.com", Password: "secret1", Name: "Other", Role: domain.RoleClient,
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_OrganizerNeedsOrganization(t *testing.T) {
	s, _ := newTestService(t, Config{})

	_, err := s.Register(context.Background(), RegisterInput{
		Email: "org@example.com", Password: "secret1", Name: "Org", Role: domain.RoleOrganizer,
	})
	assert.ErrorIs(t, err, ErrOrganizationName)

	u, err := s.Register(context.Background(), RegisterInput{
		Email: "org@example.com", Password: "secret1", Name: "Org", Role: domain.RoleOrganizer,
		OrganizationName: "Acme Live",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Live", u.OrganizationName)
}

func TestLogin_IssuesTokenForIdentity(t *testing.T) {
	s, tokens := newTestService(t, Config{})
	u := register(t, s, "ana@example.com")

	token, got, err := s.Login(context.Background(), "Ana@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	id, err := tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.UserID)
	assert.Equal(t, "ana@example.com", id.Email)
}

func TestLogin_BadCredentials(t *testing.T) {
	s, _ := newTestService(t, Config{})
	register(t, s, "ana@example.com")

	_, _, err := s.Login(context.Background(), "ana@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = s.Login(context.Background(), "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdate_ChangesProfileAndPassword(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Config{})
	u := register(t, s, "ana@example.com")

	got, err := s.Update(ctx, u.ID, u.ID, UpdateInput{
		Name:     strPtr("Ana Maria"),
		Email:    strPtr("ana.maria@example.com"),
		Password: strPtr("new-secret"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.Name)
	assert.Equal(t, int64(2), got.Version)

	_, _, err = s.Login(ctx, "ana.maria@example.com", "new-secret")
	assert.NoError(t, err)
}

func TestUpdate_EmailTakenByAnotherUser(t *testing.T) {
	s, _ := newTestService(t, Config{})
	register(t, s, "a@example.com")
	b := register(t, s, "b@example.com")

	_, err := s.Update(context.Background(), b.ID, b.ID, UpdateInput{Email: strPtr("a@example.com")})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUpdateAndDelete_MissingUserIsNotFound(t *testing.T) {
	s, _ := newTestService(t, Config{})

	_, err := s.Update(context.Background(), "ghost", "ghost", UpdateInput{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = s.Delete(context.Background(), "ghost", "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestOwnership(t *testing.T) {
	ctx := context.Background()

	open, _ := newTestService(t, Config{})
	a := register(t, open, "a@example.com")
	b := register(t, open, "b@example.com")
	_, err := open.Update(ctx, b.ID, a.ID, UpdateInput{Name: strPtr("Renamed")})
	assert.NoError(t, err)

	strict, _ := newTestService(t, Config{EnforceOwnership: true})
	a = register(t, strict, "a@example.com")
	b = register(t, strict, "b@example.com")
	_, err = strict.Update(ctx, b.ID, a.ID, UpdateInput{Name: strPtr("Renamed")})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, strict.Delete(ctx, b.ID, a.ID), ErrForbidden)
	assert.NoError(t, strict.Delete(ctx, a.ID, a.ID))
}

func TestBoughtTickets_EmptyForNewUser(t *testing.T) {
	s, _ := newTestService(t, Config{})
	u := register(t, s, "a@example.com")

	got, err := s.BoughtTickets(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = s.BoughtTickets(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
