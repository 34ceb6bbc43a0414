package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirinyoku/tix-events/internal/auth"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
	"github.com/kirinyoku/tix-events/internal/uow"
)

type Config struct {
	// EnforceOwnership restricts profile changes to the profile's owner.
	EnforceOwnership bool
}

type Service struct {
	store  repository.Store
	uow    *uow.UoW
	tokens *auth.Service
	log    *slog.Logger
	cfg    Config
}

func New(store repository.Store, tokens *auth.Service, log *slog.Logger, cfg Config) *Service {
	return &Service{
		store:  store,
		uow:    uow.NewUoW(store),
		tokens: tokens,
		log:    log,
		cfg:    cfg,
	}
}

type RegisterInput struct {
	Email            string
	Password         string
	Name             string
	Role             domain.Role
	OrganizationName string
}

// Register creates a user with a hashed credential.
//
// Returns:
//   - *domain.User: the created user.
//   - error: users.ErrEmailTaken if the email is already registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	const op = "service.users.Register"

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u := &domain.User{
		Email:         strings.TrimSpace(in.Email),
		Name:          strings.TrimSpace(in.Name),
		Role:          in.Role,
		PasswordHash:  hash,
		BoughtTickets: []domain.PurchasedTicket{},
	}

	if in.Role == domain.RoleOrganizer {
		u.OrganizationName = strings.TrimSpace(in.OrganizationName)
		if u.OrganizationName == "" {
			return nil, fmt.Errorf("%s: %w", op, ErrOrganizationName)
		}
	}

	if err := s.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user registered", slog.String("user_id", u.ID), slog.String("role", string(u.Role)))

	return u, nil
}

// Login checks credentials and issues a session token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
//
// Returns:
//   - string: signed token.
//   - *domain.User: the authenticated user.
//   - error: users.ErrInvalidCredentials on any credential mismatch.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	const op = "service.users.Login"

	u, err := s.store.Users().GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.tokens.IssueToken(auth.Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	const op = "service.users.Get"

	u, err := s.store.Users().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// UpdateInput holds the profile fields a user may change. Nil fields are kept.
type UpdateInput struct {
	Email            *string
	Password         *string
	Name             *string
	OrganizationName *string
}

// Update applies in to the user's profile. Purchases and role are not
// editable here.
//
// Returns:
//   - error: users.ErrUserNotFound if the user does not exist.
//   - error: users.ErrForbidden if ownership is enforced and callerID is someone else.
//   - error: users.ErrEmailTaken if the new email belongs to another user.
func (s *Service) Update(ctx context.Context, callerID, id string, in UpdateInput) (*domain.User, error) {
	const op = "service.users.Update"

	if err := s.checkOwner(callerID, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var hash string
	if in.Password != nil {
		h, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		hash = h
	}

	var out *domain.User

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		u, err := tx.Users().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if in.Email != nil {
			u.Email = strings.TrimSpace(*in.Email)
		}
		if in.Name != nil {
			u.Name = strings.TrimSpace(*in.Name)
		}
		if in.OrganizationName != nil && u.Role == domain.RoleOrganizer {
			u.OrganizationName = strings.TrimSpace(*in.OrganizationName)
			if u.OrganizationName == "" {
				return ErrOrganizationName
			}
		}
		if hash != "" {
			u.PasswordHash = hash
		}

		if err := tx.Users().Update(ctx, u); err != nil {
			return err
		}

		out = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	return out, nil
}

// Delete removes the user.
//
// Returns:
//   - error: users.ErrUserNotFound if the user does not exist.
//   - error: users.ErrForbidden if ownership is enforced and callerID is someone else.
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	const op = "service.users.Delete"

	if err := s.checkOwner(callerID, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Users().Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	s.log.Info("user deleted", slog.String("user_id", id))

	return nil
}

// BoughtTickets returns the user's purchases in the order they were made.
func (s *Service) BoughtTickets(ctx context.Context, id string) ([]domain.PurchasedTicket, error) {
	const op = "service.users.BoughtTickets"

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u.BoughtTickets, nil
}

func (s *Service) checkOwner(callerID, id string) error {
	if s.cfg.EnforceOwnership && callerID != id {
		return ErrForbidden
	}
	return nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrEmailTaken
	case errors.Is(err, repository.ErrStaleVersion):
		return ErrConcurrentUpdate
	}
	return err
}
