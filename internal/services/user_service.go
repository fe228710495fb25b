package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/platform/auth"
	"github.com/clearbrook/storefront/internal/platform/textutil"
	"github.com/clearbrook/storefront/internal/repositories"
)

// IdentityServiceDeps bundles the dependencies required to construct an identity service.
type IdentityServiceDeps struct {
	Users       repositories.UserRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type identityService struct {
	users repositories.UserRepository
	clock func() time.Time
	idGen func() string
}

var _ IdentityService = (*identityService)(nil)

// NewIdentityService wires dependencies into a concrete IdentityService implementation.
func NewIdentityService(deps IdentityServiceDeps) (IdentityService, error) {
	if deps.Users == nil {
		return nil, errors.New("identity service: user repository is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &identityService{
		users: deps.Users,
		clock: defaultClock(deps.Clock),
		idGen: idGen,
	}, nil
}

// Resolve maps a verified bearer identity onto the local user record, creating
// it on first sight. Concurrent first requests race on the unique external id;
// the loser re-reads the winner's row.
func (s *identityService) Resolve(ctx context.Context, identity auth.Identity) (User, error) {
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return User{}, fmt.Errorf("%w: identity subject is required", domain.ErrValidationFailed)
	}

	user, err := s.users.FindByExternalID(ctx, subject)
	if err == nil {
		return user, nil
	}
	translated := translateRepositoryError(err)
	if !errors.Is(translated, domain.ErrNotFound) {
		return User{}, translated
	}

	role := domain.RoleCustomer
	if identity.HasRole(auth.RoleAdmin) {
		role = domain.RoleAdmin
	}

	user = User{
		ID:          s.idGen(),
		ExternalID:  subject,
		DisplayName: textutil.CleanText(identity.DisplayName),
		Role:        role,
		Email:       strings.TrimSpace(identity.Email),
		CreatedAt:   s.clock().UTC(),
	}

	if err := s.users.Insert(ctx, user); err != nil {
		translated := translateRepositoryError(err)
		if errors.Is(translated, domain.ErrInvalidState) {
			return s.lookupExisting(ctx, subject)
		}
		return User{}, translated
	}
	return user, nil
}

func (s *identityService) lookupExisting(ctx context.Context, subject string) (User, error) {
	user, err := s.users.FindByExternalID(ctx, subject)
	if err != nil {
		return User{}, translateRepositoryError(err)
	}
	return user, nil
}
