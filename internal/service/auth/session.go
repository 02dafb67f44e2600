package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/logger"
	"github.com/civicdesk/civicdesk/internal/models"
	"github.com/civicdesk/civicdesk/internal/repository"
)

// Side effect targets the session flow reports to
// Delivery is best effort and never blocks or fails a request
const (
	TargetEmail = "emailService"
	TargetAudit = "loggingService"
)

// EventDispatcher accepts events for asynchronous delivery
// Dispatch returns as soon as the event is queued, never when it is delivered
type EventDispatcher interface {
	Dispatch(target string, event models.DispatchEvent)
}

type SessionConfig struct {
	// Hasher to compare stored password hashes with submitted secrets
	// Defaults to bcrypt if not set
	Hasher PasswordHasher
}

// Session is what a successful login or refresh hands back
type Session struct {
	Principal models.Principal
	Tokens    models.TokenPair
	AccessTTL time.Duration
}

// SessionService is the orchestration entry point for the token lifecycle:
// it verifies credentials, mints access tokens and rotates refresh tokens
type SessionService struct {
	hasher     PasswordHasher
	signer     *TokenSigner
	refresh    *RefreshManager
	principals repository.PrincipalRepo
	events     EventDispatcher
	logger     logger.Logger

	// Hash compared against when the principal does not exist, so a miss
	// costs the same as a wrong password
	decoyHash string
}

func NewSessionService(
	cfg SessionConfig,
	signer *TokenSigner,
	refresh *RefreshManager,
	principals repository.PrincipalRepo,
	events EventDispatcher,
	l logger.Logger,
) (*SessionService, error) {
	if signer == nil || refresh == nil || principals == nil {
		return nil, errors.New("signer, refresh manager and principal repo must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	decoy, err := hasher.Hash(newOpaqueToken())
	if err != nil {
		return nil, fmt.Errorf("error while preparing decoy hash. Err: %w", err)
	}

	return &SessionService{
		hasher:     hasher,
		signer:     signer,
		refresh:    refresh,
		principals: principals,
		events:     events,
		logger:     l,
		decoyHash:  decoy,
	}, nil
}

// Login verifies (email, password) against the principal stored under
// (email, role) and issues a fresh token pair
// Missing account and wrong password are both apperrors.ErrInvalidCredentials;
// a deactivated account is reported distinctly but only after the password matched
func (s *SessionService) Login(ctx context.Context, email string, password string, role string) (Session, error) {
	parsedRole, err := models.ParseRole(role)
	if err != nil {
		return Session{}, err
	}

	principal, err := s.principals.GetByEmailAndRole(ctx, email, parsedRole)
	if err != nil {
		if errors.Is(err, apperrors.ErrPrincipalNotFound) {
			// Burn comparable time before the uniform rejection
			_ = s.hasher.Compare(s.decoyHash, password)
			return Session{}, apperrors.ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("error while loading principal. Err: %w", err)
	}

	if err := s.hasher.Compare(principal.HashedPassword, password); err != nil {
		return Session{}, apperrors.ErrInvalidCredentials
	}

	if !principal.Active {
		return Session{}, apperrors.ErrAccountDeactivated
	}

	session, err := s.issue(ctx, principal)
	if err != nil {
		return Session{}, err
	}

	s.emit(TargetAudit, "LOGIN", principal, "principal logged in")
	s.emit(TargetEmail, "LOGIN_NOTICE", principal, "new login to your account")

	return session, nil
}

// Refresh exchanges an active refresh token for a new token pair
// The used token is revoked by the rotation inside, so a replay of the same
// string fails with not found
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	token, err := s.refresh.FindActive(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}

	token, err = s.refresh.VerifyNotExpired(ctx, token)
	if err != nil {
		return Session{}, err
	}

	// Resolve the owner's current email, name and active flag
	principal, err := s.principals.GetByID(ctx, token.OwnerID, token.Role)
	if err != nil {
		return Session{}, fmt.Errorf("error while loading token owner. Err: %w", err)
	}
	if !principal.Active {
		return Session{}, apperrors.ErrAccountDeactivated
	}

	session, err := s.issue(ctx, principal)
	if err != nil {
		return Session{}, err
	}

	s.emit(TargetAudit, "TOKEN_REFRESH", principal, "token pair rotated")

	return session, nil
}

// Logout revokes every active refresh token for the pair; always idempotent
func (s *SessionService) Logout(ctx context.Context, ownerID int64, role string) error {
	parsedRole, err := models.ParseRole(role)
	if err != nil {
		return err
	}

	if err := s.refresh.RevokeAll(ctx, ownerID, parsedRole); err != nil {
		return fmt.Errorf("error while revoking tokens on logout. Err: %w", err)
	}

	s.emit(TargetAudit, "LOGOUT", models.Principal{ID: ownerID, Role: parsedRole}, "principal logged out")

	return nil
}

// Revoke invalidates a single refresh token; no-op when unknown
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	return s.refresh.Revoke(ctx, refreshToken)
}

// Validate parses and verifies an access token
func (s *SessionService) Validate(ctx context.Context, access string) (AccessTokenClaims, error) {
	return s.signer.Verify(access)
}

func (s *SessionService) issue(ctx context.Context, principal models.Principal) (Session, error) {
	access, err := s.signer.Mint(principal)
	if err != nil {
		return Session{}, fmt.Errorf("error while minting access token. Err: %w", err)
	}

	// Rotation happens inside: previous tokens for the pair are revoked
	refresh, err := s.refresh.Create(ctx, principal.ID, principal.Role)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Principal: principal,
		Tokens: models.TokenPair{
			Access:  access,
			Refresh: models.IssuedToken{Value: refresh.Token, ExpiresAt: refresh.ExpiresAt},
		},
		AccessTTL: s.signer.AccessTTL(),
	}, nil
}

func (s *SessionService) emit(target string, eventType string, principal models.Principal, message string) {
	if s.events == nil {
		return
	}

	s.events.Dispatch(target, models.DispatchEvent{
		EventType: eventType,
		UserID:    principal.ID,
		Reference: principal.Role.String(),
		Message:   message,
		Timestamp: time.Now(),
	})
}
