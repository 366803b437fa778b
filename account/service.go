package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("account: password must be at least 8 characters")
	// ErrUnauthorized signals the actor lacks the role for the operation.
	ErrUnauthorized = errors.New("account: unauthorized")
)

// Service handles authentication and actor administration.
type Service struct {
	repo      Repository
	jwtSecret []byte
	now       func() time.Time
}

// LoginResult bundles the token and domain actor returned after a successful login.
type LoginResult struct {
	Token string
	Actor Actor
}

// NewService creates a new account service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// WithClock overrides the service clock, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new actor account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Actor, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.Email == "" || req.FullName == "" {
		return nil, fmt.Errorf("account: email and full_name are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("account: hash password: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleCreator
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("account: invalid role %q", role)
	}

	actor, err := s.repo.Create(ctx, CreateParams{
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &actor, nil
}

// Login authenticates an actor and returns a JWT token. Suspended and banned
// actors may still log in; the gate blocks their lifecycle mutations instead.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	actor, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(actor.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(actor.ID, actor.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("account: generate token: %w", err)
	}

	return LoginResult{Token: token, Actor: actor}, nil
}

// GetByID retrieves actor information by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Actor, error) {
	actor, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &actor, nil
}

// ListCreators returns up to limit creator profiles for brand discovery.
func (s *Service) ListCreators(ctx context.Context, limit int) ([]Actor, error) {
	return s.repo.ListByRole(ctx, RoleCreator, limit)
}

// Suspend places the target actor in suspended standing. Admin only. Bans
// are irreversible, so a banned actor cannot be downgraded to suspended.
func (s *Service) Suspend(ctx context.Context, admin Actor, targetID, reason string) (Actor, error) {
	if err := s.requireAdmin(admin); err != nil {
		return Actor{}, err
	}
	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return Actor{}, err
	}
	if target.BannedAt != nil {
		return Actor{}, fmt.Errorf("account: cannot suspend a banned actor")
	}
	now := s.now().UTC()
	return s.repo.SetStanding(ctx, targetID, StandingParams{
		SuspendedAt:      &now,
		SuspensionReason: nullableReason(reason),
	})
}

// Reactivate clears a suspension. Admin only. Bans are irreversible and are
// not cleared here.
func (s *Service) Reactivate(ctx context.Context, admin Actor, targetID string) (Actor, error) {
	if err := s.requireAdmin(admin); err != nil {
		return Actor{}, err
	}
	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return Actor{}, err
	}
	if target.BannedAt != nil {
		return Actor{}, fmt.Errorf("account: cannot reactivate a banned actor")
	}
	return s.repo.SetStanding(ctx, targetID, StandingParams{})
}

// Ban permanently restricts the target actor. Admin only.
func (s *Service) Ban(ctx context.Context, admin Actor, targetID, reason string) (Actor, error) {
	if err := s.requireAdmin(admin); err != nil {
		return Actor{}, err
	}
	now := s.now().UTC()
	return s.repo.SetStanding(ctx, targetID, StandingParams{
		BannedAt:  &now,
		BanReason: nullableReason(reason),
	})
}

func (s *Service) requireAdmin(actor Actor) error {
	if err := CheckAccess(actor); err != nil {
		return err
	}
	if !actor.Role.IsAdmin() {
		return ErrUnauthorized
	}
	return nil
}

// VerifyToken validates a JWT token and returns the actor ID and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("account: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		actorID, ok := claims["actor_id"].(string)
		if !ok {
			return "", "", fmt.Errorf("account: invalid actor_id in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", fmt.Errorf("account: invalid role in token")
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return "", "", fmt.Errorf("account: invalid role %q in token", roleStr)
		}
		return actorID, role, nil
	}

	return "", "", fmt.Errorf("account: invalid token")
}

func (s *Service) generateToken(actorID string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"actor_id": actorID,
		"role":     role,
		"exp":      s.now().Add(24 * time.Hour).Unix(),
		"iat":      s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func isValidRole(role Role) bool {
	switch role {
	case RoleBrand, RoleCreator, RoleAdmin:
		return true
	default:
		return false
	}
}

func nullableReason(reason string) *string {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
