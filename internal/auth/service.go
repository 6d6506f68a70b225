package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mapwright/mapwright/internal/typeid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnknownRole        = errors.New("unknown role")
)

type Role string

const (
	// RoleViewer may watch the presentation surface.
	RoleViewer Role = "viewer"
	// RoleEditor may also drive the worker and open or save maps.
	RoleEditor Role = "editor"
)

const (
	DefaultTokenTTL = 12 * time.Hour
	bcryptCost      = 12
)

// Service issues and checks session tokens. A role whose passcode hash is
// empty accepts any passcode.
type Service struct {
	secret    []byte
	passcodes map[Role][]byte
	ttl       time.Duration
	now       func() time.Time
}

func NewService(secret, viewerHash, editorHash string) *Service {
	return &Service{
		secret: []byte(secret),
		passcodes: map[Role][]byte{
			RoleViewer: []byte(viewerHash),
			RoleEditor: []byte(editorHash),
		},
		ttl: DefaultTokenTTL,
		now: time.Now,
	}
}

type Viewer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

type AuthResult struct {
	Token  string `json:"token"`
	Viewer Viewer `json:"viewer"`
}

// Join checks the passcode for role and issues a token for a new viewer ID.
func (s *Service) Join(displayName, passcode string, role Role) (*AuthResult, error) {
	hash, ok := s.passcodes[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if len(hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(hash, []byte(passcode)); err != nil {
			return nil, ErrInvalidCredentials
		}
	}

	v := Viewer{ID: typeid.NewViewerID(), DisplayName: displayName, Role: role}
	token, err := s.issueToken(v)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Viewer: v}, nil
}

func (s *Service) ValidateToken(tokenString string) (*Viewer, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if _, ok := s.passcodes[Role(role)]; !ok {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidToken, role)
	}
	return &Viewer{ID: sub, DisplayName: name, Role: Role(role)}, nil
}

func (s *Service) issueToken(v Viewer) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  v.ID,
		"name": v.DisplayName,
		"role": string(v.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// HashPasscode returns the bcrypt hash to put in the configuration.
func HashPasscode(passcode string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash passcode: %w", err)
	}
	return string(hash), nil
}

// Allows reports whether a holder of r may act as want.
func (r Role) Allows(want Role) bool {
	return r == want || r == RoleEditor
}
