package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserAlreadyExists  = errors.New("email already registered")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
)

const (
	generatedPasswordLength = 30
	passwordAlphabet        = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&*+-=?@_"
)

// Claims carried in every issued token.
type Claims struct {
	UserID int
	Email  string
	Role   string
}

type AuthService struct {
	userRepo           repository.UserRepository
	jwtSecret          string
	jwtExpirationHours time.Duration
	generatedDomain    string
	passwordCost       int
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret string, jwtExpHours time.Duration, generatedDomain string) *AuthService {
	if generatedDomain == "" {
		generatedDomain = "parking.local"
	}
	return &AuthService{
		userRepo:           userRepo,
		jwtSecret:          jwtSecret,
		jwtExpirationHours: jwtExpHours,
		generatedDomain:    generatedDomain,
		passwordCost:       bcrypt.DefaultCost,
	}
}

// WithPasswordCost overrides the bcrypt cost.
func (s *AuthService) WithPasswordCost(cost int) *AuthService {
	s.passwordCost = cost
	return s
}

func (s *AuthService) Register(ctx context.Context, dto domain.RegisterUserDTO) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(dto.Email))
	existingUser, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("AuthService.Register: %w", err)
	}
	if existingUser != nil {
		return nil, ErrUserAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("AuthService.Register: hash password: %w", err)
	}

	role := dto.Role
	if role == "" {
		role = domain.RoleUser
	}
	user := &domain.User{
		Email:    email,
		Password: string(hashedPassword),
		Role:     role,
		Kind:     domain.UserRegistered,
	}

	createdUser, err := s.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("AuthService.Register: %w", err)
	}
	createdUser.Password = ""
	return createdUser, nil
}

func (s *AuthService) Login(ctx context.Context, dto domain.LoginUserDTO) (*domain.AuthResponseDTO, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(dto.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("AuthService.Login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(dto.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	tokenString, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResponseDTO{
		Token:  tokenString,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}

func (s *AuthService) issueToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   strconv.Itoa(user.ID),
		"exp":   now.Add(s.jwtExpirationHours).Unix(),
		"iat":   now.Unix(),
		"role":  user.Role,
		"email": user.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("AuthService: sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken is used by the auth middleware.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, mapClaims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: malformed token", ErrTokenInvalid)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: token expired", ErrTokenInvalid)
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, fmt.Errorf("%w: token not valid yet", ErrTokenInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	sub, err := mapClaims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	userID, err := strconv.Atoi(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q is not a user id", ErrTokenInvalid, sub)
	}
	role, _ := mapClaims["role"].(string)
	email, _ := mapClaims["email"].(string)
	return &Claims{UserID: userID, Email: email, Role: role}, nil
}

// GenerateUser creates the account behind a plate that was never registered.
// The plain password is only ever returned here.
func (s *AuthService) GenerateUser(ctx context.Context) (*domain.User, *domain.GeneratedCredentials, error) {
	password, err := randomPassword(generatedPasswordLength)
	if err != nil {
		return nil, nil, fmt.Errorf("AuthService.GenerateUser: %w", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return nil, nil, fmt.Errorf("AuthService.GenerateUser: hash password: %w", err)
	}
	user := &domain.User{
		Email:    fmt.Sprintf("generated-%s@%s", uuid.NewString(), s.generatedDomain),
		Password: string(hashed),
		Role:     domain.RoleUser,
		Kind:     domain.UserGenerated,
	}
	created, err := s.userRepo.Create(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("AuthService.GenerateUser: %w", err)
	}
	return created, &domain.GeneratedCredentials{Email: created.Email, Password: password}, nil
}

func randomPassword(n int) (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
