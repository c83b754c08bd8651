package services

import (
	"errors"
	"time"

	"bemore/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

// AuthService mints and checks the tokens that admit a client to a session's
// realtime channels.
type AuthService interface {
	GenerateChannelToken(sessionID domain.SessionID, userID domain.UserID) (string, error)
	ValidateChannelToken(tokenString string) (*ChannelClaims, error)
	// Authorize checks that the token was issued for sessionID.
	Authorize(tokenString string, sessionID domain.SessionID) (*ChannelClaims, error)
}

type ChannelClaims struct {
	SessionID domain.SessionID `json:"session_id"`
	UserID    domain.UserID    `json:"user_id"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

func NewAuthService(jwtSecret string, tokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

func (s *authService) GenerateChannelToken(sessionID domain.SessionID, userID domain.UserID) (string, error) {
	now := s.now()
	claims := &ChannelClaims{
		SessionID: sessionID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(sessionID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateChannelToken(tokenString string) (*ChannelClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChannelClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*ChannelClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

func (s *authService) Authorize(tokenString string, sessionID domain.SessionID) (*ChannelClaims, error) {
	claims, err := s.ValidateChannelToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
