package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"medscan/internal/domain"
	"medscan/internal/service"
)

// AuthManager issues and validates the short-lived bearer tokens used by the
// counter UI. Credential checks themselves live in the service layer; this
// type only signs and parses.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	svc      *service.Service
}

type pharmacyClaims struct {
	jwtlib.RegisteredClaims
	Name string `json:"name"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, svc *service.Service) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		svc:      svc,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	pharmacist, err := a.svc.Login(ctx, req)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(pharmacist.ID, pharmacist.Name, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Name:        pharmacist.Name,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &pharmacyClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{PharmacistID: sub, Name: claims.Name}, nil
}

func (a *AuthManager) sign(pharmacistID, name string, expiresAt time.Time) (string, error) {
	claims := pharmacyClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   pharmacistID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "medscan",
		},
		Name: name,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
