package server

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ReportSigner issues short-lived download tokens so report links pasted
// into chat clients work without the proxy identity headers.
type ReportSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewReportSigner(secret []byte, ttl time.Duration) *ReportSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ReportSigner{secret: secret, ttl: ttl, now: time.Now}
}

// Sign issues a token scoped to one report file.
func (s *ReportSigner) Sign(filename string) (string, error) {
	claims := jwt.MapClaims{
		"sub": filename,
		"exp": s.now().Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the token and that it was issued for the given file.
func (s *ReportSigner) Verify(token, filename string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid token")
	}
	if sub, _ := claims["sub"].(string); sub != filename {
		return errors.New("token not issued for this report")
	}
	return nil
}
