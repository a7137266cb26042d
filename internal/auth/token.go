package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
)

const (
	tokenIssuer   = "finished-api"
	tokenAudience = "finished-client"
)

// Claims identify the owner an access token acts for.
type Claims struct {
	Sub  string
	Name string
	JTI  string
	Exp  int64
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// symmetricKey stretches the configured secret to a v4.local key, so any
// secret length works.
func symmetricKey(secret []byte) (paseto.V4SymmetricKey, error) {
	sum := sha256.Sum256(secret)
	return paseto.V4SymmetricKeyFromBytes(sum[:])
}

// IssueToken encrypts claims into a PASETO v4.local token.
func IssueToken(secret []byte, claims Claims) (string, error) {
	key, err := symmetricKey(secret)
	if err != nil {
		return "", fmt.Errorf("token key: %w", err)
	}
	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(time.Now())
	token.SetSubject(claims.Sub)
	token.SetJti(claims.JTI)
	token.SetExpiration(time.Unix(claims.Exp, 0))
	token.SetString("name", claims.Name)
	return token.V4Encrypt(key, nil), nil
}

// ParseToken decrypts token and checks its expiry. Tokens that fail to
// decrypt or lack a claim are ErrInvalidToken.
func ParseToken(secret []byte, token string) (Claims, error) {
	key, err := symmetricKey(secret)
	if err != nil {
		return Claims{}, fmt.Errorf("token key: %w", err)
	}
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ForAudience(tokenAudience))

	parsed, err := parser.ParseV4Local(key, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	claims.Sub, _ = parsed.GetSubject()
	claims.JTI, _ = parsed.GetJti()
	claims.Name, _ = parsed.GetString("name")
	exp, err := parsed.GetExpiration()
	if err != nil || claims.Sub == "" || claims.Name == "" || claims.JTI == "" {
		return Claims{}, ErrInvalidToken
	}
	claims.Exp = exp.Unix()
	if !time.Now().Before(exp) {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

// HashToken is the form refresh tokens are stored under.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
