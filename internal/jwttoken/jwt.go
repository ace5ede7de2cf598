package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

// Claims represents the JWT claims for admin API tokens.
type Claims struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	Ver      string `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

// APIVersion returns the API version the token was minted for.
// Tokens without a version claim are treated as v1.
func (c *Claims) APIVersion() id.APIVersion {
	if c.Ver == "" {
		return id.APIVersionV1
	}
	v, err := id.ParseAPIVersion(c.Ver)
	if err != nil {
		return id.APIVersionV1
	}
	return v
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAdminToken mints a signed HS256 token for the given operator.
// The returned jti feeds the revocation store and audit trail.
func (s *JWTService) GenerateAdminToken(operator, role string, expiresIn time.Duration) (token string, jti string, err error) {
	jti = uuid.NewString()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: operator,
		Role:     role,
		Ver:      id.DefaultVersion().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        jti,
		},
	})

	token, err = newToken.SignedString(s.signingKey)
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

// GenerateUserToken mints a short-lived self-service token carrying the
// user ID as subject. Used for data-export download links where a Telegram
// user needs to hit the HTTP API without an operator token.
func (s *JWTService) GenerateUserToken(userID id.UserID, expiresIn time.Duration) (token string, jti string, err error) {
	if userID.IsNil() {
		return "", "", dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	jti = uuid.NewString()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "user",
		Ver:  id.DefaultVersion().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        jti,
		},
	})

	token, err = newToken.SignedString(s.signingKey)
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}
