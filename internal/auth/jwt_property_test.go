package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func signed(userID string, roles []string, expiresIn time.Duration, secret string) string {
	claims := jwt.MapClaims{
		"user_id": userID,
		"roles":   roles,
		"exp":     time.Now().Add(expiresIn).Unix(),
		"iat":     time.Now().Unix(),
	}
	s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return s
}

func genRoles() gopter.Gen {
	return gen.SliceOf(gen.OneConstOf("customer", "agent", "admin"))
}

func TestProperty_TokenAcceptance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	validator := NewJWTValidator(testSecret)

	properties.Property("unexpired tokens signed with the secret are accepted", prop.ForAll(
		func(userID string, roles []string, minutes int) bool {
			claims, err := validator.ValidateToken(signed(userID, roles, time.Duration(minutes)*time.Minute, testSecret))
			return err == nil && claims.UserID == userID && len(claims.Roles) == len(roles)
		},
		gen.Identifier(),
		genRoles(),
		gen.IntRange(1, 120),
	))

	properties.Property("expired tokens are rejected", prop.ForAll(
		func(userID string, roles []string, minutes int) bool {
			_, err := validator.ValidateToken(signed(userID, roles, -time.Duration(minutes)*time.Minute, testSecret))
			return err != nil
		},
		gen.Identifier(),
		genRoles(),
		gen.IntRange(1, 120),
	))

	properties.Property("tokens signed with another secret are rejected", prop.ForAll(
		func(userID string, roles []string) bool {
			_, err := validator.ValidateToken(signed(userID, roles, time.Hour, "another-secret"))
			return err != nil
		},
		gen.Identifier(),
		genRoles(),
	))

	properties.TestingRun(t)
}
