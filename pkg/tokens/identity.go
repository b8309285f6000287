package tokens

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// subjectKeys lists the claim names accepted for the user id, highest
// precedence first.
var subjectKeys = []string{"sub", "id", "userId"}

// Identity is the request-scoped caller decoded from a verified access token.
type Identity struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IdentityFromClaims normalizes verified claims. The first present subject key
// wins; it must hold a positive integer, as a JSON number or decimal string.
func IdentityFromClaims(claims jwt.MapClaims) (Identity, error) {
	var (
		id  uint
		err = ErrInvalidToken
	)
	for _, key := range subjectKeys {
		raw, ok := claims[key]
		if !ok || raw == nil {
			continue
		}
		id, err = subjectID(raw)
		break
	}
	if err != nil {
		return Identity{}, err
	}

	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	return Identity{ID: id, Username: username, Role: role}, nil
}

func subjectID(raw any) (uint, error) {
	switch v := raw.(type) {
	case float64:
		if v <= 0 || v != math.Trunc(v) || v > math.MaxUint32 {
			return 0, ErrInvalidToken
		}
		return uint(v), nil
	case json.Number:
		return parseID(v.String())
	case string:
		return parseID(v)
	default:
		return 0, ErrInvalidToken
	}
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || n == 0 {
		return 0, ErrInvalidToken
	}
	return uint(n), nil
}
