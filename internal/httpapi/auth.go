package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type authError struct {
	status  int
	message string
}

func (e *authError) Error() string {
	return e.message
}

type tokenClaims struct {
	TenantID string
	Subject  string
	Role     string
	Exp      int64
}

func authorizeBearer(authHeader, jwtSecret, tenantID string, now time.Time) (tokenClaims, *authError) {
	claims, err := parseBearer(authHeader, jwtSecret, now)
	if err != nil {
		return tokenClaims{}, err
	}
	if claims.Role != "admin" {
		return tokenClaims{}, &authError{status: 403, message: "Admin access required"}
	}
	if tenantID != "" && claims.TenantID != tenantID {
		return tokenClaims{}, &authError{status: 403, message: "Tenant mismatch"}
	}
	return claims, nil
}

func parseBearer(authHeader, jwtSecret string, now time.Time) (tokenClaims, *authError) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return tokenClaims{}, &authError{status: 401, message: "Missing or invalid bearer token"}
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return parseToken(raw, jwtSecret, now)
}

func parseToken(raw, jwtSecret string, now time.Time) (tokenClaims, *authError) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return tokenClaims{}, &authError{status: 401, message: "Invalid token format"}
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return tokenClaims{}, &authError{status: 401, message: "Invalid token header"}
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return tokenClaims{}, &authError{status: 401, message: "Invalid token header"}
	}
	if header.Alg != "HS256" {
		return tokenClaims{}, &authError{status: 401, message: "Unsupported token algorithm"}
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return tokenClaims{}, &authError{status: 401, message: "Invalid token payload"}
	}
	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return tokenClaims{}, &authError{status: 401, message: "Invalid token signature"}
	}

	mac := hmac.New(sha256.New, []byte(jwtSecret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sigBytes, mac.Sum(nil)) {
		return tokenClaims{}, &authError{status: 401, message: "Token signature mismatch"}
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return tokenClaims{}, &authError{status: 401, message: "Invalid token payload"}
	}

	tenantID, ok := payload["tenant_id"].(string)
	if !ok || tenantID == "" {
		return tokenClaims{}, &authError{status: 401, message: "Missing tenant_id claim"}
	}
	role, ok := payload["role"].(string)
	if !ok || role == "" {
		return tokenClaims{}, &authError{status: 401, message: "Missing role claim"}
	}
	subject, _ := payload["sub"].(string)

	exp, err2 := parseExp(payload["exp"])
	if err2 != nil {
		return tokenClaims{}, &authError{status: 401, message: "Invalid exp claim"}
	}
	if now.Unix() >= exp {
		return tokenClaims{}, &authError{status: 401, message: "Token expired"}
	}
	if aud, ok := payload["aud"].(string); !ok || aud != "queuefeed" {
		return tokenClaims{}, &authError{status: 401, message: "Invalid aud claim"}
	}

	return tokenClaims{
		TenantID: tenantID,
		Subject:  subject,
		Role:     role,
		Exp:      exp,
	}, nil
}

func parseExp(v any) (int64, error) {
	switch typed := v.(type) {
	case float64:
		return int64(typed), nil
	case int64:
		return typed, nil
	case json.Number:
		return typed.Int64()
	default:
		return 0, errors.New("unsupported exp type")
	}
}
