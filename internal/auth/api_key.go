package auth

import "crypto/subtle"

func verifyAPIKey(apiKey, expected string) error {
	if apiKey == "" || expected == "" {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
