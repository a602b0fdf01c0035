package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/shohag/vpnboard/internal/apperrors"
)

const MaxNameLength = 100

var (
	keyIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	serverIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// ValidateName checks a server or key display name: 1-100 characters after trimming.
func ValidateName(name string) error {
	n := len([]rune(strings.TrimSpace(name)))
	if n == 0 {
		return fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	}
	if n > MaxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", apperrors.ErrValidation, MaxNameLength)
	}
	return nil
}

func ValidateServerID(id string) error {
	if !serverIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid server id", apperrors.ErrValidation)
	}
	return nil
}

func ValidateKeyID(id string) error {
	if !keyIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid key id", apperrors.ErrValidation)
	}
	return nil
}

// ValidateConnectionURL requires an https URL with a host, e.g. https://1.2.3.4:1234/token.
func ValidateConnectionURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.Hostname() == "" {
		return fmt.Errorf("%w: invalid API URL, must be https://ip:port/token", apperrors.ErrValidation)
	}
	return nil
}
