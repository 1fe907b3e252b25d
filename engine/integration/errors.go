package integration

import (
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

var (
	ErrProviderNotFound     = errors.New("integration provider not found")
	ErrConnectionNotFound   = errors.New("oauth connection not found")
	ErrStateNotFound        = errors.New("unknown or expired oauth state")
	ErrAuthorizationTimeout = errors.New("authorization was not completed in time")
	ErrMissingCode          = errors.New("authorization code is required")
	ErrMissingPlatform      = errors.New("platform is required")
	ErrPlatformMismatch     = errors.New("state was issued for a different platform")
)

// FailureKind separates provider failures that a retry can fix from those
// that need the user to re-authorize.
type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailurePermanent
)

// ClassifyTokenError inspects a token endpoint failure.
func ClassifyTokenError(err error) FailureKind {
	if err == nil {
		return FailureTransient
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" {
			return FailurePermanent
		}
		if isGrantRevoked(string(re.Body)) || isGrantRevoked(re.ErrorDescription) {
			return FailurePermanent
		}
	}
	return FailureTransient
}

func isGrantRevoked(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "expired")
}
