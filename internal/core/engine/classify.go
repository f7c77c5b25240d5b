package engine

import (
	"errors"
	"strings"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/feed"
)

// Class is the retry category of a failed check.
type Class int

const (
	ClassUnknown Class = iota
	ClassRateLimited
	ClassBlocked
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Classifier maps a check error to a Class.
type Classifier interface {
	Classify(err error) Class
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) Class

// Classify calls f.
func (f ClassifierFunc) Classify(err error) Class {
	return f(err)
}

var (
	rateLimitPhrases = []string{"rate limit", "too many requests", "429"}
	blockedPhrases   = []string{"blocked", "unauthorized", "suspended", "locked"}
)

// BlockDetector is implemented by classifiers that can spot a blocked
// account independently of the retry class, e.g. a rate-limit error whose
// message also says the account is blocked.
type BlockDetector interface {
	Blocked(err error) bool
}

// MessageClassifier recognises the core sentinels and *feed.StatusError, then
// falls back to matching phrases in the error text.
type MessageClassifier struct{}

// Classify implements Classifier.
func (m MessageClassifier) Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	switch {
	case errors.Is(err, core.ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, core.ErrAccountBlocked), errors.Is(err, core.ErrTooManyLoginAttempts):
		return ClassBlocked
	case errors.Is(err, core.ErrNoAvailableCredentials):
		return ClassUnknown
	}

	var status *feed.StatusError
	if errors.As(err, &status) {
		switch {
		case status.RateLimited():
			return ClassRateLimited
		case status.Unauthorized():
			return ClassBlocked
		}
	}

	if containsAny(err.Error(), rateLimitPhrases) {
		return ClassRateLimited
	}
	if m.Blocked(err) {
		return ClassBlocked
	}
	return ClassUnknown
}

// Blocked implements BlockDetector.
func (MessageClassifier) Blocked(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrAccountBlocked) || errors.Is(err, core.ErrTooManyLoginAttempts) {
		return true
	}
	var status *feed.StatusError
	if errors.As(err, &status) && status.Unauthorized() {
		return true
	}
	return containsAny(err.Error(), blockedPhrases)
}

func containsAny(message string, phrases []string) bool {
	message = strings.ToLower(message)
	for _, phrase := range phrases {
		if strings.Contains(message, phrase) {
			return true
		}
	}
	return false
}
