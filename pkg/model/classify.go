package model

import (
	"fmt"
	"strings"
)

// ErrorKind is the normalized provider error taxonomy.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindQuota      ErrorKind = "quota"
	KindNotFound   ErrorKind = "not_found"
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindFormat     ErrorKind = "format"
	KindUnknown    ErrorKind = "unknown"
)

// classifyRule maps a lowered-substring pattern to an error kind. Rules are
// ordered; the first match wins. Matching on error text is heuristic but
// stable across providers; swap in provider-native codes by prepending rules.
type classifyRule struct {
	substring string
	kind      ErrorKind
}

var classifyRules = []classifyRule{
	{"invalid api key", KindAuth},
	{"invalid_api_key", KindAuth},
	{"incorrect api key", KindAuth},
	{"unauthorized", KindAuth},
	{"authentication", KindAuth},
	{"api key", KindAuth},
	{"permission denied", KindAuth},
	{"quota", KindQuota},
	{"billing", KindQuota},
	{"rate limit", KindQuota},
	{"rate_limit", KindQuota},
	{"insufficient balance", KindQuota},
	{"model not found", KindNotFound},
	{"model does not exist", KindNotFound},
	{"no such model", KindNotFound},
	{"context deadline exceeded", KindTimeout},
	{"timeout", KindTimeout},
	{"timed out", KindTimeout},
	{"connection refused", KindConnection},
	{"failed to establish", KindConnection},
	{"no such host", KindConnection},
	{"connection reset", KindConnection},
	{"connection", KindConnection},
	{"invalid response format", KindFormat},
	{"unexpected end of json", KindFormat},
	{"invalid character", KindFormat},
}

// Classify maps an error to its kind by case-insensitive substring match.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	lowered := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		if strings.Contains(lowered, rule.substring) {
			return rule.kind
		}
	}
	return KindUnknown
}

// UserMessage returns the fixed operator-facing message for an error kind.
func UserMessage(kind ErrorKind, provider string) string {
	switch kind {
	case KindAuth:
		return fmt.Sprintf("API key error for %s. Please check your API key.", provider)
	case KindQuota:
		return fmt.Sprintf("Billing or quota error for %s. Please check your account balance.", provider)
	case KindNotFound:
		return fmt.Sprintf("Model not found for %s. Please check the model id.", provider)
	case KindTimeout:
		return fmt.Sprintf("Request to %s timed out. Please try again.", provider)
	case KindConnection:
		return fmt.Sprintf("Cannot connect to %s. Please check your network connection.", provider)
	case KindFormat:
		return fmt.Sprintf("Received an invalid response from %s.", provider)
	default:
		return fmt.Sprintf("Error communicating with %s.", provider)
	}
}
