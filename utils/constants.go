package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for admin JWTs (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// SessionTTL is the time-to-live for admin session tokens (7 days)
	SessionTTL = 7 * 24 * time.Hour
)

// Credential formats
const (
	APITokenPrefix     = "mgp_"
	APITokenLength     = 68
	SessionTokenPrefix = "session_"
	SessionTokenLength = 72
)

// Content limits
const (
	MaxContentLength    = 10000
	MaxSummaryLength    = 500
	MaxAnalyzerTags     = 10
	MaxUserTags         = 10
	MaxPublicQueryTags  = 5
	DefaultReadingWPM   = 225
	DefaultFetchTimeout = 10 * time.Second
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
