package common

import "time"

// AuthorizationHeaderName carries the bearer token on mutating HTTP requests.
const AuthorizationHeaderName = "Authorization"

// DefaultPresignExpiry is the lifetime of presigned download URLs.
const DefaultPresignExpiry = 3600 * time.Second

// WildcardSuffix marks a URL search term as a prefix match.
const WildcardSuffix = "*"
