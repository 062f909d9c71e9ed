package repository

import (
	"encoding/base64"
	"encoding/json"
	"sync/atomic"

	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"
)

// Page size bounds for list operations.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// defaultPageSize is the runtime fallback limit. It starts at
// DefaultPageSize and is adjusted by config reloads.
var defaultPageSize atomic.Int64

func init() {
	defaultPageSize.Store(DefaultPageSize)
}

// SetDefaultPageSize changes the fallback page size for subsequent list
// operations. Values out of (0, MaxPageSize] are ignored.
func SetDefaultPageSize(n int) {
	if n > 0 && n <= MaxPageSize {
		defaultPageSize.Store(int64(n))
	}
}

// EffectiveLimit clamps a requested page size into bounds.
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return int(defaultPageSize.Load())
	}
	return limit
}

// continuationToken is the internal shape of a pagination token. Callers
// receive it base64-encoded and must treat it as opaque.
type continuationToken struct {
	Partition string `json:"p"`
	Row       string `json:"r"`
}

// EncodeToken turns the last-returned key into an opaque continuation token.
func EncodeToken(key *store.Key) string {
	if key == nil {
		return ""
	}
	data, err := json.Marshal(continuationToken{Partition: key.Partition, Row: key.Row})
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeToken parses a continuation token back into a start-after key.
// An empty token means the first page.
func DecodeToken(token string) (*store.Key, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, appErrors.NewValidation("malformed continuation token")
	}
	var ct continuationToken
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, appErrors.NewValidation("malformed continuation token")
	}
	return &store.Key{Partition: ct.Partition, Row: ct.Row}, nil
}
