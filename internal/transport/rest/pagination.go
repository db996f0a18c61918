package rest

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
)

var errBadCursor = errors.New("bad cursor")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// cursor = base64url("RFC3339Nano|uuid|position")
func encodeCursor(c *domain.KeysetCursor) string {
	if c == nil {
		return ""
	}
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String() + "|" + strconv.Itoa(c.Position)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*domain.KeysetCursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errBadCursor
	}
	parts := strings.Split(string(b), "|")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, errBadCursor
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, errBadCursor
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, errBadCursor
	}
	c := &domain.KeysetCursor{CreatedAt: t, ID: id}
	if len(parts) == 3 {
		pos, err := strconv.Atoi(parts[2])
		if err != nil || pos < 0 {
			return nil, errBadCursor
		}
		c.Position = pos
	}
	return c, nil
}

func parseLimit(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultPageSize
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultPageSize
	}
	if n < 1 {
		return 1
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
