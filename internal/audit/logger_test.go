package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/aurorahunt/hunt-service/internal/domain"
	appCtx "github.com/aurorahunt/hunt-service/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejected_BlockedIsWarning(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))

	ctx := appCtx.WithRequestID(context.Background(), "req-1")
	p := domain.Participant{ID: uuid.New(), EventID: uuid.New(), UserID: uuid.New(), Status: domain.StatusCancelled, RejectionCount: 3}
	l.Rejected(ctx, p, uuid.New(), true)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "blocked", line["action"])
	assert.Equal(t, true, line["audit"])
	assert.Equal(t, "req-1", line["trace_id"])
	assert.EqualValues(t, 3, line["rejection_count"])
}

func TestCancelled_ExpiredAction(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))

	l.Cancelled(context.Background(), domain.Participant{}, "expired")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "expired", line["action"])
}
