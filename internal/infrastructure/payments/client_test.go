package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutReq() domain.CheckoutRequest {
	return domain.CheckoutRequest{
		ParticipantID:  uuid.New(),
		EventID:        uuid.New(),
		UserID:         uuid.New(),
		AmountCents:    49900,
		Currency:       "nok",
		SuccessURL:     "https://aurora.example/ok",
		CancelURL:      "https://aurora.example/cancel",
		IdempotencyKey: "idem-1",
	}
}

func TestCreateCheckout_PostsAndDecodes(t *testing.T) {
	in := checkoutReq()
	expires := time.Date(2025, 1, 1, 12, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, checkoutPath, r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))

		var body checkoutBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, in.ParticipantID.String(), body.ParticipantID)
		assert.Equal(t, int64(49900), body.AmountCents)
		assert.Equal(t, "NOK", body.Currency)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(checkoutResponse{ID: "cs_1", URL: "https://pay.example/cs_1", ExpiresAt: expires})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", APIKey: "sk_test"})
	sess, err := c.CreateCheckout(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)
	assert.Equal(t, "https://pay.example/cs_1", sess.URL)
	assert.True(t, expires.Equal(sess.ExpiresAt))
}

func TestCreateCheckout_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "non 2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "provider down", http.StatusServiceUnavailable)
			},
			want: "status 503",
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{"))
			},
			want: "decode checkout response",
		},
		{
			name: "missing session",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"url":"https://pay.example"}`))
			},
			want: "missing session id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}).CreateCheckout(context.Background(), checkoutReq())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCreateCheckout_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.CreateCheckout(context.Background(), checkoutReq())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkout request failed")
}

func TestCreateCheckout_RequiresURL(t *testing.T) {
	_, err := New(Config{}).CreateCheckout(context.Background(), checkoutReq())
	require.Error(t, err)
}
