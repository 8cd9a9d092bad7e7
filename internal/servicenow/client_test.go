package servicenow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsdesk/deskbot/internal/servicenow"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *servicenow.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return servicenow.NewClient(server.URL, "bot", "secret", 2*time.Second, zap.NewNop())
}

func TestGetTicket(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, r.URL.Path, "/api/now/table/incident")
		assert.Contains(t, r.URL.RawQuery, "number=INC12345")

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "bot", user)
		assert.Equal(t, "secret", pass)

		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]string{{
				"number":            "INC12345",
				"state":             "In Progress",
				"short_description": "Laptop will not boot",
				"priority":          "3 - Moderate",
			}},
		})
	})

	ticket, err := client.GetTicket(context.Background(), "INC12345")
	require.NoError(t, err)
	assert.Equal(t, "INC12345", ticket.Number)
	assert.Equal(t, "In Progress", ticket.State)
}

func TestGetTicketNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": []map[string]string{}})
	})

	_, err := client.GetTicket(context.Background(), "INC99999")
	assert.ErrorIs(t, err, servicenow.ErrNotFound)
}

func TestCreateTicketSendsDedupeKey(t *testing.T) {
	var received map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]string{"number": "INC90001", "state": "New"},
		})
	})

	ticket, err := client.CreateTicket(context.Background(), servicenow.CreateTicketRequest{
		Summary:   "broken monitor",
		Category:  "hardware",
		CallerID:  "U123",
		DedupeKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "INC90001", ticket.Number)
	assert.Equal(t, "broken monitor", received["short_description"])
	assert.Equal(t, "hardware", received["category"])
	assert.Equal(t, "key-1", received["correlation_id"])
}

func TestCreateTicketServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateTicket(context.Background(), servicenow.CreateTicketRequest{
		Summary: "broken monitor", Category: "hardware",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSearchKnowledge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "kb_knowledge")
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]string{
				{"number": "KB0001", "short_description": "VPN setup"},
				{"number": "KB0002", "short_description": "VPN troubleshooting"},
			},
		})
	})

	articles, err := client.SearchKnowledge(context.Background(), "vpn")
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "KB0001", articles[0].Number)
	assert.Equal(t, "VPN setup", articles[0].Title)
}

func TestTimeoutSurfacesAsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetTicket(ctx, "INC12345")
	require.Error(t, err)
}
