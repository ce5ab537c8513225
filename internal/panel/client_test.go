package panel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// newAPIServer serves /login plus the given API responses keyed by path.
func newAPIServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "stub", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"msg":"","obj":null}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	return httptest.NewServer(mux)
}

func newTestAPIClient(t *testing.T, serverURL string) *APIClient {
	t.Helper()

	logger, _ := logtest.NewNullLogger()
	return NewAPIClient(newTestSession(t, serverURL), logrus.NewEntry(logger))
}

func TestListInbounds(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		pathInboundList: `{"success":true,"msg":"","obj":[
			{"id":1,"remark":"eu","up":100,"down":200,"enable":true},
			{"id":2,"remark":"us","up":5,"down":6,"enable":false}
		]}`,
	})
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	inbounds, err := client.ListInbounds(context.Background())
	require.NoError(t, err)
	require.Len(t, inbounds, 2)
	require.EqualValues(t, 1, inbounds[0].ID)
	require.Equal(t, "us", inbounds[1].Remark)
}

func TestListOnlineEmailsTreatsNullAsEmpty(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		pathOnlineClients: `{"success":true,"msg":"","obj":null}`,
	})
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	online, err := client.ListOnlineEmails(context.Background())
	require.NoError(t, err)
	require.Empty(t, online)
}

func TestListOnlineEmailsBuildsSet(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		pathOnlineClients: `{"success":true,"msg":"","obj":["a@x","b@x","a@x"]}`,
	})
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	online, err := client.ListOnlineEmails(context.Background())
	require.NoError(t, err)
	require.Len(t, online, 2)
	require.Contains(t, online, "a@x")
	require.Contains(t, online, "b@x")
}

func TestClientTrafficUsesRawEmailPath(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		pathClientTraffics + "a@x": `{"success":true,"msg":"","obj":{"email":"a@x","up":10,"down":20,"total":100,"expiryTime":0}}`,
	})
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	record, err := client.ClientTraffic(context.Background(), "a@x")
	require.NoError(t, err)
	require.Equal(t, "a@x", record.Email)
	require.EqualValues(t, 10, record.Up)
	require.EqualValues(t, 20, record.Down)
}

func TestCallRejectsUnsuccessfulEnvelope(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		pathInboundList: `{"success":false,"msg":"database busy","obj":null}`,
	})
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	_, err := client.ListInbounds(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "database busy")
}

func TestCallPropagatesServerErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "stub", Path: "/"})
		_, _ = w.Write([]byte(`{"success":true,"msg":"","obj":null}`))
	})
	mux.HandleFunc(pathInboundList, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	_, err := client.ListInbounds(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestFetchSnapshot(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		pathInboundList:   `{"success":true,"msg":"","obj":[{"id":5,"remark":"eu"}]}`,
		pathOnlineClients: `{"success":true,"msg":"","obj":["a@x"]}`,
	})
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	snap, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{5}, snap.InboundIDs())
	require.True(t, snap.IsOnline("a@x"))
	require.False(t, snap.IsOnline("b@x"))
}
