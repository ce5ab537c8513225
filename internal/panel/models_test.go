package panel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientListPrefersNestedSettings(t *testing.T) {
	// Settings arrives as a JSON document serialized into a string, the
	// usual panel encoding.
	var ib Inbound
	raw := `{
		"id": 1,
		"settings": "{\"clients\":[{\"email\":\"nested@x\",\"totalGB\":1024}]}",
		"clients": [{"email":"top@x"}]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &ib))

	clients := ib.ClientList()
	require.Len(t, clients, 1, "nested and top-level clients must never be summed")
	require.Equal(t, "nested@x", clients[0].Email)
}

func TestClientListSettingsAsObject(t *testing.T) {
	var ib Inbound
	raw := `{
		"id": 1,
		"settings": {"clients":[{"email":"nested@x"}]},
		"clients": [{"email":"top@x"}]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &ib))

	clients := ib.ClientList()
	require.Len(t, clients, 1)
	require.Equal(t, "nested@x", clients[0].Email)
}

func TestClientListFallsBackToTopLevel(t *testing.T) {
	var ib Inbound
	raw := `{"id": 1, "clients": [{"email":"top@x"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &ib))

	clients := ib.ClientList()
	require.Len(t, clients, 1)
	require.Equal(t, "top@x", clients[0].Email)
}

func TestClientListEmptyNestedListWins(t *testing.T) {
	// A present-but-empty nested list means the inbound has no clients;
	// the top-level list must not resurrect any.
	var ib Inbound
	raw := `{
		"id": 1,
		"settings": "{\"clients\":[]}",
		"clients": [{"email":"top@x"}]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &ib))

	require.Empty(t, ib.ClientList())
}

func TestClientQuotaAndExpiryFallbacks(t *testing.T) {
	c := Client{Total: 100, TotalGB: 200, ExpiryTime: 5, Expire: 9}
	require.EqualValues(t, 100, c.Quota())
	require.EqualValues(t, 5, c.Expiry())

	c = Client{TotalGB: 200, Expire: 9}
	require.EqualValues(t, 200, c.Quota())
	require.EqualValues(t, 9, c.Expiry())

	c = Client{}
	require.EqualValues(t, 0, c.Quota())
	require.EqualValues(t, 0, c.Expiry())
}
