package pushsender

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropmate/cropmate/types"
)

func newTestSender(t *testing.T) *Sender {
	t.Helper()
	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return New("mailto:admin@cropmate.test", public, private)
}

func browserSubscription(t *testing.T, endpoint string) types.PushSubscription {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	authBytes := make([]byte, 16)
	_, err = rand.Read(authBytes)
	require.NoError(t, err)

	return types.PushSubscription{
		Endpoint: endpoint,
		P256DH:   base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(authBytes),
	}
}

func relay(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSendSucceedsAgainstRelay(t *testing.T) {
	sender := newTestSender(t)
	server := relay(t, http.StatusCreated)

	res := sender.Send(browserSubscription(t, server.URL+"/reg/1"), Payload{Title: "T", Body: "B", URL: "/x"})

	assert.True(t, res.OK())
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.False(t, res.Gone)
}

func TestSendTagsRelayRejection(t *testing.T) {
	sender := newTestSender(t)
	server := relay(t, http.StatusBadRequest)

	res := sender.Send(browserSubscription(t, server.URL+"/reg/1"), Payload{Body: "B"})

	assert.False(t, res.OK())
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.False(t, res.Gone)
}

func TestSendTagsGoneEndpoint(t *testing.T) {
	sender := newTestSender(t)
	server := relay(t, http.StatusGone)

	res := sender.Send(browserSubscription(t, server.URL+"/reg/1"), Payload{Body: "B"})

	assert.False(t, res.OK())
	assert.True(t, res.Gone)
}

func TestSendTagsNetworkFailure(t *testing.T) {
	sender := newTestSender(t)
	server := relay(t, http.StatusCreated)
	endpoint := server.URL + "/reg/1"
	server.Close()

	res := sender.Send(browserSubscription(t, endpoint), Payload{Body: "B"})

	assert.False(t, res.OK())
	assert.Error(t, res.Err)
}

func TestSendTagsBadKeyMaterial(t *testing.T) {
	sender := newTestSender(t)
	server := relay(t, http.StatusCreated)

	sub := types.PushSubscription{Endpoint: server.URL + "/reg/1", P256DH: "not-a-key", Auth: "nope"}
	res := sender.Send(sub, Payload{Body: "B"})

	assert.False(t, res.OK())
}

func TestSendAllIsFailureIsolated(t *testing.T) {
	sender := newTestSender(t)
	okServer := relay(t, http.StatusCreated)
	goneServer := relay(t, http.StatusGone)
	badServer := relay(t, http.StatusInternalServerError)

	subs := []types.PushSubscription{
		browserSubscription(t, okServer.URL+"/reg/1"),
		browserSubscription(t, goneServer.URL+"/reg/2"),
		browserSubscription(t, badServer.URL+"/reg/3"),
	}

	report := sender.SendAll(subs, Payload{Title: "CropMate", Body: "test"})

	require.Len(t, report.Results, 3)
	assert.Equal(t, 1, report.Sent())
	assert.Equal(t, 2, report.Failed())
	require.Len(t, report.Gone(), 1)
	assert.Equal(t, subs[1].Endpoint, report.Gone()[0].Endpoint)

	// Results keep batch order even though sends run concurrently.
	assert.Equal(t, subs[0].Endpoint, report.Results[0].Endpoint)
	assert.Equal(t, subs[2].Endpoint, report.Results[2].Endpoint)
}

func TestSendAllEmptyBatch(t *testing.T) {
	sender := newTestSender(t)

	report := sender.SendAll(nil, Payload{Body: "B"})

	assert.Empty(t, report.Results)
	assert.Zero(t, report.Sent())
	assert.Zero(t, report.Failed())
}
