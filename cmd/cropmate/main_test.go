package main

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	sqlite "github.com/ncruces/go-sqlite3/gormlite"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cropmate/cropmate/lib/pushsender"
	"github.com/cropmate/cropmate/types"
)

func newTestServer(t *testing.T) (*echo.Echo, *gorm.DB, types.Config) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// Every pooled connection gets its own in-memory database; pin to one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migrate(db))

	vapidPrivate, vapidPublic, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	cfg := types.Config{
		Hostname:        "cropmate.test",
		AllowSignup:     true,
		CookieSecret:    []byte("0123456789abcdef0123456789abcdef"),
		VapidPublicKey:  vapidPublic,
		VapidPrivateKey: vapidPrivate,
		VapidSubject:    "mailto:admin@cropmate.test",
	}

	sender := pushsender.New(cfg.VapidSubject, cfg.VapidPublicKey, cfg.VapidPrivateKey)
	return newServer(cfg, db, sender), db, cfg
}

func doJSON(t *testing.T, e *echo.Echo, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func signUpAndIn(t *testing.T, e *echo.Echo, email string) []*http.Cookie {
	t.Helper()

	rec := doJSON(t, e, http.MethodPost, "/api/auth/sign-up", map[string]string{
		"name":     "Test Farmer",
		"email":    email,
		"password": "growing-greens",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodPost, "/api/auth/sign-in", map[string]string{
		"email":    email,
		"password": "growing-greens",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

// genBrowserKeys fabricates the key material a real browser push registration
// would hand back: a P-256 public point and a 16-byte auth secret.
func genBrowserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	authBytes := make([]byte, 16)
	_, err = rand.Read(authBytes)
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(authBytes)
}

// fakeRelay stands in for a push service endpoint, answering every delivery
// with the given status and counting what it saw.
func fakeRelay(t *testing.T, status int) (*httptest.Server, *int) {
	t.Helper()

	received := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &received
}

func insertSubscription(t *testing.T, db *gorm.DB, userID uint, endpoint string) types.PushSubscription {
	t.Helper()

	p256dh, auth := genBrowserKeys(t)
	sub := types.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256DH:   p256dh,
		Auth:     auth,
		Keys:     fmt.Sprintf(`{"p256dh":%q,"auth":%q}`, p256dh, auth),
	}
	require.NoError(t, db.Create(&sub).Error)
	return sub
}

func userByEmail(t *testing.T, db *gorm.DB, email string) types.User {
	t.Helper()

	var user types.User
	require.NoError(t, db.First(&user, "email = ?", email).Error)
	return user
}
