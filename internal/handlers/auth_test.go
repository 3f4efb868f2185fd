package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pg-user-api/internal/config"
	"pg-user-api/internal/credential"
	"pg-user-api/internal/database"
	"pg-user-api/internal/metrics"
	"pg-user-api/internal/middleware"
	"pg-user-api/internal/models"
	"pg-user-api/internal/repository"
	"pg-user-api/internal/service"
	"pg-user-api/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	db      *sqlx.DB
	repo    *repository.UserRepo
	metrics *metrics.Manager
}

func newTestEnv(t *testing.T, maxPhoto int64) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.db")
	db, err := database.Open(config.DatabaseConfig{
		Driver:      database.DriverSQLite,
		DSN:         "file:" + path + "?_busy_timeout=5000&_foreign_keys=on",
		PingTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.EnsureSchema(context.Background(), db))

	ids, err := utils.NewIDGenerator(1)
	require.NoError(t, err)

	repo := repository.NewUserRepo(db)
	m := metrics.NewManager("test")
	svc := service.NewAuthService(repo, credential.New(bcrypt.MinCost), ids, nil, nil,
		service.Options{RecordLogins: true, MaxPhotoBytes: maxPhoto})

	r := gin.New()
	r.Use(middleware.RequestID())
	New(svc, repo, m, nil, Options{MaxPhotoBytes: maxPhoto}).RegisterRoutes(r)
	return &testEnv{router: r, db: db, repo: repo, metrics: m}
}

func multipartBody(t *testing.T, fields map[string]string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if photo != nil {
		fw, err := w.CreateFormFile("photo", "me.png")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func registrationFields(email string) map[string]string {
	return map[string]string{
		"name":         "Meera",
		"phone_number": "9123456780",
		"email":        email,
		"password":     "open sesame",
		"user_type":    "tenant",
		"pg_name":      "Lotus PG",
	}
}

func (e *testEnv) register(t *testing.T, fields map[string]string, photo []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fields, photo)
	req := httptest.NewRequest(http.MethodPost, "/register", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(LoginRequest{Email: email, Password: password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRegisterThenLoginRoundTripsPhoto(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	photo := []byte{0x89, 'P', 'N', 'G', 0x00, 0x00, 0xff, 0x10}

	rec := env.register(t, registrationFields("Meera@Example.com"), photo)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "User registered successfully", body["message"])
	require.NotNil(t, body["user_id"])

	rec = env.login(t, "meera@example.COM", "open sesame")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decode(t, rec)

	assert.Equal(t, "Login successful", profile["message"])
	assert.Equal(t, "meera@example.com", profile["email"])
	assert.Equal(t, "Lotus PG", profile["pg_name"])
	assert.Equal(t, "Active", profile["status"])
	assert.Contains(t, profile, "address")
	assert.Nil(t, profile["address"])
	assert.NotContains(t, profile, "password_hash")
	assert.NotContains(t, rec.Body.String(), "open sesame")

	raw, err := base64.StdEncoding.DecodeString(profile["photo_base64"].(string))
	require.NoError(t, err)
	assert.Equal(t, photo, raw)

	u, err := env.repo.GetByEmail(context.Background(), "meera@example.com")
	require.NoError(t, err)
	events, err := env.repo.LoginHistory(context.Background(), u.ID, 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "handler-test", *events[0].DeviceInfo)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Registrations.WithLabelValues(metrics.ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Logins.WithLabelValues(metrics.ResultSuccess)))
}

func TestRegisterURLEncodedWithoutPhoto(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	form := url.Values{}
	for k, v := range registrationFields("plain@example.com") {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.login(t, "plain@example.com", "open sesame")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["photo_base64"])
}

func TestRegisterMissingFields(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	fields := registrationFields("x@example.com")
	delete(fields, "phone_number")
	fields["password"] = "  "

	rec := env.register(t, fields, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Missing required fields", body["error"])
	assert.Equal(t, []any{"phone_number", "password"}, body["fields"])

	rec = env.login(t, "x@example.com", "open sesame")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no partial row is committed")
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	require.Equal(t, http.StatusCreated, env.register(t, registrationFields("dup@example.com"), nil).Code)

	rec := env.register(t, registrationFields("DUP@example.com"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Email already registered"}`, rec.Body.String())
}

func TestLoginMatchesEmailRegardlessOfCase(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	require.Equal(t, http.StatusCreated, env.register(t, registrationFields("Foo@X.com"), nil).Code)

	for _, email := range []string{"foo@x.COM", "FOO@X.COM", " foo@x.com "} {
		rec := env.login(t, email, "open sesame")
		require.Equal(t, http.StatusOK, rec.Code, email)
		assert.Equal(t, "foo@x.com", decode(t, rec)["email"])
	}
}

func TestRegisterDuplicateDiffersOnlyInCase(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	require.Equal(t, http.StatusCreated, env.register(t, registrationFields("foo@X.com"), nil).Code)

	rec := env.register(t, registrationFields("FOO@x.com"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Email already registered"}`, rec.Body.String())

	users, err := env.repo.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestLoginRejectsBcryptAliases(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	require.Equal(t, http.StatusCreated, env.register(t, registrationFields("alias@example.com"), nil).Code)

	for _, attempt := range []string{"open sesame\x00open sesame", "open sesame" + strings.Repeat("!", 70)} {
		rec := env.login(t, "alias@example.com", attempt)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	const n = 6

	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.register(t, registrationFields("race@example.com"), nil).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		if code == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusBadRequest, code)
		}
	}
	assert.Equal(t, 1, created)
}

func TestRegisterPhotoTooLarge(t *testing.T) {
	env := newTestEnv(t, 16)
	rec := env.register(t, registrationFields("big@example.com"), bytes.Repeat([]byte{1}, 17))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Photo too large"}`, rec.Body.String())
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	require.Equal(t, http.StatusCreated, env.register(t, registrationFields("who@example.com"), nil).Code)

	rec := env.login(t, "nobody@example.com", "open sesame")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())

	rec = env.login(t, "who@example.com", "open sesame!")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid password"}`, rec.Body.String())

	rec = env.login(t, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Email and password are required"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginInactiveAnyCase(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	require.Equal(t, http.StatusCreated, env.register(t, registrationFields("gate@example.com"), nil).Code)

	for _, status := range []string{"Inactive", "INACTIVE", "inactive", "Suspended"} {
		_, err := env.db.Exec(`UPDATE user_register SET status = ? WHERE email = ?`, status, "gate@example.com")
		require.NoError(t, err)

		rec := env.login(t, "gate@example.com", "open sesame")
		assert.Equal(t, http.StatusForbidden, rec.Code, status)
		assert.JSONEq(t, `{"error":"Account not active"}`, rec.Body.String())
	}

	require.NoError(t, env.repo.SetStatus(context.Background(), "gate@example.com", models.UserStatusActive))
	assert.Equal(t, http.StatusOK, env.login(t, "gate@example.com", "open sesame").Code)
}

type failingAuth struct{ err error }

func (f failingAuth) Register(context.Context, service.RegisterInput) (int64, error) { return 0, f.err }
func (f failingAuth) Login(context.Context, service.LoginInput) (*models.Profile, error) {
	return nil, f.err
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func TestInternalErrorBody(t *testing.T) {
	boom := errors.New("database is locked")
	for _, tt := range []struct {
		expose bool
		want   string
	}{
		{false, `{"error":"Internal server error"}`},
		{true, `{"error":"database is locked"}`},
	} {
		r := gin.New()
		New(failingAuth{err: boom}, nil, nil, nil, Options{ExposeErrors: tt.expose}).RegisterRoutes(r)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, tt.want, rec.Body.String())
	}
}

func TestMalformedSecretIs500(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	require.Equal(t, http.StatusCreated, env.register(t, registrationFields("corrupt@example.com"), nil).Code)
	_, err := env.db.Exec(`UPDATE user_register SET password_hash = 'not-bcrypt' WHERE email = ?`, "corrupt@example.com")
	require.NoError(t, err)

	rec := env.login(t, "corrupt@example.com", "open sesame")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	for _, tt := range []struct {
		err  error
		code int
	}{
		{nil, http.StatusOK},
		{errors.New("down"), http.StatusServiceUnavailable},
	} {
		r := gin.New()
		ping := pingFunc(func(context.Context) error { return tt.err })
		New(failingAuth{}, ping, nil, nil, Options{}).RegisterRoutes(r)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, tt.code, rec.Code)
	}
}
