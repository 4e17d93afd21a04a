package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/anonto42/vidtube/backend/internal/auth"
	"github.com/anonto42/vidtube/backend/internal/handlers"
	"github.com/anonto42/vidtube/backend/internal/middleware"
	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/router"
	"github.com/anonto42/vidtube/backend/internal/validators"
	"github.com/anonto42/vidtube/backend/internal/views"
	"github.com/anonto42/vidtube/backend/pkg/storage"
)

const testPassword = "correct-horse"

type testServer struct {
	e        *echo.Echo
	users    *memoryUsers
	videos   *memoryVideos
	comments *memoryComments
	likes    *memoryLikes
	subs     *memorySubscriptions
	views    *stubViews
	media    *storage.MemoryStore
}

func newTestServer(t *testing.T, opts ...func(*router.Dependencies)) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret",
		AccessTTL:     time.Minute,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    time.Hour,
		Issuer:        "vidtube-test",
	})
	require.NoError(t, err)
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	s := &testServer{
		e:        echo.New(),
		users:    newMemoryUsers(),
		videos:   newMemoryVideos(),
		comments: newMemoryComments(),
		likes:    newMemoryLikes(),
		subs:     newMemorySubscriptions(),
		views:    &stubViews{},
		media:    storage.NewMemoryStore("http://media.test"),
	}
	s.e.Validator = validators.NewValidator()
	s.e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(logger)

	deps := router.Dependencies{
		Users:         s.users,
		Videos:        s.videos,
		Comments:      s.comments,
		Likes:         s.likes,
		Subscriptions: s.subs,
		Sessions:      auth.NewManager(s.users, hasher, tokens, auth.WithLogger(logger)),
		Tokens:        tokens,
		Hasher:        hasher,
		Media:         s.media,
		Views:         s.views,
		Health:        stubPinger{},
		Cookies:       handlers.CookieConfig{Secure: true, AccessTTL: time.Minute, RefreshTTL: time.Hour},
		Logger:        logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	router.SetupRoutes(s.e, deps)
	return s
}

type envelope[T any] struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       T      `json:"data"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code, env.StatusCode)
	return env
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, target string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return s.do(t, method, target, body, echo.MIMEApplicationJSON, token)
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, filename := range files {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func registrationFields(username string) map[string]string {
	return map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"fullName": "Test " + username,
		"password": testPassword,
	}
}

func (s *testServer) register(t *testing.T, username string) *models.User {
	t.Helper()
	body, ctype := multipartBody(t, registrationFields(username), map[string]string{"avatar": "me.png"})
	rec := s.do(t, http.MethodPost, "/api/v1/users/register", body, ctype, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.User](t, rec).Data
}

func (s *testServer) login(t *testing.T, username string) *auth.Session {
	t.Helper()
	rec := s.doJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": username,
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[*auth.Session](t, rec).Data
}

func (s *testServer) seedVideo(t *testing.T, owner primitive.ObjectID, published bool) primitive.ObjectID {
	t.Helper()
	v := &models.Video{Owner: owner, Title: "clip", IsPublished: published}
	require.NoError(t, s.videos.CreateVideo(t.Context(), v))
	return v.ID
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegisterLoginToggleLike(t *testing.T) {
	s := newTestServer(t)

	user := s.register(t, "Alice")
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, user.Avatar.URL)
	assert.True(t, s.media.Has(user.Avatar.PublicID))

	rec := s.doJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"email":    "alice@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	access := cookieByName(rec, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteNoneMode, access.SameSite)
	require.NotNil(t, cookieByName(rec, middleware.RefreshTokenCookie))

	session := decode[*auth.Session](t, rec).Data
	assert.Equal(t, access.Value, session.AccessToken)

	videoID := s.seedVideo(t, user.ID, true)
	target := "/api/v1/likes/toggle/v/" + videoID.Hex()

	rec = s.do(t, http.MethodPost, target, nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[models.ToggleLikeResponse](t, rec).Data.IsLiked)

	rec = s.do(t, http.MethodPost, target, nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.ToggleLikeResponse](t, rec).Data.IsLiked)
}

func TestRegisterLoginToggleLikeWithShortPassword(t *testing.T) {
	s := newTestServer(t)

	body, ctype := multipartBody(t, map[string]string{
		"username": "alice",
		"email":    "alice@x.com",
		"fullName": "Alice",
		"password": "p1",
	}, map[string]string{"avatar": "alice.png"})
	rec := s.do(t, http.MethodPost, "/api/v1/users/register", body, ctype, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[*models.User](t, rec).Data

	rec = s.doJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "alice",
		"password": "p1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode[*auth.Session](t, rec).Data

	videoID := s.seedVideo(t, user.ID, true)
	rec = s.do(t, http.MethodPost, "/api/v1/likes/toggle/v/"+videoID.Hex(), nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[models.ToggleLikeResponse](t, rec).Data.IsLiked)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	body, ctype := multipartBody(t, registrationFields("bob"), nil)
	rec := s.do(t, http.MethodPost, "/api/v1/users/register", body, ctype, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode[any](t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "avatar file is required", env.Message)
	assert.Nil(t, env.Data)

	fields := registrationFields("bob")
	fields["email"] = "not-an-email"
	body, ctype = multipartBody(t, fields, map[string]string{"avatar": "me.png"})
	rec = s.do(t, http.MethodPost, "/api/v1/users/register", body, ctype, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email must be a valid email address", decode[any](t, rec).Message)
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "carol")

	body, ctype := multipartBody(t, registrationFields("carol"), map[string]string{"avatar": "me.png"})
	rec := s.do(t, http.MethodPost, "/api/v1/users/register", body, ctype, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterDiscardsUploadsWhenCreateFails(t *testing.T) {
	s := newTestServer(t)
	s.users.createErr = errors.New("store unavailable")

	body, ctype := multipartBody(t, registrationFields("dave"),
		map[string]string{"avatar": "me.png", "coverImage": "cover.jpg"})
	rec := s.do(t, http.MethodPost, "/api/v1/users/register", body, ctype, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decode[any](t, rec)
	assert.NotContains(t, env.Message, "store unavailable")
	assert.Len(t, s.media.Deleted(), 2)
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "erin")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "nobody", "password": testPassword,
	}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "erin", "password": "wrong-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid user credentials", decode[any](t, rec).Message)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{"password": testPassword}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshRotatesTokens(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "frank")
	session := s.login(t, "frank")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/users/refresh-token",
		map[string]string{"refreshToken": session.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decode[map[string]string](t, rec).Data
	assert.NotEqual(t, session.RefreshToken, rotated["refreshToken"])

	rec = s.doJSON(t, http.MethodPost, "/api/v1/users/refresh-token",
		map[string]string{"refreshToken": session.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshReadsCookie(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "gina")
	session := s.login(t, "gina")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: session.RefreshToken})
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, cookieByName(rec, middleware.AccessTokenCookie))
}

func TestLogoutClearsCookiesAndRevokesRefresh(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "hank")
	session := s.login(t, "hank")

	rec := s.do(t, http.MethodPost, "/api/v1/users/logout", nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := cookieByName(rec, middleware.RefreshTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/users/refresh-token",
		map[string]string{"refreshToken": session.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/users/current-user", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, decode[any](t, rec).Success)

	rec = s.do(t, http.MethodGet, "/api/v1/users/current-user", nil, "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "iris")
	session := s.login(t, "iris")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/users/change-password", map[string]string{
		"oldPassword": "wrong-password", "newPassword": "new-password-1",
	}, session.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/users/change-password", map[string]string{
		"oldPassword": testPassword, "newPassword": "new-password-1",
	}, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.doJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "iris", "password": "new-password-1",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCurrentUserAndUpdateAccount(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "jack")
	s.register(t, "kate")
	session := s.login(t, "jack")

	rec := s.do(t, http.MethodGet, "/api/v1/users/current-user", nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jack", decode[*models.User](t, rec).Data.Username)

	rec = s.doJSON(t, http.MethodPatch, "/api/v1/users/update-account", map[string]string{
		"fullName": "Jack Doe", "email": "KATE@example.com",
	}, session.AccessToken)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.doJSON(t, http.MethodPatch, "/api/v1/users/update-account", map[string]string{
		"fullName": "Jack Doe", "email": "jack.doe@example.com",
	}, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[*models.User](t, rec).Data
	assert.Equal(t, "Jack Doe", updated.FullName)
	assert.Equal(t, "jack.doe@example.com", updated.Email)
}

func TestUpdateAvatarDeletesPreviousObject(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "liam")
	session := s.login(t, "liam")

	body, ctype := multipartBody(t, nil, map[string]string{"avatar": "new.png"})
	rec := s.do(t, http.MethodPatch, "/api/v1/users/avatar", body, ctype, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[*models.User](t, rec).Data
	assert.NotEqual(t, user.Avatar.PublicID, updated.Avatar.PublicID)
	assert.True(t, s.media.Has(updated.Avatar.PublicID))
	assert.False(t, s.media.Has(user.Avatar.PublicID))
	assert.Equal(t, []string{user.Avatar.PublicID}, s.media.Deleted())

	rec = s.do(t, http.MethodPatch, "/api/v1/users/cover-image", nil, "", session.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetVideoCountsViewAndRecordsHistory(t *testing.T) {
	s := newTestServer(t)
	viewer := s.register(t, "mona")
	owner := s.register(t, "nate")
	session := s.login(t, "mona")

	first := s.seedVideo(t, owner.ID, true)
	second := s.seedVideo(t, owner.ID, true)
	for _, id := range []primitive.ObjectID{first, second, first} {
		rec := s.do(t, http.MethodGet, "/api/v1/videos/"+id.Hex(), nil, "", session.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	video, err := s.videos.GetVideoByID(t.Context(), first)
	require.NoError(t, err)
	assert.EqualValues(t, 2, video.Views)

	stored, err := s.users.GetUserByID(t.Context(), viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{second, first}, stored.WatchHistory)

	draft := s.seedVideo(t, owner.ID, false)
	rec := s.do(t, http.MethodGet, "/api/v1/videos/"+draft.Hex(), nil, "", session.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/videos/not-an-id", nil, "", session.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleCommentLikeRequiresComment(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "olga")
	session := s.login(t, "olga")

	rec := s.do(t, http.MethodPost, "/api/v1/likes/toggle/c/"+primitive.NewObjectID().Hex(), nil, "", session.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Comment not found", decode[any](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/v1/likes/toggle/v/"+primitive.NewObjectID().Hex(), nil, "", session.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/likes/videos", nil, "", session.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCommentLifecycleEnforcesOwnership(t *testing.T) {
	s := newTestServer(t)
	author := s.register(t, "pete")
	s.register(t, "quinn")
	authorSession := s.login(t, "pete")
	otherSession := s.login(t, "quinn")
	videoID := s.seedVideo(t, author.ID, true)

	rec := s.doJSON(t, http.MethodPost, "/api/v1/comments/"+videoID.Hex(),
		map[string]string{"content": "  first!  "}, authorSession.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	comment := decode[*models.Comment](t, rec).Data
	assert.Equal(t, "first!", comment.Content)

	rec = s.do(t, http.MethodPost, "/api/v1/likes/toggle/c/"+comment.ID.Hex(), nil, "", otherSession.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, s.likes.has(models.LikeTargetComment, comment.ID, otherSession.User.ID))

	target := "/api/v1/comments/c/" + comment.ID.Hex()
	rec = s.doJSON(t, http.MethodPatch, target, map[string]string{"content": "hijacked"}, otherSession.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodDelete, target, nil, "", otherSession.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(t, http.MethodPatch, target, map[string]string{"content": "edited"}, authorSession.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited", decode[*models.Comment](t, rec).Data.Content)

	rec = s.do(t, http.MethodDelete, target, nil, "", authorSession.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.likes.has(models.LikeTargetComment, comment.ID, otherSession.User.ID))

	rec = s.do(t, http.MethodDelete, target, nil, "", authorSession.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/comments/"+primitive.NewObjectID().Hex(),
		map[string]string{"content": "orphan"}, authorSession.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentsPagination(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "rita")
	session := s.login(t, "rita")
	videoID := s.seedVideo(t, owner.ID, true)

	rec := s.do(t, http.MethodGet, "/api/v1/comments/"+videoID.Hex()+"?page=2&limit=5", nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, views.PageRequest{Page: 2, Limit: 5}, s.views.page())

	page := decode[views.Page[views.CommentView]](t, rec).Data
	assert.Empty(t, page.Items)
	assert.EqualValues(t, 2, page.Page)

	rec = s.do(t, http.MethodGet, "/api/v1/comments/"+videoID.Hex()+"?limit=abc", nil, "", session.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit must be an integer", decode[any](t, rec).Message)

	rec = s.do(t, http.MethodGet, "/api/v1/comments/"+videoID.Hex()+"?page=100000000000000000&limit=100", nil, "", session.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "page is out of range", decode[any](t, rec).Message)

	rec = s.do(t, http.MethodGet, "/api/v1/users/sessions?page=100000000000000000&limit=100", nil, "", session.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleSubscription(t *testing.T) {
	s := newTestServer(t)
	me := s.register(t, "sam")
	channel := s.register(t, "tina")
	session := s.login(t, "sam")

	rec := s.do(t, http.MethodPost, "/api/v1/subscriptions/c/"+me.ID.Hex(), nil, "", session.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/subscriptions/c/"+primitive.NewObjectID().Hex(), nil, "", session.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/subscriptions/c/"+channel.ID.Hex(), nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[models.ToggleSubscriptionResponse](t, rec).Data.Subscribed)

	rec = s.do(t, http.MethodPost, "/api/v1/subscriptions/c/"+channel.ID.Hex(), nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.ToggleSubscriptionResponse](t, rec).Data.Subscribed)

	rec = s.do(t, http.MethodGet, "/api/v1/subscriptions/c/"+channel.ID.Hex(), nil, "", session.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, views.NewPageRequest(0, 0), s.views.page())

	rec = s.do(t, http.MethodGet, "/api/v1/subscriptions/u/channels", nil, "", session.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChannelProfilePassesViewErrors(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "uma")
	session := s.login(t, "uma")

	s.views.profile = &views.ChannelProfile{Username: "uma", SubscriberCount: 3, ViewerIsSubscribed: true}
	rec := s.do(t, http.MethodGet, "/api/v1/users/c/uma", nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode[map[string]any](t, rec).Data
	assert.Equal(t, true, data["isSubscribed"])
	assert.EqualValues(t, 3, data["subscriberCount"])

	s.views.err = errors.New("aggregation failed")
	rec = s.do(t, http.MethodGet, "/api/v1/users/history", nil, "", session.AccessToken)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "aggregation failed")
}

func TestSessionHistoryWithoutAuditStore(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "vera")
	session := s.login(t, "vera")

	rec := s.do(t, http.MethodGet, "/api/v1/users/sessions", nil, "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[views.Page[models.SessionEvent]](t, rec).Data
	assert.Empty(t, page.Items)
	assert.Zero(t, page.TotalCount)
}

func TestLoginIsRateLimited(t *testing.T) {
	s := newTestServer(t, func(d *router.Dependencies) {
		d.LoginLimiter = middleware.NewIPRateLimiter(1, time.Hour, 1, time.Hour)
	})
	s.register(t, "walt")
	s.login(t, "walt")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "walt", "password": testPassword,
	}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[any](t, rec).Success)

	down := newTestServer(t, func(d *router.Dependencies) {
		d.Health = stubPinger{err: errors.New("no primary")}
	})
	rec = down.do(t, http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/nope", nil, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode[any](t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Not Found", env.Message)
}
