package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendline/blob"
	"friendline/messaging"
	"friendline/models"
	"friendline/relation"
	"friendline/store"
	"friendline/utils"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]string
}

func (n *recordingNotifier) Notify(userID string, ev models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[userID] = append(n.events[userID], ev.Event)
}

func (n *recordingNotifier) For(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events[userID]...)
}

type testEnv struct {
	router   *gin.Engine
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := store.NewMemoryUsers()
	messages := store.NewMemoryMessages()
	records := store.NewRelationships(store.NewMemoryRelationships(), 0)
	blobs, err := blob.NewLocalStore(t.TempDir(), "/files", 1<<20)
	require.NoError(t, err)

	notifier := &recordingNotifier{events: make(map[string][]string)}
	guard := messaging.NewGuard(records)

	machine := relation.NewMachine(users, records, notifier)
	service := messaging.NewService(guard, records, users, messages, blobs, notifier)
	service.UsePairLock(machine)

	r := gin.New()
	New(Deps{
		Users:        users,
		Friends:      machine,
		Messages:     service,
		Blobs:        blobs,
		Tokens:       utils.NewTokenManager("test-secret", time.Hour),
		MaxBodyBytes: 64 << 10,
	}).Register(r)

	return &testEnv{router: r, notifier: notifier}
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type session struct {
	id    string
	token string
}

func (e *testEnv) signup(t *testing.T, name, email string) session {
	t.Helper()
	w := e.do("POST", "/api/auth/signup", "", gin.H{"fullName": name, "email": email, "password": "secret123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return session{id: resp.User.ID, token: resp.Token}
}

func (e *testEnv) befriend(t *testing.T, a, b session) {
	t.Helper()
	require.Equal(t, http.StatusOK, e.do("POST", "/api/friends/request", a.token, gin.H{"targetUserId": b.id}).Code)
	require.Equal(t, http.StatusOK, e.do("POST", "/api/friends/accept", b.token, gin.H{"requesterId": a.id}).Code)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, w)["message"]
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/auth/signup", "", gin.H{"fullName": "Ada", "email": "Ada@Example.com", "password": "secret123"})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode[AuthResponse](t, w)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.Equal(t, "Ada", resp.User.DisplayName)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "jwt", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	w = env.do("POST", "/api/auth/signup", "", gin.H{"fullName": "Ada", "email": "ada@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email already exists", messageOf(t, w))

	w = env.do("POST", "/api/auth/signup", "", gin.H{"fullName": "Bob", "email": "bob@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("POST", "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[AuthResponse](t, w).Token

	w = env.do("GET", "/api/auth/check", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, resp.User.ID, decode[models.UserResponse](t, w).ID)

	// The session cookie authenticates as well as the header.
	req := httptest.NewRequest("GET", "/api/auth/check", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: token})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/auth/check", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/auth/check", "garbage", nil).Code)

	w = env.do("POST", "/api/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := w.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
	assert.True(t, cleared[0].MaxAge < 0)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")

	assert.Equal(t, http.StatusBadRequest, env.do("PUT", "/api/auth/update-profile", ada.token, gin.H{}).Code)

	w := env.do("PUT", "/api/auth/update-profile", ada.token, gin.H{"profileAvatar": "not-a-data-uri"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	avatar := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	w = env.do("PUT", "/api/auth/update-profile", ada.token, gin.H{"fullName": "Ada L.", "profileAvatar": avatar})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	user := decode[models.UserResponse](t, w)
	assert.Equal(t, "Ada L.", user.DisplayName)
	assert.Regexp(t, `^/files/[0-9a-f-]+\.png$`, user.AvatarURL)

	w = env.do("GET", user.AvatarURL, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())
}

func TestFriendRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	w := env.do("POST", "/api/friends/request", ada.token, gin.H{"targetUserId": bob.id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Friend request sent.", messageOf(t, w))

	w = env.do("POST", "/api/friends/request", ada.token, gin.H{"targetUserId": bob.id})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/friends/request", ada.token, gin.H{"targetUserId": ada.id}).Code)
	assert.Equal(t, http.StatusNotFound, env.do("POST", "/api/friends/request", ada.token, gin.H{"targetUserId": "ghost"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/friends/request", ada.token, gin.H{}).Code)

	w = env.do("GET", "/api/friends/requests", bob.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	received := decode[map[string][]models.UserSummary](t, w)["requests"]
	require.Len(t, received, 1)
	assert.Equal(t, ada.id, received[0].ID)

	w = env.do("GET", "/api/friends/sent-requests", ada.token, nil)
	sent := decode[map[string][]models.UserSummary](t, w)["sentRequests"]
	require.Len(t, sent, 1)
	assert.Equal(t, bob.id, sent[0].ID)

	assert.Equal(t, http.StatusNotFound, env.do("POST", "/api/friends/accept", ada.token, gin.H{"requesterId": bob.id}).Code)

	w = env.do("POST", "/api/friends/accept", bob.token, gin.H{"requesterId": ada.id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Friend request accepted.", messageOf(t, w))

	w = env.do("GET", "/api/friends/list", ada.token, nil)
	friends := decode[map[string][]models.UserSummary](t, w)["friends"]
	require.Len(t, friends, 1)
	assert.Equal(t, bob.id, friends[0].ID)

	assert.Equal(t, []string{models.EventFriendRequestReceived}, env.notifier.For(bob.id))
	assert.Equal(t, []string{models.EventFriendRequestAccepted}, env.notifier.For(ada.id))

	w = env.do("POST", "/api/friends/remove", bob.token, gin.H{"friendId": ada.id})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do("GET", "/api/friends/list", ada.token, nil)
	assert.Empty(t, decode[map[string][]models.UserSummary](t, w)["friends"])
	assert.Contains(t, env.notifier.For(ada.id), models.EventFriendRemoved)
}

func TestOpposingRequestBecomesAccept(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	require.Equal(t, http.StatusOK, env.do("POST", "/api/friends/request", ada.token, gin.H{"targetUserId": bob.id}).Code)

	w := env.do("POST", "/api/friends/request", bob.token, gin.H{"targetUserId": ada.id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Friend request accepted.", messageOf(t, w))

	w = env.do("GET", "/api/friends/list", bob.token, nil)
	assert.Len(t, decode[map[string][]models.UserSummary](t, w)["friends"], 1)
}

func TestDeclineIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	require.Equal(t, http.StatusOK, env.do("POST", "/api/friends/request", ada.token, gin.H{"targetUserId": bob.id}).Code)

	for i := 0; i < 2; i++ {
		w := env.do("POST", "/api/friends/decline", bob.token, gin.H{"requesterId": ada.id})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Friend request declined.", messageOf(t, w))
	}
	assert.Equal(t, []string{models.EventFriendRequestDeclined}, env.notifier.For(ada.id))

	w := env.do("GET", "/api/friends/requests", bob.token, nil)
	assert.Empty(t, decode[map[string][]models.UserSummary](t, w)["requests"])
}

func TestMessagingRespectsRelationships(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	w := env.do("POST", "/api/message/"+bob.id, ada.token, gin.H{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.befriend(t, ada, bob)

	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/message/"+bob.id, ada.token, gin.H{"text": "   "}).Code)

	w = env.do("POST", "/api/message/"+bob.id, ada.token, gin.H{"text": " hello "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sent := decode[models.Message](t, w)
	assert.Equal(t, "hello", sent.Text)
	assert.False(t, sent.IsRead)

	w = env.do("POST", "/api/message/send/"+ada.id, bob.token, gin.H{"text": "hey"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, env.notifier.For(bob.id), models.EventNewMessage)

	w = env.do("GET", "/api/message/"+bob.id, ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]models.Message](t, w)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "hey", history[1].Text)

	w = env.do("GET", "/api/message/users", bob.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sidebar := decode[[]models.PeerSummary](t, w)
	require.Len(t, sidebar, 1)
	assert.Equal(t, ada.id, sidebar[0].ID)
	assert.Equal(t, int64(1), sidebar[0].UnreadCount)
	require.NotNil(t, sidebar[0].LastMessage)

	w = env.do("POST", "/api/message/read/"+ada.id, bob.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Messages marked as read.", messageOf(t, w))

	w = env.do("GET", "/api/message/users", bob.token, nil)
	assert.Equal(t, int64(0), decode[[]models.PeerSummary](t, w)[0].UnreadCount)

	require.Equal(t, http.StatusOK, env.do("POST", "/api/friends/block", bob.token, gin.H{"targetUserId": ada.id}).Code)
	assert.Contains(t, env.notifier.For(ada.id), models.EventUserBlocked)

	assert.Equal(t, http.StatusForbidden, env.do("POST", "/api/message/"+bob.id, ada.token, gin.H{"text": "still there?"}).Code)
	assert.Equal(t, http.StatusForbidden, env.do("GET", "/api/message/"+bob.id, ada.token, nil).Code)

	w = env.do("GET", "/api/message/users", ada.token, nil)
	assert.Empty(t, decode[[]models.PeerSummary](t, w))

	require.Equal(t, http.StatusOK, env.do("POST", "/api/friends/unblock", bob.token, gin.H{"targetUserId": ada.id}).Code)
	assert.Equal(t, http.StatusOK, env.do("GET", "/api/message/"+bob.id, ada.token, nil).Code)
	// The block ended the friendship.
	assert.Equal(t, http.StatusForbidden, env.do("POST", "/api/message/"+bob.id, ada.token, gin.H{"text": "hi again"}).Code)
}

func TestImageMessage(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")
	env.befriend(t, ada, bob)

	image := "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("GIF89a"))
	w := env.do("POST", "/api/message/"+bob.id, ada.token, gin.H{"image": image})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	msg := decode[models.Message](t, w)
	assert.Empty(t, msg.Text)
	assert.Regexp(t, `^/files/.+\.gif$`, msg.ImageURL)

	w = env.do("POST", "/api/message/"+bob.id, ada.token, gin.H{"image": "data:text/plain;base64,aGk="})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserDirectory(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")
	cy := env.signup(t, "Cy", "cy@example.com")

	require.Equal(t, http.StatusOK, env.do("POST", "/api/friends/block", bob.token, gin.H{"targetUserId": cy.id}).Code)

	w := env.do("GET", "/api/friends/all-users", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[map[string][]models.DirectoryEntry](t, w)["users"]
	require.Len(t, all, 2)

	byID := map[string]models.DirectoryEntry{}
	for _, e := range all {
		byID[e.ID] = e
	}
	assert.NotContains(t, byID, ada.id)
	assert.Equal(t, []string{cy.id}, byID[bob.id].BlockedUsers)
	assert.Empty(t, byID[cy.id].BlockedUsers)

	w = env.do("POST", "/api/friends/users-by-ids", ada.token, gin.H{"ids": []string{cy.id, "ghost", bob.id}})
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[map[string][]models.UserSummary](t, w)["users"]
	require.Len(t, users, 2)
	assert.Equal(t, cy.id, users[0].ID)
	assert.Equal(t, bob.id, users[1].ID)
}

func TestUploadAndServeFile(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.TXT")
	require.NoError(t, err)
	part.Write([]byte("hello file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ada.token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[map[string]interface{}](t, w)
	url := resp["url"].(string)
	assert.Regexp(t, `^/files/.+\.txt$`, url)
	assert.Equal(t, "notes.TXT", resp["name"])

	w = env.do("GET", url, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello file", w.Body.String())

	assert.Equal(t, http.StatusNotFound, env.do("GET", "/files/missing.txt", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/files/upload", ada.token, nil).Code)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signup(t, "Ada", "ada@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")
	env.befriend(t, ada, bob)

	image := "data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, 128<<10))
	w := env.do("POST", "/api/message/"+bob.id, ada.token, gin.H{"image": image})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("GET", "/api/message/"+bob.id, ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.Message](t, w))
}

func TestSafeExt(t *testing.T) {
	assert.Equal(t, ".png", safeExt("photo.PNG"))
	assert.Equal(t, "", safeExt("noext"))
	assert.Equal(t, "", safeExt("weird.p/g"))
	assert.Equal(t, "", safeExt("archive.averyveryverylongext"))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
