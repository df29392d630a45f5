package goAccount

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func accountTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "https://id.example.test/realms/demo"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	return cfg
}

// recordingPage records every builder call made during one dispatch.
type recordingPage struct {
	mu sync.Mutex

	realm        Realm
	auth         *AuthContext
	stateChecker string
	sessions     []SessionInfo
	sessionsSet  int
	passwordSet  *bool
	successKey   string
	errorStatus  int
	errorKey     string
	errorArgs    []any
	attributes   map[string]string
	created      []PageID
}

func (p *recordingPage) SetRealm(realm Realm) PageBuilder {
	p.realm = realm
	return p
}

func (p *recordingPage) SetRequest(RequestInfo) PageBuilder { return p }

func (p *recordingPage) SetAuthContext(auth *AuthContext) PageBuilder {
	p.auth = auth
	return p
}

func (p *recordingPage) SetFeatures(Features) PageBuilder { return p }

func (p *recordingPage) SetStateChecker(token string) PageBuilder {
	p.stateChecker = token
	return p
}

func (p *recordingPage) SetSessions(sessions []SessionInfo) PageBuilder {
	p.sessions = sessions
	p.sessionsSet++
	return p
}

func (p *recordingPage) SetPasswordSet(set bool) PageBuilder {
	p.passwordSet = &set
	return p
}

func (p *recordingPage) SetSuccess(message string, _ ...any) PageBuilder {
	p.successKey = message
	return p
}

func (p *recordingPage) SetError(status int, message string, args ...any) PageBuilder {
	p.errorStatus = status
	p.errorKey = message
	p.errorArgs = args
	return p
}

func (p *recordingPage) SetAttribute(key, value string) PageBuilder {
	if p.attributes == nil {
		p.attributes = map[string]string{}
	}
	p.attributes[key] = value
	return p
}

func (p *recordingPage) CreateResponse(page PageID) (*Response, error) {
	p.mu.Lock()
	p.created = append(p.created, page)
	p.mu.Unlock()

	status := http.StatusOK
	if p.errorStatus != 0 {
		status = p.errorStatus
	}
	return &Response{Status: status, Header: http.Header{}, Body: []byte(page)}, nil
}

type pageRecorder struct {
	mu    sync.Mutex
	pages []*recordingPage
}

func (r *pageRecorder) factory(context.Context) PageBuilder {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &recordingPage{}
	r.pages = append(r.pages, p)
	return p
}

func (r *pageRecorder) last(t *testing.T) *recordingPage {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pages) == 0 {
		t.Fatal("no page builder created")
	}
	return r.pages[len(r.pages)-1]
}

func (r *pageRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

type stubRedirector struct {
	calls int
	kinds []PageKind
	resp  *Response
	err   error
}

func (r *stubRedirector) RedirectToLogin(_ context.Context, kind PageKind) (*Response, error) {
	r.calls++
	r.kinds = append(r.kinds, kind)
	return r.resp, r.err
}

type stubErrorPager struct {
	calls   int
	status  int
	message string
}

func (p *stubErrorPager) CreateErrorPage(_ context.Context, status int, message string) (*Response, error) {
	p.calls++
	p.status = status
	p.message = message
	return &Response{Status: status, Header: http.Header{}, Body: []byte(message)}, nil
}

type stubSessions struct {
	calls      int
	realm      Realm
	user       Principal
	result     []SessionInfo
	err        error
	logoutKeep string
	logouts    int
}

func (s *stubSessions) GetSessionsFor(_ context.Context, realm Realm, user Principal) ([]SessionInfo, error) {
	s.calls++
	s.realm = realm
	s.user = user
	return s.result, s.err
}

func (s *stubSessions) LogoutOtherSessions(_ context.Context, _ Realm, _ Principal, keep string) (int, error) {
	s.logouts++
	s.logoutKeep = keep
	return 2, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*UserRecord

	getCalls     int
	updateCalls  int
	totpSecret   []byte
	totpVerified bool
	totpCounter  int64
	getErr       error
}

func newMemUsers(records ...UserRecord) *memUsers {
	m := &memUsers{users: map[string]*UserRecord{}}
	for i := range records {
		r := records[i]
		m.users[r.RealmID+"/"+r.UserID] = &r
	}
	return m
}

func (m *memUsers) lookup(realmID, userID string) (*UserRecord, error) {
	u, ok := m.users[realmID+"/"+userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) GetUserByID(_ context.Context, realmID, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return UserRecord{}, m.getErr
	}
	u, err := m.lookup(realmID, userID)
	if err != nil {
		return UserRecord{}, err
	}
	return *u, nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, realmID, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	u, err := m.lookup(realmID, userID)
	if err != nil {
		return err
	}
	u.PasswordHash = newHash
	return nil
}

func (m *memUsers) EnableTOTP(_ context.Context, realmID, userID string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.lookup(realmID, userID)
	if err != nil {
		return err
	}
	u.TOTPEnabled = true
	m.totpSecret = append([]byte(nil), secret...)
	return nil
}

func (m *memUsers) DisableTOTP(_ context.Context, realmID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.lookup(realmID, userID)
	if err != nil {
		return err
	}
	u.TOTPEnabled = false
	m.totpSecret = nil
	m.totpVerified = false
	return nil
}

func (m *memUsers) MarkTOTPVerified(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totpVerified = true
	return nil
}

func (m *memUsers) UpdateTOTPLastUsedCounter(_ context.Context, _, _ string, counter int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totpCounter = counter
	return nil
}

func (m *memUsers) record(realmID, userID string) UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.lookup(realmID, userID)
	if err != nil {
		return UserRecord{}
	}
	return *u
}

type consoleFixture struct {
	console    *Console
	pages      *pageRecorder
	redirector *stubRedirector
	errorPages *stubErrorPager
	sessions   *stubSessions
	users      *memUsers
	audit      ChannelSink
	mr         *miniredis.Miniredis
	rdb        *redis.Client
}

func newConsoleFixture(t testing.TB, cfg Config, users *memUsers) *consoleFixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	if users == nil {
		users = newMemUsers()
	}
	f := &consoleFixture{
		pages: &pageRecorder{},
		redirector: &stubRedirector{resp: &Response{
			Status: http.StatusOK,
			Header: http.Header{"Location": []string{"/login"}},
		}},
		errorPages: &stubErrorPager{},
		sessions:   &stubSessions{result: []SessionInfo{}},
		users:      users,
		audit:      NewChannelSink(64),
		mr:         mr,
		rdb:        rdb,
	}

	console, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPageBuilder(f.pages.factory).
		WithLoginRedirector(f.redirector).
		WithErrorPager(f.errorPages).
		WithSessionProvider(f.sessions).
		WithUserProvider(users).
		WithAuditSink(f.audit).
		Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("build console: %v", err)
	}
	f.console = console

	t.Cleanup(func() {
		console.Close()
		rdb.Close()
		mr.Close()
	})
	return f
}

func testAuth(roles ...string) *AuthContext {
	if len(roles) == 0 {
		roles = []string{PermissionManageAccount}
	}
	return &AuthContext{
		Realm:     Realm{ID: "demo", Name: "demo"},
		User:      Principal{ID: "u-1", Username: "alice", Email: "alice@example.test"},
		Client:    Client{ClientID: "account-console"},
		SessionID: "sid-current",
		Roles:     roles,
	}
}

func formRequest(stateChecker string, values map[string]string) RequestInfo {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	return RequestInfo{
		Realm:        Realm{ID: "demo", Name: "demo"},
		BaseURL:      "/realms/demo/account",
		Method:       http.MethodPost,
		Form:         form,
		StateChecker: stateChecker,
	}
}

// nextEvent waits for the next audit event with the given type.
func (f *consoleFixture) nextEvent(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.audit.Events():
			if ev.Type == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("audit event %q not emitted", eventType)
			return AuditEvent{}
		}
	}
}

// seedPassword stores the hash of pw on the fixture's test user.
func (f *consoleFixture) seedPassword(t *testing.T, pw string) {
	t.Helper()
	h, err := f.console.passwordHash.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	u, err := f.users.lookup("demo", "u-1")
	if err != nil {
		t.Fatalf("seed password: %v", err)
	}
	u.PasswordHash = h
}

func aliceRecord() UserRecord {
	return UserRecord{UserID: "u-1", RealmID: "demo", Username: "alice", Email: "alice@example.test"}
}
