package goAccount

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	internalaudit "github.com/MrEthical07/goAccount/internal/audit"
	"github.com/rs/zerolog"
)

// PageKind identifies one of the closed set of requests the account console serves.
//
// Each kind maps to exactly one [PageID] and one login path.
type PageKind uint8

const (
	// KindAccount is the profile overview page.
	KindAccount PageKind = iota
	// KindPassword is the password page.
	KindPassword
	// KindFederatedIdentity is the linked identity providers page.
	KindFederatedIdentity
	// KindSessions is the active sessions page.
	KindSessions
	// KindApplications is the applications page.
	KindApplications
	// KindTOTP is the authenticator setup page.
	KindTOTP
	// KindTOTPUpdate processes a posted authenticator form.
	KindTOTPUpdate
	// KindPasswordUpdate processes a posted password form.
	KindPasswordUpdate

	pageKindCount
)

// PageID tags the template a [PageBuilder] renders.
type PageID string

const (
	// PageAccount is an exported constant or variable used by the account console.
	PageAccount PageID = "account"
	// PagePassword is an exported constant or variable used by the account console.
	PagePassword PageID = "password"
	// PageFederatedIdentity is an exported constant or variable used by the account console.
	PageFederatedIdentity PageID = "federatedIdentity"
	// PageSessions is an exported constant or variable used by the account console.
	PageSessions PageID = "sessions"
	// PageApplications is an exported constant or variable used by the account console.
	PageApplications PageID = "applications"
	// PageTOTP is an exported constant or variable used by the account console.
	PageTOTP PageID = "totp"
)

type pageKindInfo struct {
	name      string
	page      PageID
	loginPath string
}

var pageKinds = [pageKindCount]pageKindInfo{
	KindAccount:           {name: "account", page: PageAccount, loginPath: ""},
	KindPassword:          {name: "password", page: PagePassword, loginPath: "password"},
	KindFederatedIdentity: {name: "federated_identity", page: PageFederatedIdentity, loginPath: "identity"},
	KindSessions:          {name: "sessions", page: PageSessions, loginPath: "sessions"},
	KindApplications:      {name: "applications", page: PageApplications, loginPath: "applications"},
	KindTOTP:              {name: "totp", page: PageTOTP, loginPath: "totp"},
	KindTOTPUpdate:        {name: "totp_update", page: PageTOTP, loginPath: "totp"},
	KindPasswordUpdate:    {name: "password_update", page: PagePassword, loginPath: "password"},
}

// Valid reports whether k belongs to the closed page set.
func (k PageKind) Valid() bool {
	return k < pageKindCount
}

func (k PageKind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return pageKinds[k].name
}

// Page returns the page identifier rendered for k.
func (k PageKind) Page() PageID {
	if !k.Valid() {
		return ""
	}
	return pageKinds[k].page
}

// LoginPath returns the console sub-path the login flow should return to
// after authenticating a request for k. The account overview maps to "".
func (k PageKind) LoginPath() string {
	if !k.Valid() {
		return ""
	}
	return pageKinds[k].loginPath
}

// PageKinds returns every kind in declaration order.
func PageKinds() []PageKind {
	out := make([]PageKind, 0, pageKindCount)
	for k := PageKind(0); k < pageKindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Realm identifies the security domain a request belongs to.
type Realm struct {
	ID          string
	Name        string
	DisplayName string
}

// Principal is the authenticated user as seen by the console.
type Principal struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// Client is the application the identity token was issued to.
type Client struct {
	ClientID string
	Name     string
}

// AuthContext is the optional authenticated-principal context of a request.
// A nil *AuthContext means the request is unauthenticated.
type AuthContext struct {
	Realm     Realm
	User      Principal
	Client    Client
	SessionID string
	Roles     []string
}

// RequestInfo carries the request-scoped inputs a dispatcher needs beyond the
// auth context: where the console is mounted, posted form values, and the
// state-checker token bound to the browser.
type RequestInfo struct {
	Realm        Realm
	BaseURL      string
	Method       string
	Form         url.Values
	StateChecker string
	Locale       string
	Referrer     string
}

// Response is the single outcome of a dispatch.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Location returns the redirect target of r, if any.
func (r *Response) Location() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Location")
}

// SessionInfo is one active session of a user as listed on the sessions page.
type SessionInfo struct {
	ID         string
	IPAddress  string
	Started    time.Time
	LastAccess time.Time
	Expires    time.Time
	Clients    []string
	Current    bool
}

// Features selects the optional console capabilities. It is passed explicitly
// through [Config] rather than read from process-wide state.
type Features struct {
	IdentityFederation bool
	Events             bool
	PasswordUpdate     bool
	TOTP               bool
}

// PageBuilder assembles one account page. Setters return the builder so calls
// can be chained; CreateResponse is terminal.
type PageBuilder interface {
	SetRealm(realm Realm) PageBuilder
	SetRequest(info RequestInfo) PageBuilder
	SetAuthContext(auth *AuthContext) PageBuilder
	SetFeatures(features Features) PageBuilder
	SetStateChecker(token string) PageBuilder
	SetSessions(sessions []SessionInfo) PageBuilder
	SetPasswordSet(set bool) PageBuilder
	SetSuccess(message string, args ...any) PageBuilder
	SetError(status int, message string, args ...any) PageBuilder
	SetAttribute(key, value string) PageBuilder
	CreateResponse(page PageID) (*Response, error)
}

// PageBuilderFactory creates a fresh [PageBuilder] for one request.
type PageBuilderFactory func(ctx context.Context) PageBuilder

// SessionProvider lists the active sessions of a user. It must return a
// non-nil slice on success, possibly empty.
type SessionProvider interface {
	GetSessionsFor(ctx context.Context, realm Realm, user Principal) ([]SessionInfo, error)
}

// SessionTerminator is implemented by session providers that can end every
// session of a user but one.
type SessionTerminator interface {
	LogoutOtherSessions(ctx context.Context, realm Realm, user Principal, keepSessionID string) (int, error)
}

// LoginRedirector produces the response that sends an unauthenticated request
// to the login flow.
type LoginRedirector interface {
	RedirectToLogin(ctx context.Context, kind PageKind) (*Response, error)
}

// ErrorPager renders stand-alone error pages (forbidden, bad request).
type ErrorPager interface {
	CreateErrorPage(ctx context.Context, status int, message string) (*Response, error)
}

// UserProvider is the primary interface that callers must implement to
// integrate the console with their user database. It covers lookup, password
// updates and the TOTP credential lifecycle.
type UserProvider interface {
	GetUserByID(ctx context.Context, realmID, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, realmID, userID, newHash string) error
	EnableTOTP(ctx context.Context, realmID, userID string, secret []byte) error
	DisableTOTP(ctx context.Context, realmID, userID string) error
	MarkTOTPVerified(ctx context.Context, realmID, userID string) error
	UpdateTOTPLastUsedCounter(ctx context.Context, realmID, userID string, counter int64) error
}

// UserRecord is the account record returned by [UserProvider].
type UserRecord struct {
	UserID       string
	RealmID      string
	Username     string
	Email        string
	PasswordHash string
	TOTPEnabled  bool
}

// AuditEvent is a structured account event emitted by the console.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the console's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink is an [AuditSink] that writes events through a zerolog logger.
type LogSink = internalaudit.LogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink creates a [LogSink] that writes to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return internalaudit.NewLogSink(logger)
}
