package pages

import (
	"fmt"

	goAccount "github.com/MrEthical07/goAccount"
)

type pendingMessage struct {
	key  string
	args []any
}

// Builder is the default [goAccount.PageBuilder]. It collects page state and
// renders HTML on CreateResponse. A Builder serves one request.
type Builder struct {
	renderer *Renderer

	realm        goAccount.Realm
	info         goAccount.RequestInfo
	auth         *goAccount.AuthContext
	features     goAccount.Features
	stateChecker string
	sessions     []goAccount.SessionInfo
	passwordSet  bool
	locale       string

	status     int
	success    *pendingMessage
	err        *pendingMessage
	attributes map[string]string
}

var _ goAccount.PageBuilder = (*Builder)(nil)

func (b *Builder) SetRealm(realm goAccount.Realm) goAccount.PageBuilder {
	b.realm = realm
	return b
}

// SetRequest records the request info. A non-empty locale replaces the one
// taken from the context.
func (b *Builder) SetRequest(info goAccount.RequestInfo) goAccount.PageBuilder {
	b.info = info
	if info.Locale != "" {
		b.locale = info.Locale
	}
	return b
}

func (b *Builder) SetAuthContext(auth *goAccount.AuthContext) goAccount.PageBuilder {
	b.auth = auth
	return b
}

func (b *Builder) SetFeatures(features goAccount.Features) goAccount.PageBuilder {
	b.features = features
	return b
}

func (b *Builder) SetStateChecker(token string) goAccount.PageBuilder {
	b.stateChecker = token
	return b
}

func (b *Builder) SetSessions(sessions []goAccount.SessionInfo) goAccount.PageBuilder {
	b.sessions = sessions
	return b
}

func (b *Builder) SetPasswordSet(set bool) goAccount.PageBuilder {
	b.passwordSet = set
	return b
}

func (b *Builder) SetSuccess(message string, args ...any) goAccount.PageBuilder {
	b.success = &pendingMessage{key: message, args: args}
	return b
}

// SetError sets the page error. A zero status keeps the current one.
func (b *Builder) SetError(status int, message string, args ...any) goAccount.PageBuilder {
	if status != 0 {
		b.status = status
	}
	b.err = &pendingMessage{key: message, args: args}
	return b
}

func (b *Builder) SetAttribute(key, value string) goAccount.PageBuilder {
	b.attributes[key] = value
	return b
}

// CreateResponse renders page.
func (b *Builder) CreateResponse(page goAccount.PageID) (*goAccount.Response, error) {
	tmpl, ok := b.renderer.pages[page]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}

	catalog := b.renderer.catalog
	printer := catalog.Printer(b.locale)

	realmName := b.realm.DisplayName
	if realmName == "" {
		realmName = b.realm.Name
	}
	if realmName == "" {
		realmName = b.realm.ID
	}

	data := &Data{
		Page:         string(page),
		Lang:         catalog.Match(b.locale).String(),
		RealmName:    realmName,
		BaseURL:      b.info.BaseURL,
		Referrer:     b.info.Referrer,
		Auth:         b.auth,
		Features:     b.features,
		StateChecker: b.stateChecker,
		Sessions:     b.sessions,
		PasswordSet:  b.passwordSet,
		Attributes:   b.attributes,
		printer:      printer,
	}
	if b.success != nil {
		data.Success = printer.Sprintf(b.success.key, b.success.args...)
	}
	if b.err != nil {
		data.Error = printer.Sprintf(b.err.key, b.err.args...)
	}

	return b.renderer.render(tmpl, "layout", b.status, data)
}
