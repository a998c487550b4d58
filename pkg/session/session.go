// Package session manages one authenticated logical connection to a
// PowerVM management endpoint: the logon exchange, the cached session
// token, refresh-on-expiry, and logoff. Refresh is serialized so that N
// concurrent callers observing an expired token cause exactly one logon
// exchange against the server.
package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/vmforge/pvmclient/pkg/entity"
	"github.com/vmforge/pvmclient/pkg/transport"
)

// LogonPath is the authentication endpoint on the management appliance.
const LogonPath = "/rest/api/web/Logon"

// Headers the session attaches to every request.
const (
	HeaderAPISession    = "X-API-Session"
	HeaderAuditMemento  = "X-Audit-Memento"
	HeaderTransactionID = "X-Transaction-ID"
	headerMCType        = "X-MC-Type"
)

const (
	logonRequestType  = "application/vnd.ibm.powervm.web+xml; type=LogonRequest"
	logonResponseType = "application/vnd.ibm.powervm.web+xml; type=LogonResponse"
)

// Session holds the authenticated connection state. Safe for concurrent
// use; token refresh is guarded internally.
type Session struct {
	cfg    Config
	client *transport.Client

	mu            sync.Mutex
	token         string
	loggedOn      bool
	reloginUnsafe bool
	mcType        string
	schemaVersion string

	sf singleflight.Group
}

// New validates the configuration and builds a Session. No network I/O
// happens until Logon or the first Token call.
func New(cfg Config) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	certFile := cfg.certFile()
	if certFile != "" {
		if _, err := os.Stat(certFile); err != nil {
			// No host-specific certificate installed; fall back to the
			// system trust store.
			certFile = ""
		}
	}

	client, err := transport.New(cfg.endpoint(), transport.Options{
		Timeout:    cfg.Timeout,
		SkipVerify: cfg.SkipVerify,
		CACertFile: certFile,
	})
	if err != nil {
		return nil, ErrInvalidConfig.Err(err)
	}

	return &Session{cfg: cfg, client: client}, nil
}

// LocalAuth reports whether the session uses file-based local
// authentication.
func (s *Session) LocalAuth() bool {
	return s.cfg.Password == ""
}

// Endpoint returns the base URL of the management endpoint.
func (s *Session) Endpoint() string {
	return s.client.Endpoint()
}

// Host returns the configured endpoint host.
func (s *Session) Host() string {
	return s.cfg.Host
}

// Logon performs the authentication exchange and caches the resulting
// session token. Calling Logon on an already logged-on session replaces
// the token.
func (s *Session) Logon(ctx context.Context) error {
	_, err := s.logon(ctx)
	return err
}

func (s *Session) logon(ctx context.Context) (string, error) {
	log.Info().Str("host", s.cfg.Host).Msg("session logging on")

	body, err := s.logonRequestBody()
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Accept", logonResponseType)
	headers.Set("Content-Type", logonRequestType)
	headers.Set(HeaderAuditMemento, s.cfg.AuditMemento)

	resp, err := s.client.Do(ctx, &transport.Request{
		Method:    http.MethodPut,
		Path:      LogonPath,
		Headers:   headers,
		Body:      strings.NewReader(body),
		Sensitive: true,
	})
	if err != nil {
		return "", classifyNetError(err)
	}

	if resp.Status == http.StatusUnauthorized {
		return "", ErrAuthentication.Msg("logon rejected by server")
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", ErrAuthentication.MsgErr("logon failed",
			errors.New(resp.Reason)).SetStatusCode(resp.Status)
	}

	root, err := entity.ParseElement(resp.Body)
	if err != nil {
		return "", ErrAuthentication.MsgErr("unable to parse logon response", err)
	}

	var token string
	if s.LocalAuth() {
		token, err = tokenFromFile(root)
	} else {
		token, err = tokenFromResponse(root)
	}
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.token = token
	s.loggedOn = true
	// A successful exchange proves the credentials; the relogin latch
	// only guards against hammering rejected ones.
	s.reloginUnsafe = false
	s.mcType = resp.Headers.Get(headerMCType)
	if s.mcType == "" {
		s.mcType = mcTypeHMC
	}
	s.schemaVersion = root.Attr("schemaVersion", "")
	s.mu.Unlock()

	return token, nil
}

// logonRequestBody renders the LogonRequest document for the configured
// authentication mode. Built through the element tree so credential values
// are XML-escaped.
func (s *Session) logonRequestBody() (string, error) {
	children := []*entity.Element{
		entity.NewElement("UserID", entity.Namespace(""), entity.Text(s.cfg.Username)),
	}
	if s.LocalAuth() {
		children = append(children,
			entity.NewElement("GenerateX-API-SessionFile", entity.Namespace(""), entity.Text("true")))
	} else {
		children = append(children,
			entity.NewElement("Password", entity.Namespace(""), entity.Text(s.cfg.Password)))
	}
	req := entity.NewElement("LogonRequest",
		entity.Namespace(entity.WebNS),
		entity.SchemaVersion(entity.DefaultSchemaVersion),
		entity.Children(children...))
	return req.XMLString()
}

func tokenFromResponse(root *entity.Element) (string, error) {
	token := root.FindText(HeaderAPISession, "")
	if token == "" {
		return "", ErrAuthentication.Msg("logon response carried no session token")
	}
	return token, nil
}

// tokenFromFile handles local mode: the server writes the token to a file
// only a trusted local user can read, and returns its path.
func tokenFromFile(root *entity.Element) (string, error) {
	path := root.FindText("X-API-SessionFile", "")
	if path == "" {
		return "", ErrAuthentication.Msg("logon response carried no session file path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ErrAuthentication.MsgErr("unable to read session token file", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrAuthentication.Msg("session token file was empty")
	}
	return token, nil
}

// Token returns the cached session token, establishing one if needed. A
// failed establishment is not cached; the next call retries the exchange.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" {
		tok := s.token
		s.mu.Unlock()
		return tok, nil
	}
	if s.reloginUnsafe {
		s.mu.Unlock()
		return "", ErrReloginUnsafe
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do("logon", func() (interface{}, error) {
		// Another caller may have logged on while we queued.
		s.mu.Lock()
		if s.token != "" {
			tok := s.token
			s.mu.Unlock()
			return tok, nil
		}
		s.mu.Unlock()
		return s.logon(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh replaces a token observed to be expired. stale is the token the
// caller was using when it got HTTP 401; if the cached token already
// differs, another caller refreshed first and that token is returned
// without a new exchange. A refresh rejected with 401 latches the session
// relogin-unsafe: continuing to retry credentials risks locking the
// account.
func (s *Session) Refresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	if s.reloginUnsafe {
		s.mu.Unlock()
		return "", ErrReloginUnsafe
	}
	if s.token != "" && s.token != stale {
		tok := s.token
		s.mu.Unlock()
		return tok, nil
	}
	s.token = ""
	s.mu.Unlock()

	v, err, _ := s.sf.Do("logon", func() (interface{}, error) {
		s.mu.Lock()
		if s.token != "" && s.token != stale {
			tok := s.token
			s.mu.Unlock()
			return tok, nil
		}
		s.mu.Unlock()

		log.Info().Str("host", s.cfg.Host).Msg("attempting re-login")
		tok, err := s.logon(ctx)
		if err != nil && errors.Is(err, ErrAuthentication) {
			s.mu.Lock()
			s.reloginUnsafe = true
			s.mu.Unlock()
			log.Warn().Str("host", s.cfg.Host).Msg("re-login rejected; session marked unsafe for further re-login")
		}
		return tok, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, but only if it still equals stale.
// A concurrent refresh may already have replaced the token; that fresh
// token must not be discarded. Idempotent.
func (s *Session) Invalidate(stale string) {
	s.mu.Lock()
	if s.token == stale {
		s.token = ""
	}
	s.mu.Unlock()
}

// Logoff releases the session on the server and drops the token. After
// Logoff the session will not re-authenticate: in-flight requests that
// observe a 401 fail rather than logging back on.
func (s *Session) Logoff(ctx context.Context) error {
	s.mu.Lock()
	if !s.loggedOn {
		s.mu.Unlock()
		return nil
	}
	token := s.token
	s.token = ""
	s.loggedOn = false
	s.reloginUnsafe = true
	s.mu.Unlock()

	log.Info().Str("host", s.cfg.Host).Msg("session logging off")

	headers := http.Header{}
	headers.Set(HeaderAPISession, token)
	headers.Set(HeaderAuditMemento, s.cfg.AuditMemento)
	_, err := s.client.Do(ctx, &transport.Request{
		Method:  http.MethodDelete,
		Path:    LogonPath,
		Headers: headers,
	})
	if err != nil {
		log.Warn().Err(err).Msg("problem logging off; ignoring")
	}
	return nil
}

// Request issues an authenticated request. The session token, audit
// memento, and a fresh transaction ID are attached. On HTTP 401 the token
// is refreshed (single-flight) and the request retried exactly once; a 401
// on the retry is returned as ErrAuthentication. All other statuses are
// returned to the caller unmapped.
func (s *Session) Request(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return s.request(ctx, req, true)
}

func (s *Session) request(ctx context.Context, req *transport.Request, relogin bool) (*transport.Response, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}

	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	req.Headers.Set(HeaderAPISession, token)
	if req.Headers.Get(HeaderAuditMemento) == "" {
		req.Headers.Set(HeaderAuditMemento, s.cfg.AuditMemento)
	}
	req.Headers.Set(HeaderTransactionID, uuid.NewString())

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, classifyNetError(err)
	}

	if resp.Status == http.StatusUnauthorized {
		if !relogin {
			// The token was brand new; a second 401 means the server is
			// rejecting our credentials, not an expired session.
			return nil, ErrAuthentication.Msg("request rejected with fresh session token")
		}
		log.Debug().Str("host", s.cfg.Host).Msg("request unauthorized; refreshing session")
		if _, err := s.Refresh(ctx, token); err != nil {
			return nil, err
		}
		if req.Body != nil {
			if seeker, ok := req.Body.(interface {
				Seek(int64, int) (int64, error)
			}); ok {
				if _, err := seeker.Seek(0, 0); err != nil {
					return nil, ErrSession.MsgErr("unable to rewind request body for retry", err)
				}
			} else {
				return nil, ErrAuthentication.Msg("session expired and request body is not replayable")
			}
		}
		return s.request(ctx, req, false)
	}

	return resp, nil
}

// StreamRequest is Request for unbuffered response bodies. Body-less
// requests (downloads) get the same refresh-and-retry-once treatment as
// buffered ones on HTTP 401; requests with a body (uploads) fail instead,
// since the stream has already been consumed and cannot be replayed.
func (s *Session) StreamRequest(ctx context.Context, req *transport.Request) (*transport.StreamResponse, error) {
	return s.streamRequest(ctx, req, true)
}

func (s *Session) streamRequest(ctx context.Context, req *transport.Request, relogin bool) (*transport.StreamResponse, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	req.Headers.Set(HeaderAPISession, token)
	if req.Headers.Get(HeaderAuditMemento) == "" {
		req.Headers.Set(HeaderAuditMemento, s.cfg.AuditMemento)
	}
	req.Headers.Set(HeaderTransactionID, uuid.NewString())

	resp, err := s.client.DoStream(ctx, req)
	if err != nil {
		return nil, classifyNetError(err)
	}
	if resp.Status == http.StatusUnauthorized {
		resp.Body.Close()
		if !relogin || req.Body != nil {
			return nil, ErrAuthentication.Msg("stream request unauthorized")
		}
		log.Debug().Str("host", s.cfg.Host).Msg("stream request unauthorized; refreshing session")
		if _, err := s.Refresh(ctx, token); err != nil {
			return nil, err
		}
		return s.streamRequest(ctx, req, false)
	}
	return resp, nil
}

// classifyNetError translates raw transport failures into the session
// error taxonomy. Timeouts and TLS failures are distinguishable but both
// match ErrConnectivity.
func classifyNetError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if uerr.Timeout() {
			return ErrTimeout.Err(err)
		}
		var recordErr tls.RecordHeaderError
		var certErr *tls.CertificateVerificationError
		var unknownAuthErr x509.UnknownAuthorityError
		var hostErr x509.HostnameError
		if errors.As(err, &recordErr) || errors.As(err, &certErr) ||
			errors.As(err, &unknownAuthErr) || errors.As(err, &hostErr) {
			return ErrTLS.Err(err)
		}
	}
	return ErrConnectivity.Err(err)
}
