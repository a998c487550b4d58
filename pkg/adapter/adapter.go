// Package adapter is the façade over a PowerVM REST session: typed CRUD
// on Atom resources, quick JSON property reads, job submission, and file
// transfer, with the ETag discipline the API requires for writes. Helpers
// wrap the request pipeline for cross-cutting behavior (failure logging,
// busy retry).
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vmforge/pvmclient/pkg/entity"
	"github.com/vmforge/pvmclient/pkg/session"
	"github.com/vmforge/pvmclient/pkg/transport"
)

// Media types used in content negotiation.
const (
	AtomMediaType = "application/atom+xml"
	JSONMediaType = "application/json"
)

// ContentType renders the vendor media type for a resource payload, e.g.
// application/vnd.ibm.powervm.uom+xml; type=LogicalPartition.
func ContentType(service, tag string) string {
	return fmt.Sprintf("application/vnd.ibm.powervm.%s+xml; type=%s", service, tag)
}

// Request is one adapter-level exchange as seen by helpers. The body is
// buffered so helpers can replay the request.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
	// Sensitive suppresses body capture by logging helpers.
	Sensitive bool
}

// RequestFunc issues a Request and returns the raw response. Helpers see
// error-status responses as responses, not errors; translation into the
// error taxonomy happens after the chain.
type RequestFunc func(ctx context.Context, req *Request) (*transport.Response, error)

// Helper wraps a RequestFunc with cross-cutting behavior.
type Helper func(next RequestFunc) RequestFunc

// Adapter issues typed operations over one session. It is immutable and
// safe for concurrent use; WithHelpers derives variants.
type Adapter struct {
	sess    *session.Session
	helpers []Helper
}

// Option configures a new Adapter.
type Option func(*Adapter)

// WithHelpers registers the default helper chain. The first helper runs
// outermost.
func WithHelpers(hs ...Helper) Option {
	return func(a *Adapter) {
		a.helpers = hs
	}
}

// New builds an Adapter over an established (or establishable) session.
func New(sess *session.Session, opts ...Option) *Adapter {
	a := &Adapter{sess: sess}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Session exposes the underlying session.
func (a *Adapter) Session() *session.Session {
	return a.sess
}

// WithHelpers returns a derived Adapter whose calls use the given helper
// chain instead of the default one. Pass none to disable helpers for a
// call.
func (a *Adapter) WithHelpers(hs ...Helper) *Adapter {
	return &Adapter{sess: a.sess, helpers: hs}
}

// invoke runs the request through the helper chain. Helpers are applied
// in reverse registration order so the first registered wraps outermost.
func (a *Adapter) invoke(ctx context.Context, req *Request) (*transport.Response, error) {
	fn := a.send
	for i := len(a.helpers) - 1; i >= 0; i-- {
		fn = a.helpers[i](fn)
	}
	return fn(ctx, req)
}

// send is the innermost RequestFunc: one authenticated exchange. A fresh
// transport request is built per call so helper-driven replays are safe.
func (a *Adapter) send(ctx context.Context, req *Request) (*transport.Response, error) {
	treq := &transport.Request{
		Method:    req.Method,
		Path:      req.Path,
		Query:     req.Query,
		Headers:   req.Headers.Clone(),
		Sensitive: req.Sensitive,
	}
	if len(req.Body) > 0 {
		treq.Body = bytes.NewReader(req.Body)
	}
	return a.sess.Request(ctx, treq)
}

// Read fetches a single resource instance. The identifier must address a
// leaf (root or child instance).
func (a *Adapter) Read(ctx context.Context, id Ident) (*entity.Entry, error) {
	return a.read(ctx, id, "")
}

// ReadIfNoneMatch is a conditional Read: when the resource still matches
// etag, the server answers 304 and ErrNotModified is returned instead of
// a payload.
func (a *Adapter) ReadIfNoneMatch(ctx context.Context, id Ident, etag string) (*entity.Entry, error) {
	return a.read(ctx, id, etag)
}

func (a *Adapter) read(ctx context.Context, id Ident, etag string) (*entity.Entry, error) {
	if !id.leaf() {
		return nil, ErrInvalidPath.Msg("read requires a resource identifier")
	}
	path, err := id.path()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Accept", AtomMediaType)
	if etag != "" {
		headers.Set("If-None-Match", etag)
	}

	resp, err := a.invoke(ctx, &Request{
		Method:  http.MethodGet,
		Path:    path,
		Query:   id.query(),
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	entry, err := parseEntry(resp)
	if err != nil {
		return nil, err
	}
	carryGroup(entry, id)
	return entry, nil
}

// ReadAll fetches a collection. The identifier must address a collection
// (no trailing instance identifier). HTTP 204 yields an empty feed.
func (a *Adapter) ReadAll(ctx context.Context, id Ident) (*entity.Feed, error) {
	if id.leaf() {
		return nil, ErrInvalidPath.Msg("collection read got a resource identifier")
	}
	path, err := id.path()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Accept", AtomMediaType)

	resp, err := a.invoke(ctx, &Request{
		Method:  http.MethodGet,
		Path:    path,
		Query:   id.query(),
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNoContent || len(resp.Body) == 0 {
		return &entity.Feed{
			Properties: map[string]string{},
			Links:      map[string][]string{},
		}, nil
	}

	doc, err := entity.Parse(resp.Body)
	if err != nil {
		return nil, ErrMalformedResponse.Err(err)
	}
	if doc.Feed == nil {
		return nil, ErrMalformedResponse.Msg("expected an atom feed")
	}
	return doc.Feed, nil
}

// ReadByHref follows an atom link. The href's host and port are replaced
// by the session's endpoint: hrefs in server responses name the address
// the server believes it has, which is not always the one the client can
// reach.
func (a *Adapter) ReadByHref(ctx context.Context, href string) (*entity.Document, error) {
	path, query, err := rebaseHref(href)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Accept", AtomMediaType)

	resp, err := a.invoke(ctx, &Request{
		Method:  http.MethodGet,
		Path:    path,
		Query:   query,
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	doc, err := entity.Parse(resp.Body)
	if err != nil {
		return nil, ErrMalformedResponse.Err(err)
	}
	if doc.Entry != nil && doc.Entry.ETag == "" {
		doc.Entry.ETag = resp.ETag()
	}
	return doc, nil
}

// Create adds a resource to a collection. The server assigns the identity
// and returns the stored entry, ETag included.
func (a *Adapter) Create(ctx context.Context, id Ident, elem *entity.Element) (*entity.Entry, error) {
	if id.leaf() {
		return nil, ErrInvalidPath.Msg("create targets a collection, not an instance")
	}
	return a.write(ctx, id, http.MethodPut, elem, "")
}

// Update replaces a resource instance. etag must be the tag from the read
// that produced elem; the server refuses the write if the resource has
// changed since. An empty etag fails locally with ErrPreconditionRequired
// before any request is issued.
func (a *Adapter) Update(ctx context.Context, id Ident, elem *entity.Element, etag string) (*entity.Entry, error) {
	if etag == "" {
		return nil, ErrPreconditionRequired.Msg("update requires the ETag from a prior read")
	}
	if !id.leaf() {
		return nil, ErrInvalidPath.Msg("update requires a resource identifier")
	}
	return a.write(ctx, id, http.MethodPost, elem, etag)
}

func (a *Adapter) write(ctx context.Context, id Ident, method string, elem *entity.Element, etag string) (*entity.Entry, error) {
	path, err := id.path()
	if err != nil {
		return nil, err
	}
	body, err := elem.ToXML()
	if err != nil {
		return nil, ErrAdapter.MsgErr("unable to serialize payload", err)
	}

	headers := http.Header{}
	headers.Set("Accept", AtomMediaType)
	headers.Set("Content-Type", ContentType(id.service(), elem.Tag()))
	if etag != "" {
		headers.Set("If-Match", etag)
	}

	resp, err := a.invoke(ctx, &Request{
		Method:  method,
		Path:    path,
		Query:   id.query(),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	entry, err := parseEntry(resp)
	if err != nil {
		return nil, err
	}
	carryGroup(entry, id)
	return entry, nil
}

// UpdateEntry writes back a previously read entry through its self link,
// preserving the link's query so a partial read (xag) round-trips the
// same attribute groups. The entry's ETag gates the write.
func (a *Adapter) UpdateEntry(ctx context.Context, entry *entity.Entry) (*entity.Entry, error) {
	if entry.ETag == "" {
		return nil, ErrPreconditionRequired.Msg("entry carries no ETag")
	}
	href := entry.SelfLink()
	if href == "" {
		return nil, ErrInvalidPath.Msg("entry carries no self link")
	}
	path, query, err := rebaseHref(href)
	if err != nil {
		return nil, err
	}

	body, err := entry.Element.ToXML()
	if err != nil {
		return nil, ErrAdapter.MsgErr("unable to serialize payload", err)
	}

	headers := http.Header{}
	headers.Set("Accept", AtomMediaType)
	headers.Set("Content-Type", ContentType(serviceFromPath(path), entry.Element.Tag()))
	headers.Set("If-Match", entry.ETag)

	resp, err := a.invoke(ctx, &Request{
		Method:  http.MethodPost,
		Path:    path,
		Query:   query,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return parseEntry(resp)
}

// Delete removes a resource instance. The same ETag precondition as
// Update applies.
func (a *Adapter) Delete(ctx context.Context, id Ident, etag string) error {
	if etag == "" {
		return ErrPreconditionRequired.Msg("delete requires the ETag from a prior read")
	}
	if !id.leaf() {
		return ErrInvalidPath.Msg("delete requires a resource identifier")
	}
	path, err := id.path()
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("If-Match", etag)

	resp, err := a.invoke(ctx, &Request{
		Method:  http.MethodDelete,
		Path:    path,
		Headers: headers,
	})
	if err != nil {
		return err
	}
	return checkResponse(resp)
}

// ReadQuick fetches the JSON quick-properties view of a resource, or a
// single property when prop is given.
func (a *Adapter) ReadQuick(ctx context.Context, id Ident, prop string) (gjson.Result, error) {
	id.SuffixType = SuffixQuick
	id.SuffixParm = prop
	if !id.leaf() {
		return gjson.Result{}, ErrInvalidPath.Msg("quick read requires a resource identifier")
	}
	path, err := id.path()
	if err != nil {
		return gjson.Result{}, err
	}

	headers := http.Header{}
	headers.Set("Accept", JSONMediaType)

	resp, err := a.invoke(ctx, &Request{
		Method:  http.MethodGet,
		Path:    path,
		Query:   id.query(),
		Headers: headers,
	})
	if err != nil {
		return gjson.Result{}, err
	}
	if err := checkResponse(resp); err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, ErrMalformedResponse.Msg("quick response is not valid JSON")
	}
	return gjson.ParseBytes(resp.Body), nil
}

// parseEntry expects a single-entry response body. The uom:etag inside
// the entry wins; the Etag header is the fallback.
func parseEntry(resp *transport.Response) (*entity.Entry, error) {
	doc, err := entity.Parse(resp.Body)
	if err != nil {
		return nil, ErrMalformedResponse.Err(err)
	}
	if doc.Entry == nil {
		return nil, ErrMalformedResponse.Msg("expected an atom entry")
	}
	if doc.Entry.ETag == "" {
		doc.Entry.ETag = resp.ETag()
	}
	return doc.Entry, nil
}

// carryGroup stamps the group query used for a read onto the entry's self
// link when the server did not echo it, so UpdateEntry round-trips the
// same attribute groups.
func carryGroup(entry *entity.Entry, id Ident) {
	group := id.query().Get("group")
	if group == "" {
		return
	}
	hrefs := entry.Links["SELF"]
	if len(hrefs) == 0 || strings.Contains(hrefs[0], "group=") {
		return
	}
	sep := "?"
	if strings.Contains(hrefs[0], "?") {
		sep = "&"
	}
	hrefs[0] += sep + "group=" + url.QueryEscape(group)
}

// rebaseHref strips an absolute href down to path and query for issue
// against the session's own endpoint.
func rebaseHref(href string) (string, url.Values, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", nil, ErrInvalidPath.MsgErr("unparsable href", err)
	}
	if !strings.HasPrefix(u.Path, APIBase) {
		return "", nil, ErrInvalidPath.Msg("href is not an API resource: " + href)
	}
	return u.Path, u.Query(), nil
}

// serviceFromPath recovers the service segment from an API path for
// content-type construction. Unknown shapes fall back to uom.
func serviceFromPath(path string) string {
	rest := strings.TrimPrefix(path, APIBase+"/")
	if i := strings.IndexByte(rest, '/'); i > 0 {
		switch svc := rest[:i]; svc {
		case ServiceUOM, ServiceWeb, ServicePCM:
			return svc
		}
	}
	return ServiceUOM
}
