package adapter

import (
	"net/url"
	"strings"

	"github.com/vmforge/pvmclient/pkg/entity"
)

// APIBase is the path prefix shared by every REST resource.
const APIBase = "/rest/api"

// Services addressable under the API base.
const (
	ServiceUOM = "uom"
	ServiceWeb = "web"
	ServicePCM = "pcm"
)

// Suffix types with special handling.
const (
	SuffixQuick = "quick"
	SuffixDo    = "do"
)

// Ident addresses a resource or collection:
//
//	/rest/api/{service}/{root}[/{rootID}[/{child}[/{childID}]]][/{suffix}[/{suffixParm}]]
//
// The zero Service means uom. XAG selects extended attribute groups for
// reads; Detail narrows a quick read.
type Ident struct {
	Service    string
	RootType   string
	RootID     string
	ChildType  string
	ChildID    string
	SuffixType string
	SuffixParm string
	XAG        entity.XAG
	Detail     string
}

// validate enforces the structural composition rules: identifiers require
// their type segment, and child segments require a fully-addressed root.
func (id Ident) validate() error {
	if id.RootType == "" {
		return ErrInvalidPath.Msg("root type is required")
	}
	if id.ChildType != "" && id.RootID == "" {
		return ErrInvalidPath.Msg("child type requires a root identifier")
	}
	if id.ChildID != "" && id.ChildType == "" {
		return ErrInvalidPath.Msg("child identifier requires a child type")
	}
	if id.SuffixParm != "" && id.SuffixType == "" {
		return ErrInvalidPath.Msg("suffix parameter requires a suffix type")
	}
	svc := id.service()
	if svc != ServiceUOM && svc != ServiceWeb && svc != ServicePCM {
		return ErrInvalidPath.Msg("unknown service " + svc)
	}
	return nil
}

func (id Ident) service() string {
	if id.Service == "" {
		return ServiceUOM
	}
	return id.Service
}

// leaf reports whether the path addresses a single resource instance
// rather than a collection.
func (id Ident) leaf() bool {
	if id.ChildType != "" {
		return id.ChildID != ""
	}
	return id.RootID != ""
}

// path renders the resource path. Query parameters are rendered
// separately by query().
func (id Ident) path() (string, error) {
	if err := id.validate(); err != nil {
		return "", err
	}

	segs := []string{APIBase, id.service(), id.RootType}
	if id.RootID != "" {
		segs = append(segs, url.PathEscape(id.RootID))
		if id.ChildType != "" {
			segs = append(segs, id.ChildType)
			if id.ChildID != "" {
				segs = append(segs, url.PathEscape(id.ChildID))
			}
		}
	}
	if id.SuffixType != "" {
		segs = append(segs, id.SuffixType)
		if id.SuffixParm != "" {
			segs = append(segs, url.PathEscape(id.SuffixParm))
		}
	}

	return strings.Join(segs, "/"), nil
}

// query renders the group/detail parameters. A nil XAG becomes group=None
// so the server skips its expensive default groups; only the quick and do
// suffixes take no group at all unless one was set explicitly.
func (id Ident) query() url.Values {
	q := url.Values{}
	if id.XAG == nil {
		if id.SuffixType != SuffixQuick && id.SuffixType != SuffixDo {
			q.Set("group", entity.XAGNone)
		}
	} else if !id.XAG.Omit() {
		q.Set("group", id.XAG.QueryValue())
	}
	if id.Detail != "" {
		q.Set("detail", id.Detail)
	}
	return q
}
