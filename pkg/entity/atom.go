package entity

import (
	"strings"

	"github.com/beevik/etree"
)

// Entry is one addressable resource instance as returned by the API: its
// Atom-level properties (id, etag, links), and the resource payload as an
// element tree. Entries read from the server always carry an ETag; entries
// built client-side for create do not.
type Entry struct {
	// Properties holds the simple text properties of the atom entry
	// (title, published, ...). Links and ETag are kept separately.
	Properties map[string]string
	// Links maps upper-cased link rel values to hrefs, in document order.
	Links map[string][]string

	ETag    string
	Element *Element
}

// UUID returns the entry's atom id, which the API uses as the resource UUID.
func (e *Entry) UUID() string {
	return e.Properties["id"]
}

// SelfLink returns the first SELF link, or "".
func (e *Entry) SelfLink() string {
	if hrefs := e.Links["SELF"]; len(hrefs) > 0 {
		return hrefs[0]
	}
	return ""
}

// Feed is an ordered collection of entries plus feed-level properties.
type Feed struct {
	Properties map[string]string
	Links      map[string][]string
	Entries    []*Entry
}

// FindEntries returns the entries whose payload has a subelement at path
// with the given text.
func (f *Feed) FindEntries(path, text string) []*Entry {
	var out []*Entry
	for _, entry := range f.Entries {
		for _, sub := range entry.Element.FindAll(path) {
			if sub.Text() == text {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

// Document is a parsed response body: exactly one of Feed or Entry is set.
type Document struct {
	Feed  *Feed
	Entry *Entry
}

// Parse reads an Atom response body. CDATA sections are preserved so a
// write-back does not alter them.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ErrMalformedDocument.Err(err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ErrMalformedDocument.Msg("document has no root element")
	}
	switch root.Tag {
	case "feed":
		return &Document{Feed: UnmarshalFeed(root)}, nil
	case "entry":
		return &Document{Entry: UnmarshalEntry(root)}, nil
	}
	return nil, ErrMalformedDocument.Msg("document is not an Atom feed or entry")
}

// ParseElement reads an arbitrary XML document into an element tree.
func ParseElement(data []byte) (*Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ErrMalformedDocument.Err(err)
	}
	if doc.Root() == nil {
		return nil, ErrMalformedDocument.Msg("document has no root element")
	}
	return wrap(doc.Root()), nil
}

// UnmarshalFeed builds a Feed from a parsed <feed> element.
func UnmarshalFeed(feedEl *etree.Element) *Feed {
	feed := &Feed{
		Properties: map[string]string{},
		Links:      map[string][]string{},
	}
	for _, child := range feedEl.ChildElements() {
		if child.Tag == "entry" {
			feed.Entries = append(feed.Entries, UnmarshalEntry(child))
			continue
		}
		if len(child.ChildElements()) == 0 {
			processProp(child, feed.Properties, feed.Links, nil)
		}
	}
	return feed
}

// UnmarshalEntry builds an Entry from a parsed <entry> element. The resource
// payload is the single element inside <content>.
func UnmarshalEntry(entryEl *etree.Element) *Entry {
	entry := &Entry{
		Properties: map[string]string{},
		Links:      map[string][]string{},
	}
	for _, child := range entryEl.ChildElements() {
		if child.Tag == "content" {
			if kids := child.ChildElements(); len(kids) > 0 {
				// The API puts exactly one element per entry.
				entry.Element = wrap(kids[0])
			}
			continue
		}
		if len(child.ChildElements()) == 0 {
			processProp(child, entry.Properties, entry.Links, &entry.ETag)
		}
	}
	return entry
}

// processProp folds one leaf child of a feed/entry into the property maps.
// The uom etag element is routed to etag; <link> elements accumulate into
// the rel-keyed link map; <category> contributes its term attribute.
func processProp(el *etree.Element, props map[string]string, links map[string][]string, etag *string) {
	switch el.Tag {
	case "link":
		rel := strings.ToUpper(el.SelectAttrValue("rel", ""))
		links[rel] = append(links[rel], el.SelectAttrValue("href", ""))
	case "category":
		props["category"] = el.SelectAttrValue("term", "")
	case "etag":
		if etag != nil {
			*etag = el.Text()
		} else {
			props["etag"] = el.Text()
		}
	default:
		if t := el.Text(); t != "" {
			props[el.Tag] = t
		}
	}
}
