// Package entity provides the in-memory model for XML documents exchanged
// with the PowerVM REST API: a generic ordered element tree plus the Atom
// entry/feed structures the API wraps resources in. The tree preserves
// elements, attributes, and text it does not understand, so a document can
// be read, partially modified, and written back without losing fields the
// caller never interpreted.
package entity

import (
	"github.com/beevik/etree"

	"github.com/vmforge/pvmclient/pkg/apperrors"
)

// Namespaces used by the PowerVM REST API.
const (
	AtomNS = "http://www.w3.org/2005/Atom"
	WebNS  = "http://www.ibm.com/xmlns/systems/power/firmware/web/mc/2012_10/"
	UomNS  = "http://www.ibm.com/xmlns/systems/power/firmware/uom/mc/2012_10/"
	PcmNS  = "http://www.ibm.com/xmlns/systems/power/firmware/pcm/mc/2012_10/"
)

const schemaVersionAttr = "schemaVersion"

// DefaultSchemaVersion is stamped on elements built client-side.
const DefaultSchemaVersion = "V1_0"

var ErrMalformedDocument = apperrors.New("unable to parse XML document")

// Element is one node of the document tree. It wraps an etree element;
// all navigation returns nil (or the zero value) when nothing matches,
// since absence is a normal outcome in a partially fetched document.
type Element struct {
	el *etree.Element
}

// ElementOption configures an element built with NewElement.
type ElementOption func(*Element)

// Namespace sets the element's default namespace (xmlns attribute).
// An empty ns removes the declaration inherited from NewElement.
func Namespace(ns string) ElementOption {
	return func(e *Element) {
		if ns == "" {
			e.el.RemoveAttr("xmlns")
			return
		}
		e.el.CreateAttr("xmlns", ns)
	}
}

// SchemaVersion stamps the element with the given schema version attribute.
func SchemaVersion(ver string) ElementOption {
	return func(e *Element) {
		e.el.CreateAttr(schemaVersionAttr, ver)
	}
}

// Attrs sets the given attributes on the element.
func Attrs(attrs map[string]string) ElementOption {
	return func(e *Element) {
		for k, v := range attrs {
			e.el.CreateAttr(k, v)
		}
	}
}

// Text sets the element's text content.
func Text(text string) ElementOption {
	return func(e *Element) {
		e.el.SetText(text)
	}
}

// CData sets the element's text content as a CDATA section.
func CData(text string) ElementOption {
	return func(e *Element) {
		e.el.SetCData(text)
	}
}

// Children appends the given child elements in order.
func Children(children ...*Element) ElementOption {
	return func(e *Element) {
		for _, c := range children {
			e.el.AddChild(c.el)
		}
	}
}

// NewElement builds a client-side element. Elements built for submission to
// the API carry the uom namespace by default; use the Namespace option to
// override or remove it.
func NewElement(tag string, opts ...ElementOption) *Element {
	el := etree.NewElement(tag)
	el.CreateAttr("xmlns", UomNS)
	e := &Element{el: el}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// wrap adapts a raw etree element; nil-safe.
func wrap(el *etree.Element) *Element {
	if el == nil {
		return nil
	}
	return &Element{el: el}
}

// Tag returns the element's local tag name.
func (e *Element) Tag() string {
	return e.el.Tag
}

// SetTag renames the element.
func (e *Element) SetTag(tag string) {
	e.el.Tag = tag
}

// Namespace returns the element's default namespace, inherited from the
// nearest ancestor that declares one. Empty if none is declared.
func (e *Element) Namespace() string {
	for el := e.el; el != nil; el = el.Parent() {
		if ns := el.SelectAttrValue("xmlns", ""); ns != "" {
			return ns
		}
	}
	return ""
}

// Text returns the element's text content.
func (e *Element) Text() string {
	return e.el.Text()
}

// SetText sets the element's text content.
func (e *Element) SetText(text string) {
	e.el.SetText(text)
}

// Attr returns the value of the named attribute, or dflt if absent.
func (e *Element) Attr(key, dflt string) string {
	return e.el.SelectAttrValue(key, dflt)
}

// SetAttr sets the named attribute.
func (e *Element) SetAttr(key, value string) {
	e.el.CreateAttr(key, value)
}

// Attrs returns the element's attributes as a map.
func (e *Element) Attrs() map[string]string {
	m := make(map[string]string, len(e.el.Attr))
	for _, a := range e.el.Attr {
		m[a.FullKey()] = a.Value
	}
	return m
}

// Find returns the first element matching the path (tag name or
// slash-separated path relative to this element), or nil.
func (e *Element) Find(path string) *Element {
	return wrap(e.el.FindElement(path))
}

// FindAll returns all elements matching the path in document order.
func (e *Element) FindAll(path string) []*Element {
	found := e.el.FindElements(path)
	out := make([]*Element, 0, len(found))
	for _, el := range found {
		out = append(out, wrap(el))
	}
	return out
}

// FindText returns the text of the first element matching the path, or
// dflt when no element matches or the match has no text.
func (e *Element) FindText(path, dflt string) string {
	el := e.el.FindElement(path)
	if el == nil {
		return dflt
	}
	if t := el.Text(); t != "" {
		return t
	}
	return dflt
}

// Children returns the element's child elements in order.
func (e *Element) Children() []*Element {
	kids := e.el.ChildElements()
	out := make([]*Element, 0, len(kids))
	for _, el := range kids {
		out = append(out, wrap(el))
	}
	return out
}

// Append adds child to the end of this element's children.
func (e *Element) Append(child *Element) {
	e.el.AddChild(child.el)
}

// Insert places child at the given position among this element's children.
func (e *Element) Insert(index int, child *Element) {
	e.el.InsertChildAt(index, child.el)
}

// Remove detaches the given child. The comparison is by identity, not by
// tag or content.
func (e *Element) Remove(child *Element) {
	e.el.RemoveChild(child.el)
}

// Replace swaps existing for replacement in place.
func (e *Element) Replace(existing, replacement *Element) {
	idx := existing.el.Index()
	if idx < 0 {
		return
	}
	e.el.RemoveChild(existing.el)
	e.el.InsertChildAt(idx, replacement.el)
}

// Inject inserts child at the schema-correct position among this element's
// children, determined by ordering: the desired tag order for this parent.
// If a child with the same tag already exists, replace selects between
// replacing the last occurrence (true) or inserting after it (false).
// Tags not present in ordering are appended.
func (e *Element) Inject(child *Element, ordering []string, replace bool) {
	children := e.el.ChildElements()
	if len(children) == 0 {
		e.Append(child)
		return
	}

	var last *etree.Element
	for _, c := range children {
		if c.Tag == child.Tag() {
			last = c
		}
	}
	if last != nil {
		idx := last.Index()
		if replace {
			e.el.RemoveChild(last)
			e.el.InsertChildAt(idx, child.el)
		} else {
			e.el.InsertChildAt(idx+1, child.el)
		}
		return
	}

	pos := -1
	for i, tag := range ordering {
		if tag == child.Tag() {
			pos = i
			break
		}
	}
	if pos < 0 {
		e.Append(child)
		return
	}

	// Tags that may precede the new child.
	pres := make(map[string]bool, pos)
	for _, tag := range ordering[:pos] {
		pres[tag] = true
	}
	for _, c := range children {
		if !pres[c.Tag] {
			e.el.InsertChildAt(c.Index(), child.el)
			return
		}
	}
	e.Append(child)
}

// Equal reports structural equality: same tag, same text for leaves, and
// an order-insensitive match of children. This mirrors the schema's notion
// of equivalence rather than byte equality.
func (e *Element) Equal(other *Element) bool {
	if other == nil {
		return false
	}
	return elementsEqual(e.el, other.el)
}

func elementsEqual(a, b *etree.Element) bool {
	ac, bc := a.ChildElements(), b.ChildElements()
	if len(ac) != len(bc) {
		return false
	}
	if len(ac) == 0 {
		return a.Tag == b.Tag && a.Text() == b.Text()
	}
	remaining := make([]*etree.Element, len(bc))
	copy(remaining, bc)
	for _, child := range ac {
		found := -1
		for i, cand := range remaining {
			if elementsEqual(child, cand) {
				found = i
				break
			}
		}
		if found < 0 {
			return false
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
	}
	return true
}

// Copy returns a deep copy of this element.
func (e *Element) Copy() *Element {
	return wrap(e.el.Copy())
}

// XMLString serializes the element subtree.
func (e *Element) XMLString() (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(e.el.Copy())
	return doc.WriteToString()
}

// ToXML serializes the element subtree to bytes.
func (e *Element) ToXML() ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(e.el.Copy())
	return doc.WriteToBytes()
}
