package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entryXML = `<entry xmlns="` + AtomNS + `">` +
	`<id>0A68CFAB-F62B-46D4-A6A0-F484A5A35F07</id>` +
	`<title>LogicalPartition</title>` +
	`<published>2015-01-01T00:00:00Z</published>` +
	`<link rel="self" href="https://hmc:12443/rest/api/uom/LogicalPartition/0A68CFAB-F62B-46D4-A6A0-F484A5A35F07"/>` +
	`<link rel="management" href="https://hmc:12443/rest/api/uom/ManagedSystem/1"/>` +
	`<category term="LogicalPartition"/>` +
	`<etag:etag xmlns:etag="` + UomNS + `">1385360538926</etag:etag>` +
	`<content type="application/vnd.ibm.powervm.uom+xml; type=LogicalPartition">` +
	`<LogicalPartition xmlns="` + UomNS + `" schemaVersion="V1_0">` +
	`<PartitionName>lpar1</PartitionName>` +
	`<PartitionState>running</PartitionState>` +
	`</LogicalPartition>` +
	`</content>` +
	`</entry>`

func TestParseEntry(t *testing.T) {
	doc, err := Parse([]byte(entryXML))
	require.NoError(t, err)
	require.NotNil(t, doc.Entry)
	assert.Nil(t, doc.Feed)

	entry := doc.Entry
	assert.Equal(t, "0A68CFAB-F62B-46D4-A6A0-F484A5A35F07", entry.UUID())
	assert.Equal(t, "1385360538926", entry.ETag)
	assert.Equal(t, "LogicalPartition", entry.Properties["title"])
	assert.Equal(t, "LogicalPartition", entry.Properties["category"])
	assert.Contains(t, entry.SelfLink(), "/rest/api/uom/LogicalPartition/")
	assert.Len(t, entry.Links["MANAGEMENT"], 1)

	require.NotNil(t, entry.Element)
	assert.Equal(t, "LogicalPartition", entry.Element.Tag())
	assert.Equal(t, "lpar1", entry.Element.FindText("PartitionName", ""))
}

func TestParseFeed(t *testing.T) {
	feedXML := `<feed xmlns="` + AtomNS + `">` +
		`<id>feed-id</id>` +
		`<title>LogicalPartition</title>` +
		`<link rel="SELF" href="https://hmc:12443/rest/api/uom/LogicalPartition"/>` +
		entryXML +
		entryXML +
		`</feed>`

	doc, err := Parse([]byte(feedXML))
	require.NoError(t, err)
	require.NotNil(t, doc.Feed)

	feed := doc.Feed
	assert.Equal(t, "feed-id", feed.Properties["id"])
	assert.Len(t, feed.Entries, 2)
	for _, entry := range feed.Entries {
		assert.NotEmpty(t, entry.ETag)
		assert.NotNil(t, entry.Element)
	}

	found := feed.FindEntries("PartitionName", "lpar1")
	assert.Len(t, found, 2)
	assert.Empty(t, feed.FindEntries("PartitionName", "nope"))
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("this is not xml"))
	assert.ErrorIs(t, err, ErrMalformedDocument)

	_, err = Parse([]byte(`<NotAtom/>`))
	assert.ErrorIs(t, err, ErrMalformedDocument)

	_, err = ParseElement([]byte(""))
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestXAGQueryValue(t *testing.T) {
	assert.Equal(t, "None", XAG(nil).QueryValue())
	assert.Equal(t, "All", XAG{XAGAll}.QueryValue())
	assert.Equal(t, "Advanced,ViosStorage", XAG{"ViosStorage", "Advanced", "ViosStorage"}.QueryValue())
	assert.True(t, XAG{}.Omit())
	assert.False(t, XAG(nil).Omit())
	assert.False(t, XAG{"Advanced"}.Omit())
}
