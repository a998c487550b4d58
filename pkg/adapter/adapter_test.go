package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmforge/pvmclient/pkg/entity"
	"github.com/vmforge/pvmclient/pkg/session"
	"github.com/vmforge/pvmclient/pkg/transport"
)

const lparUUID = "0A68CFAB-F62B-46D4-A6A0-F484A5A35F07"

func lparEntryXML(selfHref string) string {
	return `<entry xmlns="` + entity.AtomNS + `">` +
		`<id>` + lparUUID + `</id>` +
		`<title>LogicalPartition</title>` +
		`<link rel="self" href="` + selfHref + `"/>` +
		`<category term="LogicalPartition"/>` +
		`<etag:etag xmlns:etag="` + entity.UomNS + `">100</etag:etag>` +
		`<content type="application/vnd.ibm.powervm.uom+xml; type=LogicalPartition">` +
		`<LogicalPartition xmlns="` + entity.UomNS + `" schemaVersion="V1_0">` +
		`<PartitionName>lpar1</PartitionName>` +
		`</LogicalPartition>` +
		`</content>` +
		`</entry>`
}

const errorBodyXML = `<HttpErrorResponse xmlns="` + entity.WebNS + `">` +
	`<HTTPStatus>400</HTTPStatus>` +
	`<ReasonCode>PVME01050100</ReasonCode>` +
	`<Message>The partition name is not valid.</Message>` +
	`</HttpErrorResponse>`

// testAdapter stands up a fake endpoint whose logon always succeeds and
// whose API requests go to handler.
func testAdapter(t *testing.T, handler http.HandlerFunc, opts ...Option) *Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == session.LogonPath {
			fmt.Fprintf(w, `<LogonResponse xmlns="%s" schemaVersion="V1_0"><X-API-Session>tok</X-API-Session></LogonResponse>`, entity.WebNS)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	sess, err := session.New(session.Config{
		Host:         u.Hostname(),
		Port:         port,
		Protocol:     "http",
		Username:     "hscroot",
		Password:     "pw",
		Timeout:      5 * time.Second,
		AuditMemento: "tests",
	})
	require.NoError(t, err)
	return New(sess, opts...)
}

func TestRead(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/api/uom/LogicalPartition/"+lparUUID, r.URL.Path)
		assert.Equal(t, "None", r.URL.Query().Get("group"))
		assert.Contains(t, r.Header.Get("Accept"), "application/atom+xml")
		assert.Empty(t, r.Header.Get("If-None-Match"))
		io.WriteString(w, lparEntryXML("https://hmc:12443/rest/api/uom/LogicalPartition/"+lparUUID))
	})

	entry, err := a.Read(context.Background(), Ident{RootType: "LogicalPartition", RootID: lparUUID})
	require.NoError(t, err)
	assert.Equal(t, lparUUID, entry.UUID())
	assert.Equal(t, "100", entry.ETag)
	assert.Equal(t, "lpar1", entry.Element.FindText("PartitionName", ""))
}

func TestReadRequiresIdentifier(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := a.Read(context.Background(), Ident{RootType: "LogicalPartition"})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestReadNotFound(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := a.Read(context.Background(), Ident{RootType: "LogicalPartition", RootID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadIfNoneMatch(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	})
	_, err := a.ReadIfNoneMatch(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, "100")
	assert.ErrorIs(t, err, ErrNotModified)
}

func TestReadAll(t *testing.T) {
	feed := `<feed xmlns="` + entity.AtomNS + `">` +
		`<id>feed-id</id>` +
		lparEntryXML("https://hmc:12443/rest/api/uom/LogicalPartition/"+lparUUID) +
		`</feed>`
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/uom/LogicalPartition", r.URL.Path)
		io.WriteString(w, feed)
	})

	got, err := a.ReadAll(context.Background(), Ident{RootType: "LogicalPartition"})
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, lparUUID, got.Entries[0].UUID())
}

func TestReadAllEmpty(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	got, err := a.ReadAll(context.Background(), Ident{RootType: "LogicalPartition"})
	require.NoError(t, err)
	assert.Empty(t, got.Entries)
}

func TestCreate(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/api/uom/LogicalPartition", r.URL.Path)
		assert.Equal(t, "application/vnd.ibm.powervm.uom+xml; type=LogicalPartition",
			r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<PartitionName>newlpar</PartitionName>")
		io.WriteString(w, lparEntryXML("https://hmc:12443/rest/api/uom/LogicalPartition/"+lparUUID))
	})

	elem := entity.NewElement("LogicalPartition",
		entity.SchemaVersion(entity.DefaultSchemaVersion),
		entity.Children(entity.NewElement("PartitionName", entity.Namespace(""), entity.Text("newlpar"))))
	entry, err := a.Create(context.Background(), Ident{RootType: "LogicalPartition"}, elem)
	require.NoError(t, err)
	assert.Equal(t, lparUUID, entry.UUID())
}

func TestUpdateRequiresETag(t *testing.T) {
	var requests int32
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	})
	elem := entity.NewElement("LogicalPartition")
	_, err := a.Update(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, elem, "")
	assert.ErrorIs(t, err, ErrPreconditionRequired)
	assert.Zero(t, atomic.LoadInt32(&requests))
}

func TestUpdateConflict(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "100", r.Header.Get("If-Match"))
		w.Header().Set("Etag", "200")
		w.WriteHeader(http.StatusPreconditionFailed)
	})
	elem := entity.NewElement("LogicalPartition")
	_, err := a.Update(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, elem, "100")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "200", ConflictETag(err))
}

func TestUpdateConflictWithServerMessage(t *testing.T) {
	conflictBody := `<HttpErrorResponse xmlns="` + entity.WebNS + `">` +
		`<Message>The resource was modified by another request.</Message>` +
		`</HttpErrorResponse>`
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Etag", "201")
		w.WriteHeader(http.StatusPreconditionFailed)
		io.WriteString(w, conflictBody)
	})
	elem := entity.NewElement("LogicalPartition")
	_, err := a.Update(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, elem, "100")
	assert.ErrorIs(t, err, ErrConflict)
	// The ETag carrier must stay reachable under the message wrapper.
	assert.Equal(t, "201", ConflictETag(err))
	assert.Contains(t, err.Error(), "modified by another request")
}

func TestDeleteConflict409(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Etag", "300")
		w.WriteHeader(http.StatusConflict)
	})
	err := a.Delete(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, "100")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "300", ConflictETag(err))
}

func TestUpdateValidationError(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, errorBodyXML)
	})
	elem := entity.NewElement("LogicalPartition")
	_, err := a.Update(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, elem, "100")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "The partition name is not valid.")
}

func TestDelete(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "100", r.Header.Get("If-Match"))
		w.WriteHeader(http.StatusNoContent)
	})
	err := a.Delete(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, "100")
	assert.NoError(t, err)

	err = a.Delete(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, "")
	assert.ErrorIs(t, err, ErrPreconditionRequired)
}

func TestServerError(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := a.Read(context.Background(), Ident{RootType: "LogicalPartition", RootID: "x"})
	assert.ErrorIs(t, err, ErrServer)
}

func TestMalformedResponse(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not xml at all <<<")
	})
	_, err := a.Read(context.Background(), Ident{RootType: "LogicalPartition", RootID: "x"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestReadQuick(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/uom/LogicalPartition/"+lparUUID+"/quick/PartitionName", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Empty(t, r.URL.Query().Get("group"))
		io.WriteString(w, `"lpar1"`)
	})
	got, err := a.ReadQuick(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, "PartitionName")
	require.NoError(t, err)
	assert.Equal(t, "lpar1", got.String())
}

func TestReadQuickAll(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/uom/LogicalPartition/"+lparUUID+"/quick", r.URL.Path)
		io.WriteString(w, `{"PartitionName":"lpar1","PartitionState":"running"}`)
	})
	got, err := a.ReadQuick(context.Background(),
		Ident{RootType: "LogicalPartition", RootID: lparUUID}, "")
	require.NoError(t, err)
	assert.Equal(t, "running", got.Get("PartitionState").String())
}

func TestXAGRoundTrip(t *testing.T) {
	var updateQuery url.Values
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "ViosStorage", r.URL.Query().Get("group"))
			// Self link without the group query; the adapter must carry it.
			io.WriteString(w, lparEntryXML("https://hmc:12443/rest/api/uom/VirtualIOServer/"+lparUUID))
		case http.MethodPost:
			updateQuery = r.URL.Query()
			io.WriteString(w, lparEntryXML("https://hmc:12443/rest/api/uom/VirtualIOServer/"+lparUUID))
		}
	})

	entry, err := a.Read(context.Background(),
		Ident{RootType: "VirtualIOServer", RootID: lparUUID, XAG: entity.XAG{"ViosStorage"}})
	require.NoError(t, err)
	assert.Contains(t, entry.SelfLink(), "group=ViosStorage")

	_, err = a.UpdateEntry(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, "ViosStorage", updateQuery.Get("group"))
}

func TestUpdateEntryRequiresETag(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := a.UpdateEntry(context.Background(), &entity.Entry{
		Links:   map[string][]string{"SELF": {"https://hmc/rest/api/uom/X/1"}},
		Element: entity.NewElement("X"),
	})
	assert.ErrorIs(t, err, ErrPreconditionRequired)
}

func TestReadByHref(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/uom/LogicalPartition/"+lparUUID, r.URL.Path)
		assert.Equal(t, "Advanced", r.URL.Query().Get("group"))
		io.WriteString(w, lparEntryXML("https://hmc:12443/rest/api/uom/LogicalPartition/"+lparUUID))
	})

	// The href names a host the client cannot reach; only path and query
	// survive.
	doc, err := a.ReadByHref(context.Background(),
		"https://unreachable:12443/rest/api/uom/LogicalPartition/"+lparUUID+"?group=Advanced")
	require.NoError(t, err)
	require.NotNil(t, doc.Entry)
	assert.Equal(t, lparUUID, doc.Entry.UUID())

	_, err = a.ReadByHref(context.Background(), "https://x/elsewhere/thing")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestCreateJob(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/api/uom/LogicalPartition/"+lparUUID+"/do/PowerOff", r.URL.Path)
		assert.Equal(t, "application/vnd.ibm.powervm.web+xml; type=JobRequest",
			r.Header.Get("Content-Type"))
		io.WriteString(w, jobEntryXML("RUNNING"))
	})

	job := entity.NewElement("JobRequest",
		entity.Namespace(entity.WebNS),
		entity.Children(
			entity.NewElement("RequestedOperation", entity.Namespace(""),
				entity.Children(
					entity.NewElement("OperationName", entity.Namespace(""), entity.Text("PowerOff")),
					entity.NewElement("GroupName", entity.Namespace(""), entity.Text("LogicalPartition")),
				))))
	entry, err := a.CreateJob(context.Background(), job, "LogicalPartition", lparUUID)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", JobStatus(entry))
}

func TestCreateJobValidation(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := a.CreateJob(context.Background(),
		entity.NewElement("NotAJob"), "LogicalPartition", lparUUID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.CreateJob(context.Background(),
		entity.NewElement("JobRequest"), "LogicalPartition", lparUUID)
	assert.ErrorIs(t, err, ErrValidation)
}

func jobEntryXML(status string) string {
	return `<entry xmlns="` + entity.AtomNS + `">` +
		`<id>job-1</id>` +
		`<content type="application/vnd.ibm.powervm.web+xml; type=JobResponse">` +
		`<JobResponse xmlns="` + entity.WebNS + `">` +
		`<JobID>job-1</JobID>` +
		`<Status>` + status + `</Status>` +
		`</JobResponse>` +
		`</content>` +
		`</entry>`
}

func TestReadJob(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/uom/jobs/job-1", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("group"))
		io.WriteString(w, jobEntryXML("COMPLETED_OK"))
	})
	entry, err := a.ReadJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, JobStatus(entry))
}

func TestUploadDownload(t *testing.T) {
	content := []byte("disk image bytes")
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/web/File/contents/file-1", r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, content, body)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			w.Write(content)
		}
	})

	require.NoError(t, a.Upload(context.Background(), "file-1", "", strings.NewReader(string(content))))

	rc, err := a.Download(context.Background(), "file-1", "")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadNotFound(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := a.Download(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHelperOrder(t *testing.T) {
	var order []string
	mark := func(name string) Helper {
		return func(next RequestFunc) RequestFunc {
			return func(ctx context.Context, req *Request) (res *transport.Response, err error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, lparEntryXML("https://hmc:12443/rest/api/uom/LogicalPartition/"+lparUUID))
	}, WithHelpers(mark("outer"), mark("inner")))

	_, err := a.Read(context.Background(), Ident{RootType: "LogicalPartition", RootID: lparUUID})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)

	// Per-call override replaces the chain.
	order = nil
	_, err = a.WithHelpers().Read(context.Background(), Ident{RootType: "LogicalPartition", RootID: lparUUID})
	require.NoError(t, err)
	assert.Empty(t, order)
}
