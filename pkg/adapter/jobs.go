package adapter

import (
	"context"
	"net/http"

	"github.com/vmforge/pvmclient/pkg/entity"
)

// Job element names in the web service schema.
const (
	jobRequestTag = "JobRequest"
	jobsRootType  = "jobs"
)

// Job status values reported in a job entry.
const (
	JobStatusNotStarted    = "NOT_STARTED"
	JobStatusRunning       = "RUNNING"
	JobStatusCompleted     = "COMPLETED_OK"
	JobStatusFailed        = "COMPLETED_WITH_ERROR"
	JobStatusPartialFailed = "COMPLETED_WITH_WARNINGS"
)

// CreateJob submits an asynchronous job against a resource:
// PUT {root}/{id}/do/{op}, where op is taken from the JobRequest's
// RequestedOperation. rootID may be empty for console-level jobs.
func (a *Adapter) CreateJob(ctx context.Context, job *entity.Element, rootType, rootID string) (*entity.Entry, error) {
	if job.Tag() != jobRequestTag {
		return nil, ErrValidation.Msg("job payload must be a JobRequest")
	}
	op := job.FindText("RequestedOperation/OperationName", "")
	if op == "" {
		return nil, ErrValidation.Msg("JobRequest carries no RequestedOperation/OperationName")
	}

	id := Ident{
		RootType:   rootType,
		RootID:     rootID,
		SuffixType: SuffixDo,
		SuffixParm: op,
	}
	path, err := id.path()
	if err != nil {
		return nil, err
	}
	body, err := job.ToXML()
	if err != nil {
		return nil, ErrAdapter.MsgErr("unable to serialize job request", err)
	}

	headers := http.Header{}
	headers.Set("Accept", AtomMediaType)
	headers.Set("Content-Type", ContentType(ServiceWeb, jobRequestTag))

	resp, err := a.invoke(ctx, &Request{
		Method:  http.MethodPut,
		Path:    path,
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

// ReadJob fetches the current state of a submitted job.
func (a *Adapter) ReadJob(ctx context.Context, jobID string) (*entity.Entry, error) {
	return a.read(ctx, Ident{RootType: jobsRootType, RootID: jobID, XAG: entity.XAG{}}, "")
}

// JobStatus extracts the Status field from a job entry, or "".
func JobStatus(entry *entity.Entry) string {
	return entry.Element.FindText("Status", "")
}
