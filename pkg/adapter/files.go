package adapter

import (
	"context"
	"io"
	"net/http"

	"github.com/vmforge/pvmclient/pkg/transport"
)

// FileContentsPath is where file payloads live; metadata lives under the
// File root type.
const FileContentsPath = "/rest/api/web/File/contents/"

// DefaultFileMediaType is used when a caller does not name one.
const DefaultFileMediaType = "application/octet-stream"

// Upload streams r as the contents of a previously created File resource.
// The body is not buffered, so the helper chain does not apply.
func (a *Adapter) Upload(ctx context.Context, fileID, mediaType string, r io.Reader) error {
	if fileID == "" {
		return ErrInvalidPath.Msg("upload requires a file identifier")
	}
	if mediaType == "" {
		mediaType = DefaultFileMediaType
	}

	headers := http.Header{}
	headers.Set("Accept", ContentType(ServiceWeb, "File"))
	headers.Set("Content-Type", mediaType)

	resp, err := a.sess.StreamRequest(ctx, &transport.Request{
		Method:  http.MethodPut,
		Path:    FileContentsPath + fileID,
		Headers: headers,
		Body:    r,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	return streamError(resp)
}

// Download streams the contents of a File resource. The caller must close
// the returned reader.
func (a *Adapter) Download(ctx context.Context, fileID, mediaType string) (io.ReadCloser, error) {
	if fileID == "" {
		return nil, ErrInvalidPath.Msg("download requires a file identifier")
	}
	if mediaType == "" {
		mediaType = DefaultFileMediaType
	}

	headers := http.Header{}
	headers.Set("Accept", mediaType)

	resp, err := a.sess.StreamRequest(ctx, &transport.Request{
		Method:  http.MethodGet,
		Path:    FileContentsPath + fileID,
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status >= 200 && resp.Status < 300 {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	return nil, streamError(resp)
}

// streamError drains a failed stream response and maps it through the
// taxonomy. Error bodies are small; buffering them here is safe.
func streamError(resp *transport.StreamResponse) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return checkResponse(&transport.Response{
		Status:  resp.Status,
		Reason:  resp.Reason,
		Headers: resp.Headers,
		Body:    body,
	})
}
