package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radif/uploads/internal/catalog"
	"github.com/radif/uploads/internal/response"
	"github.com/radif/uploads/internal/storage"
)

type part struct {
	filename    string
	contentType string
	data        []byte
}

// multipartBody builds a form with an optional filetype field and file part.
func multipartBody(t *testing.T, fileType *string, file *part) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileType != nil {
		require.NoError(t, mw.WriteField("filetype", *fileType))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+file.filename+`"`)
		h.Set("Content-Type", file.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func strPtr(s string) *string { return &s }

func doUpload(t *testing.T, h *Handler, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func newTestHandler(f *fixture, opts HandlerOptions) *Handler {
	return NewHandler(f.coord, quietLogger(), opts)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body response.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestUploadHandlerSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := newTestHandler(f, HandlerOptions{})
	data := []byte("%PDF-1.4...")
	body, ct := multipartBody(t, strPtr("doc"), &part{filename: "report.pdf", contentType: "application/pdf", data: data})

	rec := doUpload(t, h, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got response.Uploaded
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, "File uploaded successfully.", got.Message)
	require.True(t, strings.HasPrefix(got.URL, testPublicBase+"/"), "unexpected url %q", got.URL)
	require.True(t, strings.HasSuffix(got.URL, "_report.pdf"), "unexpected url %q", got.URL)

	key := strings.TrimPrefix(got.URL, testPublicBase+"/")
	require.Equal(t, data, readObject(t, f.store, key))
	ct2, _ := f.store.ContentType(key)
	require.Equal(t, "application/pdf", ct2)

	stored, err := f.catalog.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, "doc", stored.FileType)
	require.Equal(t, "report.pdf", stored.OriginalName)
	require.Equal(t, got.URL, stored.Locator)
}

func TestUploadHandlerValidation(t *testing.T) {
	t.Parallel()

	file := &part{filename: "a.txt", contentType: "text/plain", data: []byte("hello")}
	tests := []struct {
		name     string
		fileType *string
		file     *part
		want     string
	}{
		{name: "missing filetype", file: file, want: "filetype is required"},
		{name: "empty filetype", fileType: strPtr(""), file: file, want: "filetype is required"},
		{name: "missing file", fileType: strPtr("doc"), want: "file is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			h := newTestHandler(f, HandlerOptions{})
			body, ct := multipartBody(t, tc.fileType, tc.file)

			rec := doUpload(t, h, body, ct)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tc.want, decodeError(t, rec))
			require.Zero(t, f.store.Uploads(), "object store must not be called")
			require.Zero(t, f.catalog.Inserts(), "catalog must not be called")
		})
	}
}

func TestUploadHandlerIgnoresQueryFileType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := newTestHandler(f, HandlerOptions{})
	body, ct := multipartBody(t, nil, &part{filename: "a.txt", contentType: "text/plain", data: []byte("x")})

	req := httptest.NewRequest(http.MethodPost, "/upload?filetype=doc", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, f.store.Uploads())
}

func TestUploadHandlerNotMultipart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := newTestHandler(f, HandlerOptions{})

	rec := doUpload(t, h, strings.NewReader(`{"filetype":"doc"}`), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid multipart form", decodeError(t, rec))
	require.Zero(t, f.store.Uploads())
}

func TestUploadHandlerTooLarge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := newTestHandler(f, HandlerOptions{MaxUploadBytes: 1 << 10})
	body, ct := multipartBody(t, strPtr("doc"), &part{
		filename:    "big.bin",
		contentType: "application/octet-stream",
		data:        bytes.Repeat([]byte{0xAB}, 4<<10),
	})

	rec := doUpload(t, h, body, ct)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "file is too large", decodeError(t, rec))
	require.Zero(t, f.store.Uploads())
	require.Zero(t, f.catalog.Inserts())
}

func TestUploadHandlerStorageFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.FailUploads(errors.New("bucket unavailable"))
	h := newTestHandler(f, HandlerOptions{})
	body, ct := multipartBody(t, strPtr("doc"), &part{filename: "a.txt", contentType: "text/plain", data: []byte("x")})

	rec := doUpload(t, h, body, ct)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, string(StateStoreFailed), rec.Header().Get("X-Upload-Outcome"))
	require.Equal(t, msgStorageFailed, decodeError(t, rec))
	require.Zero(t, f.catalog.Inserts())
}

func TestUploadHandlerOrphan(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.catalog.FailInserts(errors.New("catalog unreachable"))
	h := newTestHandler(f, HandlerOptions{})
	body, ct := multipartBody(t, strPtr("doc"), &part{filename: "a.txt", contentType: "text/plain", data: []byte("x")})

	rec := doUpload(t, h, body, ct)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, string(StateOrphaned), rec.Header().Get("X-Upload-Outcome"))

	msg := decodeError(t, rec)
	require.Equal(t, msgOrphaned, msg)
	require.NotEqual(t, msgStorageFailed, msg)
	require.Equal(t, 1, f.store.Len(), "object is kept for reconciliation")
}

func TestUploadHandlerLocalRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := httptest.NewServer(http.FileServer(http.Dir(dir)))
	t.Cleanup(files.Close)

	store, err := storage.NewLocalStorage(dir, files.URL)
	require.NoError(t, err)
	cat := catalog.NewMemory()
	h := NewHandler(NewCoordinator(store, cat, WithLogger(quietLogger())), quietLogger(), HandlerOptions{})

	data := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	body, ct := multipartBody(t, strPtr("archive"), &part{filename: "data set.bin", contentType: "application/octet-stream", data: data})

	rec := doUpload(t, h, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got response.Uploaded
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))

	resp, err := http.Get(got.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fetched, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, data, fetched, "locator should return the uploaded bytes")
	require.Equal(t, 1, cat.Len())
}
