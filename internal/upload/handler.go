package upload

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/radif/uploads/internal/response"
)

// Handler holds the HTTP handler for the upload endpoint.
type Handler struct {
	coord  *Coordinator
	logger *slog.Logger

	// maxBytes caps the request body; zero disables the cap.
	maxBytes int64
	// memoryBytes is how much of a multipart body is held in memory before
	// file parts spill to temp files.
	memoryBytes int64
}

// HandlerOptions bounds request bodies.
type HandlerOptions struct {
	MaxUploadBytes       int64
	MultipartMemoryBytes int64
}

// NewHandler creates a new upload Handler.
func NewHandler(coord *Coordinator, logger *slog.Logger, opts HandlerOptions) *Handler {
	memory := opts.MultipartMemoryBytes
	if memory <= 0 {
		memory = 8 << 20
	}
	return &Handler{coord: coord, logger: logger, maxBytes: opts.MaxUploadBytes, memoryBytes: memory}
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stores the file in object storage, records its metadata and returns a public URL.
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"File to upload"
//	@Param			filetype	formData	string	true	"Caller-defined file type label"
//	@Success		200			{object}	response.Uploaded
//	@Failure		400			{object}	response.ErrorBody
//	@Failure		413			{object}	response.ErrorBody
//	@Failure		500			{object}	response.ErrorBody
//	@Router			/upload [post]
//	@Router			/api/v1/uploads [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		if r.ContentLength > h.maxBytes {
			response.TooLarge(w, "file is too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	if err := r.ParseMultipartForm(h.memoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			response.TooLarge(w, "file is too large")
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	// Spooled parts must not outlive the request.
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := Request{
		FileType: r.PostFormValue("filetype"),
		Size:     -1,
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		req.Body = file
		req.Filename = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
		req.Size = header.Size
	case errors.Is(err, http.ErrMissingFile):
		// Left to Ingest so every validation failure is reported the same way.
	default:
		response.BadRequest(w, "invalid file part")
		return
	}

	res, err := h.coord.Ingest(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Upload(w, res.Record.Locator)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ingestErr *Error
	if !errors.As(err, &ingestErr) {
		h.logger.ErrorContext(r.Context(), "unexpected upload error", "err", err)
		response.InternalError(w)
		return
	}

	switch {
	case errors.Is(err, ErrValidation):
		response.BadRequest(w, ingestErr.Message())
	case errors.Is(err, ErrConsistency):
		w.Header().Set("X-Upload-Outcome", string(StateOrphaned))
		response.Error(w, http.StatusInternalServerError, ingestErr.Message())
	default:
		w.Header().Set("X-Upload-Outcome", string(ingestErr.State))
		response.Error(w, http.StatusInternalServerError, ingestErr.Message())
	}
}
