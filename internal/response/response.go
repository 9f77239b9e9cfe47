// Package response provides shared JSON response helpers for HTTP handlers.
package response

import (
	"encoding/json"
	"net/http"
)

// UploadSuccessMessage is returned with every successful upload.
const UploadSuccessMessage = "File uploaded successfully."

// Uploaded is the body of a successful upload response.
type Uploaded struct {
	URL     string `json:"url" example:"https://storage.googleapis.com/uploads/0b7c..._report.pdf"`
	Message string `json:"message" example:"File uploaded successfully."`
}

// ErrorBody is the body of every error response.
type ErrorBody struct {
	Error string `json:"error" example:"filetype is required"`
}

// JSON writes a JSON-encoded payload with the given HTTP status code.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes a 200 response with data.
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Upload writes the 200 response for a stored upload.
func Upload(w http.ResponseWriter, url string) {
	OK(w, Uploaded{URL: url, Message: UploadSuccessMessage})
}

// Error writes an error response with the given status and message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// TooLarge writes a 413 response.
func TooLarge(w http.ResponseWriter, message string) {
	Error(w, http.StatusRequestEntityTooLarge, message)
}

// InternalError writes a 500 response with a generic message.
func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "internal server error")
}
