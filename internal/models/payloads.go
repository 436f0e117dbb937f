package models

// These structs define the JSON payloads exchanged with the HTTP API and the
// storage-triggered intake function.

// UploadResponse is returned by POST /inputDocuments.
type UploadResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename"`
	Status     Status `json:"status"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GCSEvent is the payload of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
