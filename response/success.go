// response/success.go
package response

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Response is the raw result of a successful request. Interpreting an error-shaped
// payload inside a 2xx body is left to the caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Method     string
	URL        string
}

// ErrNoContent is returned by Decode when the body is empty.
var ErrNoContent = errors.New("response has no content")

// contentHandler defines the signature for unmarshaling content from an io.Reader.
type contentHandler func(io.Reader, any) error

// responseUnmarshallers maps MIME types to the corresponding contentHandler functions.
var responseUnmarshallers = map[string]contentHandler{
	"application/json":         handlerUnmarshalJSON,
	"application/problem+json": handlerUnmarshalJSON,
	"application/xml":          handlerUnmarshalXML,
	"text/xml":                 handlerUnmarshalXML,
}

// Decode unmarshals the body into out based on the Content-Type header.
// Binary payloads are copied into a *[]byte or streamed to an io.Writer.
// A body without a Content-Type is assumed to be JSON.
func (r *Response) Decode(out any) error {
	if len(r.Body) == 0 {
		return ErrNoContent
	}

	contentType := r.Header.Get("Content-Type")
	contentDisposition := r.Header.Get("Content-Disposition")
	mimeType, _ := ParseContentTypeHeader(contentType)

	if mimeType == "" {
		mimeType = "application/json"
	}

	if handler, ok := responseUnmarshallers[mimeType]; ok {
		return handler(bytes.NewReader(r.Body), out)
	}

	if isBinaryData(mimeType, contentDisposition) {
		return handleBinaryData(bytes.NewReader(r.Body), out)
	}

	return fmt.Errorf("unexpected MIME type: %s", contentType)
}

// Filename returns the filename parameter of the Content-Disposition header, if any.
func (r *Response) Filename() string {
	_, params := ParseContentTypeHeader(r.Header.Get("Content-Disposition"))
	return params["filename"]
}

func handlerUnmarshalJSON(reader io.Reader, out any) error {
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return fmt.Errorf("JSON unmarshal error: %w", err)
	}
	return nil
}

func handlerUnmarshalXML(reader io.Reader, out any) error {
	if err := xml.NewDecoder(reader).Decode(out); err != nil {
		return fmt.Errorf("XML unmarshal error: %w", err)
	}
	return nil
}

// isBinaryData checks if the MIME type or Content-Disposition indicates binary data.
func isBinaryData(mimeType, contentDisposition string) bool {
	return mimeType == "application/octet-stream" || strings.HasPrefix(contentDisposition, "attachment")
}

// handleBinaryData reads binary data from an io.Reader and stores it in *[]byte or streams it to an io.Writer.
func handleBinaryData(reader io.Reader, out any) error {
	switch out := out.(type) {
	case *[]byte:
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("failed to read binary data: %w", err)
		}
		*out = data
	case io.Writer:
		if _, err := io.Copy(out, reader); err != nil {
			return fmt.Errorf("failed to stream binary data to io.Writer: %w", err)
		}
	default:
		return errors.New("output parameter is not suitable for binary data (*[]byte or io.Writer)")
	}
	return nil
}
