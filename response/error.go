// response/error.go
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html"
)

// APIError is an HTTP-level failure returned by a transport: the server answered with a
// status outside 2xx.
type APIError struct {
	StatusCode  int      `json:"status_code"`
	Method      string   `json:"method"`
	URL         string   `json:"url"`
	Errors      []Errors `json:"errors,omitempty"`
	Message     string   `json:"message"`
	Details     []string `json:"details,omitempty"`
	RawResponse string   `json:"raw_response"`
	// Data is the decoded JSON body, when the body is JSON.
	Data any `json:"-"`
}

// Errors represents individual error details within an API error response.
type Errors struct {
	Code        string `json:"code,omitempty"`
	Field       string `json:"field,omitempty"`
	Description string `json:"description,omitempty"`
}

// Error returns a string representation of the APIError.
func (e *APIError) Error() string {
	message := e.Message
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("API Error: %s %s: StatusCode=%d, Message=%s", e.Method, e.URL, e.StatusCode, message)
}

// HTTPStatusCode reports the response status.
func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// NewAPIError builds an APIError from a failed response, extracting a message from
// JSON, XML, HTML or plain text bodies.
func NewAPIError(statusCode int, method, url string, header http.Header, body []byte) *APIError {
	apiError := &APIError{
		StatusCode:  statusCode,
		Method:      method,
		URL:         url,
		RawResponse: string(body),
	}

	mimeType, _ := ParseContentTypeHeader(header.Get("Content-Type"))
	switch {
	case len(body) == 0:
	case mimeType == "application/json", mimeType == "application/problem+json":
		parseJSONResponse(body, apiError)
	case mimeType == "application/xml", mimeType == "text/xml":
		parseXMLResponse(body, apiError)
	case mimeType == "text/html":
		parseHTMLResponse(body, apiError)
	default:
		apiError.Message = strings.TrimSpace(string(body))
	}

	if apiError.Message == "" {
		apiError.Message = http.StatusText(statusCode)
	}

	return apiError
}

// jsonErrorBody covers the common shapes: {"message": ...}, {"error": "..."},
// {"error": {"message": ...}} and {"errors": [...]}.
type jsonErrorBody struct {
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Error   json.RawMessage `json:"error"`
	Errors  []Errors        `json:"errors"`
	Details []string        `json:"details"`
}

func parseJSONResponse(bodyBytes []byte, apiError *APIError) {
	var data any
	if err := json.Unmarshal(bodyBytes, &data); err != nil {
		apiError.Message = strings.TrimSpace(string(bodyBytes))
		return
	}
	apiError.Data = data

	var body jsonErrorBody
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return
	}

	apiError.Errors = body.Errors
	apiError.Details = body.Details
	apiError.Message = body.Message

	if apiError.Message == "" && len(body.Error) > 0 {
		var text string
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &text) == nil {
			apiError.Message = text
		} else if json.Unmarshal(body.Error, &nested) == nil {
			apiError.Message = nested.Message
		}
	}
	if apiError.Message == "" {
		apiError.Message = body.Detail
	}
	if apiError.Message == "" && len(body.Errors) > 0 {
		apiError.Message = body.Errors[0].Description
	}
}

// parseXMLResponse joins every non-empty text node of the document.
func parseXMLResponse(bodyBytes []byte, apiError *APIError) {
	doc, err := xmlquery.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		return
	}

	var messages []string
	var traverse func(*xmlquery.Node)
	traverse = func(n *xmlquery.Node) {
		if n.Type == xmlquery.TextNode && strings.TrimSpace(n.Data) != "" {
			messages = append(messages, strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	apiError.Message = strings.Join(messages, "; ")
}

// parseHTMLResponse concatenates the text of every <p> element, with links inlined as [Link: href].
// Pages without paragraphs fall back to the <title>.
func parseHTMLResponse(bodyBytes []byte, apiError *APIError) {
	doc, err := html.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		return
	}

	var messages []string
	var title string

	var collect func(n *html.Node, b *strings.Builder)
	collect = func(n *html.Node, b *strings.Builder) {
		switch {
		case n.Type == html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text + " ")
			}
		case n.Type == html.ElementNode && n.Data == "a":
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					b.WriteString("[Link: " + attr.Val + "] ")
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c, b)
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p":
				var b strings.Builder
				collect(n, &b)
				if content := strings.TrimSpace(b.String()); content != "" {
					messages = append(messages, content)
				}
				return
			case "title":
				var b strings.Builder
				collect(n, &b)
				title = strings.TrimSpace(b.String())
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(messages) > 0 {
		apiError.Message = strings.Join(messages, "; ")
	} else {
		apiError.Message = title
	}
}
