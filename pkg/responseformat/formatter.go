// Package responseformat writes REST responses as JSON or MessagePack.
package responseformat

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Format names
const (
	FormatJSON    = "json"
	FormatMsgPack = "msgpack"
)

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct {
	enableCORS bool
}

// NewFormatter creates a new response formatter. With enableCORS every
// response allows any origin.
func NewFormatter(enableCORS bool) *Formatter {
	return &Formatter{enableCORS: enableCORS}
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Format returns the format a request asked for: msgpack when
// format=msgpack is given, json otherwise
func Format(req *http.Request) string {
	if req.URL.Query().Get("format") == FormatMsgPack {
		return FormatMsgPack
	}
	return FormatJSON
}

// WriteResponse writes data with the given status in the format the request
// asked for
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	f.cors(w)
	if Format(req) == FormatMsgPack {
		return f.writeMsgPack(w, status, data)
	}
	return f.writeJSON(w, status, data)
}

// WriteError writes err as an ErrorResponse
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, err error) error {
	return f.WriteResponse(w, req, status, ErrorResponse{Error: err.Error()})
}

// WriteText writes a plain text body. A non-empty filename marks it as a
// download.
func (f *Formatter) WriteText(w http.ResponseWriter, contentType, filename, body string) error {
	f.cors(w)
	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte(body))
	return err
}

func (f *Formatter) cors(w http.ResponseWriter) {
	if f.enableCORS {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
}

func (f *Formatter) writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/x-msgpack")
	w.WriteHeader(status)
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}
