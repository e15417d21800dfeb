package responseformat

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgPack is sent when the client asks for format=msgpack
const ContentTypeMsgPack = "application/x-msgpack"

// Formatter writes responses as JSON by default, or MessagePack when the
// request carries format=msgpack.
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WantsMsgPack reports whether the request asked for MessagePack
func WantsMsgPack(r *http.Request) bool {
	return r.URL.Query().Get("format") == "msgpack"
}

// WriteResponse writes data with the given status in the requested format
func (f *Formatter) WriteResponse(w http.ResponseWriter, r *http.Request, data any, statusCode int) error {
	if WantsMsgPack(r) {
		w.Header().Set("Content-Type", ContentTypeMsgPack)
		w.WriteHeader(statusCode)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		return enc.Encode(data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}
