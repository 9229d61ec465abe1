package middleware

import (
	"bytes"
	"mime"
	"net/http"
	"regexp"
	"strconv"
)

// CallbackParam is the query parameter naming the JSONP callback.
const CallbackParam = "_callback"

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][0-9A-Za-z_$]*(\.[A-Za-z_$][0-9A-Za-z_$]*)*$`)

// JSONP wraps JSON responses to GET requests carrying a _callback parameter
// as callback(<json>); served as application/javascript. Other responses are
// passed through unchanged.
func JSONP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !r.URL.Query().Has(CallbackParam) {
			next.ServeHTTP(w, r)
			return
		}

		callback := r.URL.Query().Get(CallbackParam)
		if !callbackPattern.MatchString(callback) {
			writeError(w, http.StatusBadRequest, errorBody{
				Error:   "invalid callback " + strconv.Quote(callback),
				Message: "The JSONP callback is not a valid identifier",
				Action:  "Use letters, digits, underscores and dots only",
				Code:    "QRY004",
			})
			return
		}

		buf := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(buf, r)

		for k, v := range buf.header {
			w.Header()[k] = v
		}

		mediaType, _, _ := mime.ParseMediaType(buf.header.Get("Content-Type"))
		if mediaType != "application/json" {
			w.WriteHeader(buf.status)
			_, _ = w.Write(buf.body.Bytes())
			return
		}

		body := bytes.TrimRight(buf.body.Bytes(), "\n")
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Del("Content-Length")
		w.WriteHeader(buf.status)
		_, _ = w.Write([]byte(callback + "("))
		_, _ = w.Write(body)
		_, _ = w.Write([]byte(");"))
	})
}

// bufferedWriter collects a response so it can be rewritten.
type bufferedWriter struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}
