package compress

import (
	"compress/gzip"
	"net/http"
	"strings"
	"sync"
)

// RequestUngzipper transparently decodes gzip-encoded request bodies.
type RequestUngzipper struct {
	readers sync.Pool
}

func (u *RequestUngzipper) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		if !strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		var err error
		reader, ok := u.readers.Get().(*gzip.Reader)
		if ok {
			err = reader.Reset(r.Body)
		} else {
			reader, err = gzip.NewReader(r.Body)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() {
			reader.Close()
			u.readers.Put(reader)
		}()

		r.Body = reader
		r.Header.Del("Content-Encoding")
		r.ContentLength = -1
		next.ServeHTTP(w, r)
	})
}
