package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/protobuf/proto"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads.  Reasons are free text, so this is far above a typical decision.
const maxRequestBody = 64 << 10

var (
	errBadProto     = errors.New("invalid protobuf body")
	errBodyTooLarge = errors.New("request body too large")
)

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload.
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "application/x-protobuf" ||
		ct == "application/protobuf"
}

// readBody reads the whole request body, failing with errBodyTooLarge
// instead of truncating once maxRequestBody is exceeded.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		return nil, bodyError(err)
	}
	return body, nil
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, mbe.Limit)
	}
	return err
}

// readProto reads the request body and unmarshals it into msg.
func readProto(w http.ResponseWriter, r *http.Request, msg proto.Message) error {
	body, err := readBody(w, r)
	if errors.Is(err, errBodyTooLarge) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errBadProto, err)
	}
	if err := proto.Unmarshal(body, msg); err != nil {
		return fmt.Errorf("%w: %v", errBadProto, err)
	}
	return nil
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		// Fall back to a plain-text error if marshalling fails.
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
