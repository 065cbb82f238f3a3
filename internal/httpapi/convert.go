package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aidecisionlog/server/internal/decisionlog/record"
	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

// Protobuf bodies are google.protobuf.Struct messages carrying the same
// fields as the JSON form, so both go through record.Decode.

func readProtoInput(w http.ResponseWriter, r *http.Request) (record.Input, error) {
	var st structpb.Struct
	if err := readProto(w, r, &st); err != nil {
		return record.Input{}, err
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return record.Input{}, fmt.Errorf("%w: %v", errBadProto, err)
	}
	return record.Decode(raw)
}

func logResponseToProto(resp types.LogResponse) (*structpb.Struct, error) {
	return toStruct(resp)
}

func errorResponseToProto(code, msg string) (*structpb.Struct, error) {
	return toStruct(types.ErrorResponse{Status: "error", Error: code, Message: msg})
}

// toStruct goes through JSON so the protobuf form uses the JSON field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
