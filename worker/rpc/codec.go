package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// Name is the content subtype of worker calls.
const Name = "json"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (codec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (codec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(codec{})
}
