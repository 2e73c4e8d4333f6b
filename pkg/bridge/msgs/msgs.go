// Package msgs defines the messages exchanged with a reader bridge.
package msgs

// Requests are published by hosts on <prefix><device>/req, replies are
// published by the bridge on <prefix><device>/reply. Both are protobuf
// encoded:
//
//   message Request {
//     uint64 id      = 1;
//     int32  op      = 2;
//     int32  min     = 3;
//     int32  max     = 4;
//     int32  address = 5;
//     int32  chunk   = 6;
//   }
//
//   message Reply {
//     uint64 id          = 1;
//     int32  op          = 2;
//     int32  base        = 3;
//     bytes  data        = 4;
//     bool   placeholder = 5;
//     string error       = 6;
//     int32  min         = 7;
//     int32  max         = 8;
//   }

import (
	"fmt"

	"github.com/golang/protobuf/proto"
)

// Operations of a Request.
const (
	OpNone int32 = iota
	// OpSetRange sets the scan range to Min..Max.
	OpSetRange
	// OpRead scans the current range.
	OpRead
	// OpReadLocation reads Address.
	OpReadLocation
	// OpReadI2C runs the I2C stub over the current range.
	OpReadI2C
	// OpReadSPI runs the SPI stub over the current range.
	OpReadSPI
	// OpDump reads Min..Max in chunks of Chunk bytes.
	OpDump
)

var opNames = map[int32]string{
	OpNone:         "none",
	OpSetRange:     "set-range",
	OpRead:         "read",
	OpReadLocation: "read-location",
	OpReadI2C:      "read-i2c",
	OpReadSPI:      "read-spi",
	OpDump:         "dump",
}

// OpName returns the display name of op.
func OpName(op int32) string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", op)
}

// Request asks the bridge to run an operation on the reader.
type Request struct {
	Id      uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Op      int32  `protobuf:"varint,2,opt,name=op,proto3" json:"op,omitempty"`
	Min     int32  `protobuf:"varint,3,opt,name=min,proto3" json:"min,omitempty"`
	Max     int32  `protobuf:"varint,4,opt,name=max,proto3" json:"max,omitempty"`
	Address int32  `protobuf:"varint,5,opt,name=address,proto3" json:"address,omitempty"`
	Chunk   int32  `protobuf:"varint,6,opt,name=chunk,proto3" json:"chunk,omitempty"`
}

// Reset implements proto.Message.
func (m *Request) Reset() { *m = Request{} }

// String implements proto.Message.
func (m *Request) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*Request) ProtoMessage() {}

// Reply is the result of a Request. Error is empty on success.
type Reply struct {
	Id          uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Op          int32  `protobuf:"varint,2,opt,name=op,proto3" json:"op,omitempty"`
	Base        int32  `protobuf:"varint,3,opt,name=base,proto3" json:"base,omitempty"`
	Data        []byte `protobuf:"bytes,4,opt,name=data,proto3" json:"data,omitempty"`
	Placeholder bool   `protobuf:"varint,5,opt,name=placeholder,proto3" json:"placeholder,omitempty"`
	Error       string `protobuf:"bytes,6,opt,name=error,proto3" json:"error,omitempty"`
	// Min and Max are the range the reader is left with.
	Min int32 `protobuf:"varint,7,opt,name=min,proto3" json:"min,omitempty"`
	Max int32 `protobuf:"varint,8,opt,name=max,proto3" json:"max,omitempty"`
}

// Reset implements proto.Message.
func (m *Reply) Reset() { *m = Reply{} }

// String implements proto.Message.
func (m *Reply) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*Reply) ProtoMessage() {}

// Encode marshals a message.
func Encode(m proto.Message) ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeRequest unmarshals a Request.
func DecodeRequest(payload []byte) (*Request, error) {
	var req Request
	if err := proto.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeReply unmarshals a Reply.
func DecodeReply(payload []byte) (*Reply, error) {
	var reply Reply
	if err := proto.Unmarshal(payload, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
