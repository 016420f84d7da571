package log

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var protoFormat = protojson.MarshalOptions{AllowPartial: true}

// FormatProto returns a single line JSON rendering of msg. The top level
// fields named in redact (proto or JSON names) are cleared from a copy
// before formatting, so ballot contents never reach the logs.
func FormatProto(msg protoreflect.ProtoMessage, redact ...string) string {
	if len(redact) == 0 {
		return protoFormat.Format(msg)
	}
	clone := proto.Clone(msg).ProtoReflect()
	fields := clone.Descriptor().Fields()
	for _, name := range redact {
		fd := fields.ByJSONName(name)
		if fd == nil {
			fd = fields.ByName(protoreflect.Name(name))
		}
		if fd != nil {
			clone.Clear(fd)
		}
	}
	return protoFormat.Format(clone.Interface())
}
