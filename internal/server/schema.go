package server

import (
	_ "embed"
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"

	"github.com/funvibe/loxvm/internal/config"
)

//go:embed eval.proto
var evalProto string

const evalProtoFile = "loxvm/eval.proto"

// Schema holds the parsed descriptors of the evaluation service.
type Schema struct {
	File    *desc.FileDescriptor
	Service *desc.ServiceDescriptor

	Interpret    *desc.MethodDescriptor
	Globals      *desc.MethodDescriptor
	CloseSession *desc.MethodDescriptor
}

// LoadSchema parses the embedded service definition.
func LoadSchema() (*Schema, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{
			evalProtoFile: evalProto,
		}),
	}

	fds, err := parser.ParseFiles(evalProtoFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proto: %w", err)
	}

	s := &Schema{File: fds[0]}
	s.Service = s.File.FindService(config.EvalServiceName)
	if s.Service == nil {
		return nil, fmt.Errorf("service %s not found in %s", config.EvalServiceName, evalProtoFile)
	}

	methods := []struct {
		name string
		dst  **desc.MethodDescriptor
	}{
		{config.InterpretMethodName, &s.Interpret},
		{"Globals", &s.Globals},
		{"CloseSession", &s.CloseSession},
	}
	for _, m := range methods {
		md := s.Service.FindMethodByName(m.name)
		if md == nil {
			return nil, fmt.Errorf("method %s/%s not found", config.EvalServiceName, m.name)
		}
		*m.dst = md
	}
	return s, nil
}

// FullMethod returns the "/package.Service/Method" path used on the wire.
func FullMethod(md *desc.MethodDescriptor) string {
	return "/" + md.GetService().GetFullyQualifiedName() + "/" + md.GetName()
}

// NewInput creates an empty request message for md.
func NewInput(md *desc.MethodDescriptor) *dynamic.Message {
	return dynamic.NewMessage(md.GetInputType())
}

// NewOutput creates an empty response message for md.
func NewOutput(md *desc.MethodDescriptor) *dynamic.Message {
	return dynamic.NewMessage(md.GetOutputType())
}

// stringField reads a string field, treating an unset field as empty.
func stringField(msg *dynamic.Message, name string) string {
	s, _ := msg.GetFieldByName(name).(string)
	return s
}
