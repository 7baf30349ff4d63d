// Package server exposes the VM over gRPC. Each session owns one VM, so
// globals defined by one request are visible to the next request of the
// same session.
package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sort"
	"sync"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/funvibe/loxvm/internal/vm"
	loxvm "github.com/funvibe/loxvm/pkg/embed"
)

// Result is the outcome of one Interpret call.
type Result struct {
	Session     string
	Status      string
	Output      string
	Diagnostics string
}

// Server owns the sessions and implements the Eval service.
type Server struct {
	schema     *Schema
	logger     *logrus.Logger
	marshaller *loxvm.Marshaller
	trace      bool

	mu       sync.Mutex
	sessions map[string]*session
}

// session serializes access to its VM, which is single-threaded.
type session struct {
	mu      sync.Mutex
	machine *vm.VM
	out     bytes.Buffer
	diag    bytes.Buffer
}

// New creates a server with no sessions
func New(schema *Schema, logger *logrus.Logger) *Server {
	return &Server{
		schema:     schema,
		logger:     logger,
		marshaller: loxvm.NewMarshaller(),
		sessions:   make(map[string]*session),
	}
}

// SetTrace makes new sessions trace execution into their diagnostics
func (s *Server) SetTrace(on bool) {
	s.trace = on
}

// SessionCount returns the number of open sessions
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Interpret runs source in the session identified by id. An empty id opens
// a new session.
func (s *Server) Interpret(ctx context.Context, id, source string) (*Result, error) {
	if source == "" {
		return nil, status.Error(codes.InvalidArgument, "source is required")
	}

	sess, id, err := s.lookup(id, true)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.out.Reset()
	sess.diag.Reset()
	sess.machine.SetContext(ctx)
	result, _ := sess.machine.Interpret(source)
	sess.machine.SetContext(nil)

	s.logger.WithFields(logrus.Fields{
		"session": id,
		"result":  result.String(),
	}).Debug("interpreted request")

	return &Result{
		Session:     id,
		Status:      result.String(),
		Output:      sess.out.String(),
		Diagnostics: sess.diag.String(),
	}, nil
}

// Globals returns the session's global table as a Struct
func (s *Server) Globals(id string) (*structpb.Struct, error) {
	sess, _, err := s.lookup(id, false)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	snap := sess.machine.Globals().Snapshot()
	sess.mu.Unlock()

	fields := make(map[string]interface{}, snap.Len())
	var rangeErr error
	snap.Range(func(name string, v vm.Value) bool {
		fields[name], rangeErr = s.marshaller.FromValue(v, nil)
		return rangeErr == nil
	})
	if rangeErr != nil {
		return nil, status.Error(codes.Internal, rangeErr.Error())
	}
	return structpb.NewStruct(fields)
}

// CloseSession drops a session. It reports whether the session existed.
func (s *Server) CloseSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.logger.WithField("session", id).Debug("session closed")
	return true
}

// SessionIDs returns the open session ids, sorted
func (s *Server) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) lookup(id string, create bool) (*session, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		if !create {
			return nil, "", status.Error(codes.InvalidArgument, "session is required")
		}
		// The VM's own id doubles as the session id, so its log entries
		// carry the id clients see.
		sess := s.newSession()
		id = sess.machine.ID()
		s.sessions[id] = sess
		s.logger.WithField("session", id).Debug("session opened")
		return sess, id, nil
	}

	sess, ok := s.sessions[id]
	if !ok {
		return nil, "", status.Errorf(codes.NotFound, "unknown session %q", id)
	}
	return sess, id, nil
}

func (s *Server) newSession() *session {
	sess := &session{machine: vm.New()}
	sess.machine.SetLogger(s.logger)
	sess.machine.SetOutput(&sess.out)
	sess.machine.SetErrorOutput(&sess.diag)
	if s.trace {
		sess.machine.SetTrace(&sess.diag)
	}
	return sess
}

// Register adds the Eval service to a gRPC server
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(s.ServiceDesc(), s)
}

// ServiceDesc builds the service description from the parsed schema.
func (s *Server) ServiceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: s.schema.Service.GetFullyQualifiedName(),
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: s.schema.Interpret.GetName(), Handler: interpretHandler},
			{MethodName: s.schema.Globals.GetName(), Handler: globalsHandler},
			{MethodName: s.schema.CloseSession.GetName(), Handler: closeSessionHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: s.schema.File.GetName(),
	}
}

func interpretHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	s := srv.(*Server)
	in := NewInput(s.schema.Interpret)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		msg := req.(*dynamic.Message)
		res, err := s.Interpret(ctx, stringField(msg, "session"), stringField(msg, "source"))
		if err != nil {
			return nil, err
		}
		out := NewOutput(s.schema.Interpret)
		out.SetFieldByName("session", res.Session)
		out.SetFieldByName("status", res.Status)
		out.SetFieldByName("output", res.Output)
		out.SetFieldByName("diagnostics", res.Diagnostics)
		return out, nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(s.schema.Interpret)}
	return interceptor(ctx, in, info, handler)
}

func globalsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	s := srv.(*Server)
	in := NewInput(s.schema.Globals)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		msg := req.(*dynamic.Message)
		globals, err := s.Globals(stringField(msg, "session"))
		if err != nil {
			return nil, err
		}
		return globals, nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(s.schema.Globals)}
	return interceptor(ctx, in, info, handler)
}

func closeSessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	s := srv.(*Server)
	in := NewInput(s.schema.CloseSession)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		msg := req.(*dynamic.Message)
		out := NewOutput(s.schema.CloseSession)
		out.SetFieldByName("closed", s.CloseSession(stringField(msg, "session")))
		return out, nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(s.schema.CloseSession)}
	return interceptor(ctx, in, info, handler)
}

// Serve runs the Eval service on lis until ctx is cancelled.
func Serve(ctx context.Context, lis net.Listener, srv *Server) error {
	g := grpc.NewServer()
	srv.Register(g)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			g.GracefulStop()
		case <-done:
		}
	}()

	srv.logger.WithField("addr", lis.Addr().String()).Info("eval server listening")
	if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func ListenAndServe(ctx context.Context, addr string, srv *Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, lis, srv)
}
