package server

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type testClient struct {
	schema *Schema
	conn   *grpc.ClientConn
	srv    *Server
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func startServer(t *testing.T) *testClient {
	t.Helper()
	schema, err := LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	srv := New(schema, quietLogger())

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- Serve(ctx, lis, srv) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		cancel()
		t.Fatalf("grpc.NewClient failed: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		cancel()
		if err := <-served; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})
	return &testClient{schema: schema, conn: conn, srv: srv}
}

func (c *testClient) interpret(t *testing.T, session, source string) (*dynamic.Message, error) {
	t.Helper()
	req := NewInput(c.schema.Interpret)
	req.SetFieldByName("session", session)
	req.SetFieldByName("source", source)
	resp := NewOutput(c.schema.Interpret)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Invoke(ctx, FullMethod(c.schema.Interpret), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *testClient) mustInterpret(t *testing.T, session, source string) (string, string, string, string) {
	t.Helper()
	resp, err := c.interpret(t, session, source)
	if err != nil {
		t.Fatalf("Interpret(%q) failed: %v", source, err)
	}
	return stringField(resp, "session"), stringField(resp, "status"), stringField(resp, "output"), stringField(resp, "diagnostics")
}

func TestSchema(t *testing.T) {
	schema, err := LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	if got := FullMethod(schema.Interpret); got != "/loxvm.Eval/Interpret" {
		t.Errorf("FullMethod = %q", got)
	}
	if got := schema.Globals.GetOutputType().GetFullyQualifiedName(); got != "google.protobuf.Struct" {
		t.Errorf("Globals output = %q", got)
	}
}

func TestInterpret_NewSessionAndPersistence(t *testing.T) {
	c := startServer(t)

	session, st, out, diag := c.mustInterpret(t, "", "var greeting = \"hello\"; print greeting;")
	if session == "" {
		t.Fatal("expected a session id")
	}
	if st != "ok" || out != "hello\n" || diag != "" {
		t.Errorf("first call: status=%q output=%q diagnostics=%q", st, out, diag)
	}

	again, st, out, _ := c.mustInterpret(t, session, "print greeting + \" again\";")
	if again != session {
		t.Errorf("session changed: %q -> %q", session, again)
	}
	if st != "ok" || out != "hello again\n" {
		t.Errorf("second call: status=%q output=%q", st, out)
	}

	other, st, _, diag := c.mustInterpret(t, "", "print greeting;")
	if other == session {
		t.Error("empty session should open a new one")
	}
	if st != "runtime_error" || !strings.Contains(diag, "Undefined variable 'greeting'.") {
		t.Errorf("new session saw old globals: status=%q diagnostics=%q", st, diag)
	}
	if c.srv.SessionCount() != 2 {
		t.Errorf("SessionCount = %d, want 2", c.srv.SessionCount())
	}
}

func TestInterpret_Statuses(t *testing.T) {
	c := startServer(t)

	tests := []struct {
		source string
		status string
		diag   string
	}{
		{"print 1 + 2;", "ok", ""},
		{"print;", "compile_error", "[line 1] Error at ';': Expect expression.\n"},
		{"print -\"x\";", "runtime_error", "Operand must be a number.\n[line 1] in script\n"},
	}

	for _, tt := range tests {
		_, st, _, diag := c.mustInterpret(t, "", tt.source)
		if st != tt.status {
			t.Errorf("%q: status %q, want %q", tt.source, st, tt.status)
		}
		if diag != tt.diag {
			t.Errorf("%q: diagnostics %q, want %q", tt.source, diag, tt.diag)
		}
	}
}

func TestInterpret_Errors(t *testing.T) {
	c := startServer(t)

	_, err := c.interpret(t, "no-such-session", "print 1;")
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown session: got %v, want NotFound", err)
	}

	_, err = c.interpret(t, "", "")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing source: got %v, want InvalidArgument", err)
	}
}

func TestGlobalsAndCloseSession(t *testing.T) {
	c := startServer(t)

	session, _, _, _ := c.mustInterpret(t, "", "var n = 2; var s = \"x\"; var b = true; var z;")

	req := NewInput(c.schema.Globals)
	req.SetFieldByName("session", session)
	globals := &structpb.Struct{}
	if err := c.conn.Invoke(context.Background(), FullMethod(c.schema.Globals), req, globals); err != nil {
		t.Fatalf("Globals failed: %v", err)
	}
	got := globals.AsMap()
	if got["n"] != 2.0 || got["s"] != "x" || got["b"] != true {
		t.Errorf("globals = %v", got)
	}
	if v, ok := got["z"]; !ok || v != nil {
		t.Errorf("z = %v (%v), want nil", v, ok)
	}

	closeReq := NewInput(c.schema.CloseSession)
	closeReq.SetFieldByName("session", session)
	closeResp := NewOutput(c.schema.CloseSession)
	if err := c.conn.Invoke(context.Background(), FullMethod(c.schema.CloseSession), closeReq, closeResp); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	if closed, _ := closeResp.GetFieldByName("closed").(bool); !closed {
		t.Error("expected closed = true")
	}

	_, err := c.interpret(t, session, "print n;")
	if status.Code(err) != codes.NotFound {
		t.Errorf("closed session: got %v, want NotFound", err)
	}
	if c.srv.CloseSession(session) {
		t.Error("closing twice should report false")
	}
}

func TestInterpret_ConcurrentSameSession(t *testing.T) {
	c := startServer(t)
	session, _, _, _ := c.mustInterpret(t, "", "var count = 0;")

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := c.interpret(t, session, "count = count + 1;"); err != nil {
					t.Errorf("Interpret failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	_, _, out, _ := c.mustInterpret(t, session, "print count;")
	if out != "80\n" {
		t.Errorf("count = %q, want 80", out)
	}
}

func TestInterpret_DirectCall(t *testing.T) {
	schema, err := LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	srv := New(schema, quietLogger())
	srv.SetTrace(true)

	res, err := srv.Interpret(context.Background(), "", "print 1;")
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if res.Output != "1\n" {
		t.Errorf("output = %q", res.Output)
	}
	if !strings.Contains(res.Diagnostics, "OP_PRINT") {
		t.Errorf("trace missing from diagnostics: %q", res.Diagnostics)
	}
	if ids := srv.SessionIDs(); len(ids) != 1 || ids[0] != res.Session {
		t.Errorf("SessionIDs = %v", ids)
	}
}
