package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/gridlock/rpc/common"
	"github.com/ValentinKolb/gridlock/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

var Logger = logger.GetLogger("transport/rpc")

// transportService is the handler type of the hand written service description
type transportService interface {
	send(ctx context.Context, req []byte) ([]byte, error)
}

// serviceDesc describes a service with a single unary method that carries serialized messages
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*transportService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Send",
			Handler:    sendHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gridlock/rpc/transport.go",
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req []byte
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportService).send(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sendMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportService).send(ctx, *req.(*[]byte))
	}
	return interceptor(ctx, &req, info, handler)
}

func NewGrpcServerTransport() transport.IRPCServerTransport {
	return &grpcServerTransport{}
}

type grpcServerTransport struct {
	handler transport.ServerHandleFunc
	mu      sync.Mutex
	server  *grpc.Server
	closed  bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *grpcServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *grpcServerTransport) Listen(config common.ServerConfig) error {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	return t.serve(listener, config)
}

func (t *grpcServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.server != nil {
		t.server.Stop()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *grpcServerTransport) serve(listener net.Listener, config common.ServerConfig) error {
	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(rawCodec{}),
		grpc.MaxRecvMsgSize(config.Transport.FrameLimit()),
		grpc.MaxSendMsgSize(config.Transport.FrameLimit()),
	}
	if config.Transport.TCPKeepAliveSec > 0 {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			Time: time.Duration(config.Transport.TCPKeepAliveSec) * time.Second,
		}))
	}
	if config.Transport.WriteBufferSize > 0 {
		opts = append(opts, grpc.WriteBufferSize(config.Transport.WriteBufferSize))
	}
	if config.Transport.ReadBufferSize > 0 {
		opts = append(opts, grpc.ReadBufferSize(config.Transport.ReadBufferSize))
	}

	server := grpc.NewServer(opts...)
	server.RegisterService(&serviceDesc, t)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	t.server = server
	t.mu.Unlock()

	Logger.Infof("Starting gRPC server on %s", listener.Addr())

	// Serve returns nil after Stop
	return server.Serve(listener)
}

func (t *grpcServerTransport) send(_ context.Context, req []byte) ([]byte, error) {
	resp := t.handler(req)
	return resp, nil
}
