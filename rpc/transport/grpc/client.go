package grpc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/gridlock/rpc/common"
	"github.com/ValentinKolb/gridlock/rpc/transport"
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// defaultTimeout bounds a request when the client config has no timeout
const defaultTimeout = 30 * time.Second

func NewGrpcClientTransport() transport.IRPCClientTransport {
	return &grpcClientTransport{}
}

type grpcClientTransport struct {
	conns      []*grpc.ClientConn
	counter    uint32
	timeout    time.Duration
	retryCount int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *grpcClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	_ = t.Close()

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(rawCodec{}),
			grpc.MaxCallRecvMsgSize(config.Transport.FrameLimit()),
			grpc.MaxCallSendMsgSize(config.Transport.FrameLimit()),
		),
	}

	// gRPC multiplexes requests on one connection, more than one per endpoint
	// only spreads the load over more sockets
	perEndpoint := max(1, config.ConnectionsPerEndpoint)
	for _, endpoint := range config.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			conn, err := grpc.NewClient(endpoint, opts...)
			if err != nil {
				_ = t.Close()
				return errors.Wrapf(err, "create grpc client for %s", endpoint)
			}
			t.conns = append(t.conns, conn)
		}
	}

	t.timeout = time.Duration(config.TimeoutSecond) * time.Second
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	t.retryCount = max(1, config.RetryCount)
	Logger.Infof("Created %d grpc connections to %d endpoints", len(t.conns), len(config.Endpoints))
	return nil
}

func (t *grpcClientTransport) Send(req []byte) (resp []byte, err error) {
	if len(t.conns) == 0 {
		return nil, fmt.Errorf("grpc transport not initialized")
	}

	for i := 0; i < t.retryCount; i++ {
		idx := atomic.AddUint32(&t.counter, 1) % uint32(len(t.conns))
		resp, err = t.invoke(t.conns[idx], req)
		if err == nil {
			return resp, nil
		}
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, t.retryCount, err)
	}
	return nil, errors.Wrapf(err, "failed to send request after %d attempts", t.retryCount)
}

func (t *grpcClientTransport) Close() error {
	var errs error
	for _, conn := range t.conns {
		errs = errors.CombineErrors(errs, conn.Close())
	}
	t.conns = nil
	return errs
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *grpcClientTransport) invoke(conn *grpc.ClientConn, req []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	var resp []byte
	if err := conn.Invoke(ctx, sendMethod, &req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
