// Package grpctransport implements comm.Communicator for a real
// multi-process deployment: one gRPC client-streaming RPC per ordered
// (source, destination) rank pair, carrying raw envelope frames with no
// protobuf schema (see codec.go). Collective operations reuse the same
// comm/internal/collective fan-out used by comm/localtransport.
//
// Peer addresses are supplied up front (they are not discovered), which
// matches FPMAS's deployment model: rank-to-address mapping is an
// operator/launcher concern outside the core.
package grpctransport

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/comm/internal/collective"
	"github.com/fpmas-go/fpmas/comm/internal/inbox"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/internal/telemetry"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const serviceName = "fpmas.comm.Exchange"
const methodName = "/" + serviceName + "/Exchange"

// wireEnvelope is what actually rides inside a Frame.Data, gob-encoded.
type wireEnvelope struct {
	From int32
	Tag  comm.Tag
	Data []byte
}

func encodeEnvelope(env wireEnvelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("%w: encode wire envelope: %v", fpid.ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(data []byte) (wireEnvelope, error) {
	var env wireEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return env, fmt.Errorf("%w: decode wire envelope: %v", fpid.ErrCodecFailure, err)
	}
	return env, nil
}

// Peers maps every other rank in the cluster to its dial address.
type Peers map[int32]string

// Communicator is a grpc-backed comm.Communicator. Construct with Dial,
// which starts the local gRPC server and lazily dials peers on first use.
type Communicator struct {
	rank    int32
	size    int32
	peers   Peers
	server  *grpc.Server
	inbox   *inbox.Mailbox
	log     *slog.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	streams map[int32]grpc.ClientStream
	conns   map[int32]*grpc.ClientConn
}

// Options configures a Communicator.
type Options struct {
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Dial starts listening on listenAddr for this rank, and prepares (but
// does not yet open) client streams to every peer in peers. size is the
// total cluster size, including this rank.
func Dial(rank, size int32, listenAddr string, peers Peers, opts Options) (*Communicator, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Communicator{
		rank:    rank,
		size:    size,
		peers:   peers,
		inbox:   inbox.New(),
		log:     opts.Logger.With("component", "grpctransport", "rank", rank),
		tracer:  opts.Tracer,
		streams: make(map[int32]grpc.ClientStream),
		conns:   make(map[int32]*grpc.ClientConn),
	}

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", fpid.ErrCommunicationFailure, listenAddr, err)
	}

	c.server = grpc.NewServer()
	c.server.RegisterService(&serviceDesc, c)

	go func() {
		if err := c.server.Serve(lis); err != nil {
			c.log.Error("exchange server stopped", "err", err)
		}
	}()

	return c, nil
}

// Close tears down the server and every client connection.
func (c *Communicator) Close() {
	c.server.GracefulStop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		_ = conn.Close()
	}
}

func (c *Communicator) Rank() int32 { return c.rank }
func (c *Communicator) Size() int32 { return c.size }

// clientStream returns the persistent outbound stream to dest, dialing and
// opening it on first use.
func (c *Communicator) clientStream(ctx context.Context, dest int32) (grpc.ClientStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.streams[dest]; ok {
		return s, nil
	}

	addr, ok := c.peers[dest]
	if !ok {
		return nil, fmt.Errorf("%w: no address configured for rank %d", fpid.ErrCommunicationFailure, dest)
	}

	conn, ok := c.conns[dest]
	if !ok {
		var err error
		conn, err = grpc.NewClient(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: dial rank %d at %s: %v", fpid.ErrCommunicationFailure, dest, addr, err)
		}
		c.conns[dest] = conn
	}

	stream, err := conn.NewStream(ctx, &streamDesc, methodName)
	if err != nil {
		return nil, fmt.Errorf("%w: open exchange stream to rank %d: %v", fpid.ErrCommunicationFailure, dest, err)
	}
	c.streams[dest] = stream
	return stream, nil
}

// Send encodes env and pushes it onto the persistent stream to dest. It
// returns once gRPC has accepted the frame for transmission, not once the
// peer has received it: no acknowledgement flows back from the peer.
// ISend wraps Send, so its Request's Test reports true at that same point,
// whether or not the peer has matched the message with a Recv.
func (c *Communicator) Send(ctx context.Context, dest int32, tag comm.Tag, data []byte) error {
	stream, err := c.clientStream(ctx, dest)
	if err != nil {
		return err
	}

	payload, err := encodeEnvelope(wireEnvelope{From: c.rank, Tag: tag, Data: data})
	if err != nil {
		return err
	}

	if err := stream.SendMsg(&Frame{Data: payload}); err != nil {
		return fmt.Errorf("%w: send to rank %d: %v", fpid.ErrCommunicationFailure, dest, err)
	}
	return nil
}

type grpcRequest struct {
	done chan error
}

func (r *grpcRequest) Test() (bool, error) {
	select {
	case err := <-r.done:
		return true, err
	default:
		return false, nil
	}
}

func (c *Communicator) ISend(ctx context.Context, dest int32, tag comm.Tag, data []byte) (comm.Request, error) {
	done := make(chan error, 1)
	go func() { done <- c.Send(ctx, dest, tag, data) }()
	return &grpcRequest{done: done}, nil
}

func (c *Communicator) Recv(ctx context.Context, src int32, tag comm.Tag) ([]byte, error) {
	return c.inbox.Recv(ctx, src, tag)
}

func (c *Communicator) IProbe(src int32, tag comm.Tag) (comm.Status, bool, error) {
	st, ok := c.inbox.Peek(src, tag)
	return st, ok, nil
}

func (c *Communicator) AllToAll(ctx context.Context, tag comm.Tag, sends map[int32][]byte) (map[int32][]byte, error) {
	op, spanCtx := telemetry.EmitBarrier(ctx, c.tracer, "comm.all_to_all", c.rank, int(tag.Epoch))
	result, err := collective.AllToAll(spanCtx, c, tag, sends)
	op.End(err)
	return result, err
}

func (c *Communicator) Gather(ctx context.Context, tag comm.Tag, root int32, data []byte) (map[int32][]byte, error) {
	return collective.Gather(ctx, c, tag, root, data)
}

func (c *Communicator) AllGather(ctx context.Context, tag comm.Tag, data []byte) (map[int32][]byte, error) {
	return collective.AllGather(ctx, c, tag, data)
}

func (c *Communicator) Barrier(ctx context.Context, epoch comm.Epoch) error {
	return collective.Barrier(ctx, c, epoch)
}

// --- server side: grpc.ServiceDesc handler, manually defined since there
// is no .proto schema to generate one from (see codec.go). ---

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Streams:     []grpc.StreamDesc{streamDesc},
	Metadata:    "fpmas/comm/exchange",
}

var streamDesc = grpc.StreamDesc{
	StreamName:    "Exchange",
	Handler:       exchangeHandler,
	ClientStreams: true,
}

func exchangeHandler(srv any, stream grpc.ServerStream) error {
	c, ok := srv.(*Communicator)
	if !ok {
		return status.Errorf(codes.Internal, "grpctransport: unexpected handler type %T", srv)
	}

	for {
		var f Frame
		if err := stream.RecvMsg(&f); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		env, err := decodeEnvelope(f.Data)
		if err != nil {
			c.log.Error("dropping malformed exchange frame", "err", err)
			continue
		}
		c.inbox.Post(&inbox.Envelope{From: env.From, Tag: env.Tag, Data: env.Data})
	}
}
