package actor

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// gobCodec is a gRPC codec backed by Go's gob format. gob is not
// cross-language, so this transport only ever talks to other containers
// built from this same module.
type gobCodec struct{}

func (g gobCodec) Name() string { return "gob" }

func (g gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// wireRequest and wireResponse are the gob-encoded wire shapes for
// Request/Response, carrying their fields directly rather than an
// opaque payload.
type wireRequest struct {
	ID      string
	From    string
	To      string
	Content any
	Headers map[string]any
	Date    int64
	Timeout time.Duration
	CB      bool
}

type wireResponse struct {
	ID       string
	From     string
	To       string
	ErrCode  string
	ErrCause string
	Content  any
	Headers  map[string]any
	Date     int64
}

type wireAck struct {
	OK  bool
	Err string
}

// RemoteServer is the gRPC service this transport registers manually,
// with no protoc-generated stubs.
type RemoteServer interface {
	DeliverRequest(context.Context, *wireRequest) (*wireAck, error)
	DeliverResponse(context.Context, *wireResponse) (*wireAck, error)
}

// remoteTransport is the ScopeLocal/ScopeRemote Transport: every actor
// not hosted directly by this container is reached over gRPC, whether
// it lives on this host or another. A gRPC server plus a client
// connection pool keyed by address; destination addresses are looked up
// via the registry/discovery components rather than a manually-set
// location map, and any delivery failure calls onDrop instead of only
// returning an error.
type remoteTransport struct {
	registry *Registry
	handler  inboundHandler
	drop     dropNotifier
	log      Logger

	server *grpc.Server
	lis    net.Listener
	addr   string

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func newRemoteTransport(listenAddr string, registry *Registry, handler inboundHandler, drop dropNotifier, log Logger) (*remoteTransport, error) {
	if listenAddr == "" {
		listenAddr = ":0"
	}
	encoding.RegisterCodec(gobCodec{})
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	rt := &remoteTransport{
		registry: registry,
		handler:  handler,
		drop:     drop,
		log:      log,
		lis:      lis,
		addr:     lis.Addr().String(),
		conns:    make(map[string]*grpc.ClientConn),
	}
	rt.server = grpc.NewServer(grpc.ForceServerCodec(gobCodec{}))
	rt.register(rt.server)
	go func() { _ = rt.server.Serve(lis) }()
	return rt, nil
}

func (rt *remoteTransport) Addr() string { return rt.addr }

func (rt *remoteTransport) Stop() {
	rt.server.Stop()
	_ = rt.lis.Close()
	rt.mu.Lock()
	for _, c := range rt.conns {
		_ = c.Close()
	}
	rt.conns = nil
	rt.mu.Unlock()
}

// resolveAddr finds the grpc listen address hosting aid, via the
// registry entry's ContainerRef (populated by discovery).
func (rt *remoteTransport) resolveAddr(aid string, scope Scope) (string, error) {
	s := scope
	entry, ok := rt.registry.Get(aid, &s)
	if !ok || entry.container.NetInfo.IP == "" {
		return "", errNoAddr
	}
	return net.JoinHostPort(entry.container.NetInfo.IP, itoa(uint64(entry.container.NetInfo.Port))), nil
}

var errNoAddr = errors.New("actor: no known network address")

func (rt *remoteTransport) SendRequest(req *Request) error {
	scope, ok := rt.scopeOf(req.To)
	if !ok {
		rt.drop.onDrop(req, errNoAddr)
		return nil
	}
	addr, err := rt.resolveAddr(req.To, scope)
	if err != nil {
		rt.drop.onDrop(req, err)
		return nil
	}
	wr := &wireRequest{ID: req.ID, From: req.From, To: req.To, Content: req.Content, Headers: req.Headers, Date: req.Date, Timeout: req.Timeout, CB: req.CB}
	go func() {
		if err := rt.deliverRequest(addr, wr); err != nil {
			rt.log.Warn("remote request delivery failed", "to", req.To, "addr", addr, "err", err)
			rt.drop.onDrop(req, err)
		}
	}()
	return nil
}

func (rt *remoteTransport) SendResponse(res *Response) error {
	scope, ok := rt.scopeOf(res.To)
	if !ok {
		return errNoAddr
	}
	addr, err := rt.resolveAddr(res.To, scope)
	if err != nil {
		return err
	}
	wr := &wireResponse{ID: res.ID, From: res.From, To: res.To, Content: res.Content, Headers: res.Headers, Date: res.Date}
	if res.Err != nil {
		wr.ErrCode = res.Err.Code
		if res.Err.Cause != nil {
			wr.ErrCause = res.Err.Cause.Error()
		}
	}
	go func() {
		if err := rt.deliverResponse(addr, wr); err != nil {
			rt.log.Warn("remote response delivery failed", "to", res.To, "addr", addr, "err", err)
		}
	}()
	return nil
}

func (rt *remoteTransport) scopeOf(aid string) (Scope, bool) {
	for _, s := range []Scope{ScopeLocal, ScopeRemote} {
		if _, ok := rt.registry.Get(aid, &s); ok {
			return s, true
		}
	}
	if _, s, ok := rt.registry.Pick(aid); ok && s != ScopeProcess {
		return s, true
	}
	return 0, false
}

func (rt *remoteTransport) deliverRequest(addr string, wr *wireRequest) error {
	conn, err := rt.conn(addr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ack wireAck
	if err := conn.Invoke(ctx, "/actorcontainer.Remote/DeliverRequest", wr, &ack, grpc.ForceCodec(gobCodec{})); err != nil {
		return err
	}
	if !ack.OK {
		return errors.New(ack.Err)
	}
	return nil
}

func (rt *remoteTransport) deliverResponse(addr string, wr *wireResponse) error {
	conn, err := rt.conn(addr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ack wireAck
	if err := conn.Invoke(ctx, "/actorcontainer.Remote/DeliverResponse", wr, &ack, grpc.ForceCodec(gobCodec{})); err != nil {
		return err
	}
	if !ack.OK {
		return errors.New(ack.Err)
	}
	return nil
}

func (rt *remoteTransport) conn(addr string) (*grpc.ClientConn, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c, ok := rt.conns[addr]; ok {
		return c, nil
	}
	cc, err := grpc.Dial(addr, grpc.WithInsecure(), grpc.WithDefaultCallOptions(grpc.ForceCodec(gobCodec{})))
	if err != nil {
		return nil, err
	}
	rt.conns[addr] = cc
	return cc, nil
}

func (rt *remoteTransport) register(srv *grpc.Server) {
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "actorcontainer.Remote",
		HandlerType: (*RemoteServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "DeliverRequest",
				Handler: func(s any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var in wireRequest
					if err := dec(&in); err != nil {
						return nil, err
					}
					return rt.DeliverRequest(ctx, &in)
				},
			},
			{
				MethodName: "DeliverResponse",
				Handler: func(s any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var in wireResponse
					if err := dec(&in); err != nil {
						return nil, err
					}
					return rt.DeliverResponse(ctx, &in)
				},
			},
		},
		Metadata: "gob",
	}, rt)
}

func (rt *remoteTransport) DeliverRequest(_ context.Context, in *wireRequest) (*wireAck, error) {
	rt.handler.onReq(&Request{ID: in.ID, From: in.From, To: in.To, Content: in.Content, Headers: in.Headers, Date: in.Date, Timeout: in.Timeout, CB: in.CB}, rt)
	return &wireAck{OK: true}, nil
}

func (rt *remoteTransport) DeliverResponse(_ context.Context, in *wireResponse) (*wireAck, error) {
	var errInfo *ErrInfo
	if in.ErrCode != "" {
		errInfo = &ErrInfo{Code: in.ErrCode}
		if in.ErrCause != "" {
			errInfo.Cause = errors.New(in.ErrCause)
		}
	}
	rt.handler.onRes(&Response{ID: in.ID, From: in.From, To: in.To, Err: errInfo, Content: in.Content, Headers: in.Headers, Date: in.Date})
	return &wireAck{OK: true}, nil
}
