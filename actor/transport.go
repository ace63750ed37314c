package actor

// Transport delivers a Request or Response to whatever hosts the
// destination actor: the container multiplexes one Transport per scope
// (inproc for ScopeProcess, remote for ScopeLocal/ScopeRemote) behind
// this single interface, so container.go never branches on scope
// itself.
type Transport interface {
	// SendRequest attempts to deliver req to its destination. Delivery
	// is asynchronous: SendRequest returning nil only means the
	// transport accepted the request for delivery, not that it arrived.
	// A transport that cannot deliver must call onDrop, not return an
	// error, so the container's retry loop can react uniformly across
	// transports.
	SendRequest(req *Request) error
	// SendResponse delivers res back to its origin container.
	SendResponse(res *Response) error
}

// dropNotifier receives drop notifications from a Transport. The
// container implements it and wires itself into every transport it
// creates.
type dropNotifier interface {
	onDrop(req *Request, cause error)
}

// inboundHandler receives inbound traffic a Transport has decoded off
// the wire (or, for inproc, resolved locally) and hands it back to the
// container for REQ_IN/RES_IN middleware processing and delivery.
type inboundHandler interface {
	onReq(req *Request, from Transport)
	onRes(res *Response)
}
