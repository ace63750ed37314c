package actor

import "time"

// inprocTransport is the Transport used whenever a destination resolves
// to ScopeProcess: no network hop is needed, but delivery is still
// deferred one tick with time.AfterFunc(0, ...) rather than made
// synchronously on the caller's goroutine, so a handler never runs
// inside the caller's Send call stack. Each delivery is scheduled
// independently, so the relative order of two deliveries is not
// defined. Refactored out behind
// Transport so the container never branches on scope itself; actual
// mailbox lookup and delivery is the container's job (onReq/onRes), not
// the transport's, keeping this type symmetric with remoteTransport.
type inprocTransport struct {
	handler inboundHandler
}

func newInprocTransport(handler inboundHandler) *inprocTransport {
	return &inprocTransport{handler: handler}
}

func (t *inprocTransport) SendRequest(req *Request) error {
	time.AfterFunc(0, func() { t.handler.onReq(req, t) })
	return nil
}

func (t *inprocTransport) SendResponse(res *Response) error {
	time.AfterFunc(0, func() { t.handler.onRes(res) })
	return nil
}
