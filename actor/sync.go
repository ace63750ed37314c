package actor

import "time"

// Ask is a blocking convenience over Send/Future for callers that would
// rather wait than register a callback: it completes a
// Future[askResult] from Send's callback and blocks on it. Returns
// ok=false if timeout elapses before Send's own callback fires (which
// should not normally happen before Send's own timeout, but guards
// against a caller passing a shorter wait than the request's own
// deadline).
func (c *Container) Ask(to string, content any, timeout time.Duration) (*Response, *ErrInfo, bool) {
	type askResult struct {
		res *Response
		err *ErrInfo
	}
	f := newFuture[askResult]()
	c.Send("", to, content, &SendOverride{Timeout: timeout}, func(errInfo *ErrInfo, res *Response) {
		f.complete(askResult{res: res, err: errInfo})
	})
	r, ok := f.Await(timeout + 50*time.Millisecond)
	if !ok {
		return nil, timeoutErr(), false
	}
	return r.res, r.err, true
}
