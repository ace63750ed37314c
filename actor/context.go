package actor

// Context is handed to a handler for the lifetime of one inbound
// Request, built at the REQ_IN station. It exposes the request itself, a
// bound Reply that fills in the response's routing fields for the
// caller, and a Send shortcut that stamps this actor's id as From.
type Context struct {
	container *Container
	self      *processActor
	req       *Request
	reply     ReplyFunc
}

// Self returns the AID of the actor handling this request.
func (c *Context) Self() string { return c.self.id }

// Request returns the request currently being handled.
func (c *Context) Request() *Request { return c.req }

// From returns the AID of the caller that sent this request.
func (c *Context) From() string { return c.req.From }

// Reply sends a response back to the caller via the REQ_IN ReplyFunc.
// Calling Reply more than once has no effect on the caller after the
// first call: the first response retires the correlation entry, and the
// container's completeCorrelation ignores any later response for that
// id.
func (c *Context) Reply(errInfo *ErrInfo, content any, headers map[string]any) {
	c.reply(errInfo, content, headers)
}

// Send issues a new outbound request from this actor, with From
// implicitly set to Self().
func (c *Context) Send(to string, content any, override *SendOverride, cb func(*ErrInfo, *Response)) {
	c.container.sendFrom(c.self.id, to, content, override, cb)
}
