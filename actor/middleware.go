package actor

// MiddlewareFunc runs at one of the four message pipeline stations. It
// is called with the station, the Envelope carrying the Request or
// Response in flight (inspected via Envelope.Request/Envelope.Response),
// a reply usable only at REQ_IN and RES_OUT (nil elsewhere), and next,
// which continues the chain. A middleware that never calls next
// short-circuits the pipeline for that message.
type MiddlewareFunc func(kind MessageKind, env *Envelope, reply ReplyFunc, next func())

// middlewareChain holds the ordered list of registered middleware and
// runs a message through every entry in registration order before
// falling through to the pipeline's terminal action.
type middlewareChain struct {
	fns []MiddlewareFunc
}

func (c *middlewareChain) use(fn MiddlewareFunc) {
	c.fns = append(c.fns, fn)
}

// run drives env through every middleware in order, then calls terminal.
// reply is passed straight through to each station; only REQ_IN and
// RES_OUT stations are expected to use it.
func (c *middlewareChain) run(kind MessageKind, env *Envelope, reply ReplyFunc, terminal func()) {
	var i int
	var step func()
	step = func() {
		if i >= len(c.fns) {
			terminal()
			return
		}
		fn := c.fns[i]
		i++
		fn(kind, env, reply, step)
	}
	step()
}
