package actor

import "github.com/nyxmesh/container/mailbox"

// Handler processes one inbound Request hosted by a PROCESS-scoped
// actor. It must eventually call ctx.Reply, unless the request was sent
// fire-and-forget (in which case Reply is a no-op).
type Handler func(ctx *Context)

// processActor is the runtime for one ScopeProcess actor: a mailbox and
// a single dispatch goroutine draining it, with panic recovery reported
// to the container's failure subscribers.
type processActor struct {
	id        string
	handler   Handler
	mb        *mailbox.Mailbox
	container *Container
	log       Logger
}

// requestEnvelope is the mailbox payload for one queued inbound
// request: the request itself plus the reply closure the container
// built for it (already past REQ_IN middleware).
type requestEnvelope struct {
	req   *Request
	reply ReplyFunc
}

func newProcessActor(id string, handler Handler, container *Container, opts mailbox.Options, log Logger) *processActor {
	return &processActor{
		id:        id,
		handler:   handler,
		mb:        mailbox.New(opts),
		container: container,
		log:       log,
	}
}

func (p *processActor) start() { go p.loop() }

func (p *processActor) stop() { p.mb.Close() }

func (p *processActor) loop() {
	for p.mb.Wait() {
		for {
			env, ok := p.mb.Pop()
			if !ok {
				break
			}
			p.dispatch(env)
		}
	}
}

func (p *processActor) dispatch(env mailbox.Envelope) {
	re, ok := env.Payload.(*requestEnvelope)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("actor handler panicked", "aid", p.id, "panic", r)
			p.container.notifyFailure(p.id, r)
		}
	}()
	ctx := &Context{container: p.container, self: p, req: re.req, reply: re.reply}
	p.handler(ctx)
}

// deliverRequest queues req for this actor's dispatch loop. Requests
// carry no priority distinction of their own in this module (unlike the
// teacher's urgent/normal split, which existed to prioritize responses
// over new work) since responses are resolved directly against the
// container's correlation table and never pass through an actor's
// mailbox.
func (p *processActor) deliverRequest(req *Request, reply ReplyFunc) {
	_ = p.mb.Push(mailbox.Envelope{Payload: &requestEnvelope{req: req, reply: reply}})
}
