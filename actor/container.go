package actor

import (
	"errors"
	"sync"
	"time"

	"github.com/nyxmesh/container/mailbox"
)

// containerState tracks the start/stop lifecycle:
// idle -> starting -> started -> stopping -> idle.
type containerState uint32

const (
	stateIdle containerState = iota
	stateStarting
	stateStarted
	stateStopping
)

const (
	// defaultTimeout is the effective deadline for a Send that provides a
	// callback but no explicit timeout.
	defaultTimeout = 30 * time.Second
	// maxSendTimeout is the Timeout stamped on a fire-and-forget Send (no
	// callback, no explicit timeout). Such a request has no correlation
	// entry, so a drop is never retried and no search is run for it.
	maxSendTimeout         = 5 * time.Minute
	defaultRetryDelay      = 10 * time.Millisecond
	defaultResearchTimeout = 2 * time.Second
)

// pendingRequest is one row of the correlation table: the original
// request (kept with its caller-facing bare `To`, never overwritten by a
// resolved full AID, so retry-on-drop can re-run Registry.Pick against
// the same target every attempt), its callback, and the
// absolute-deadline timer that fires TIMEOUT independent of how many
// drop-retries have happened in between.
type pendingRequest struct {
	origReq *Request
	cb      func(*ErrInfo, *Response)
	timer   *time.Timer
}

// startQueueEntry is one row of the starting queue: actors registered
// via AddActor before Start completes are held here and spawned once
// the container transitions to started.
type startQueueEntry struct {
	id      string
	handler Handler
	opts    mailbox.Options
}

// Container is the process-local runtime facade: it owns the registry,
// the two transports, discovery, the correlation table, and the
// middleware chain, and exposes Start/Stop/AddActor/RemoveActor/Send/
// Use/Set, each piece of state guarded by its own targeted mutex.
// Requests use a callback-based Send with retry-on-drop: onDrop and the
// DROPPED -> RESOLVING transition build on a time.AfterFunc-driven
// timeout, extended with a second time.AfterFunc-driven retry armed by
// the transport's drop callback.
type Container struct {
	id      string
	netInfo NetInfo

	registry  *Registry
	validator SchemaValidator
	log       Logger
	metrics   *Metrics
	limiter   *TokenBucket

	inproc *inprocTransport
	remote *remoteTransport
	disc   *Discovery

	reqOut, reqIn, resOut, resIn middlewareChain

	corrMu       sync.Mutex
	correlations map[string]*pendingRequest

	breakerMu sync.Mutex
	breakers  map[string]*CircuitBreaker

	failMu   sync.Mutex
	failSubs []func(aid string, r any)

	stateMu sync.Mutex
	state   containerState
	queue   []startQueueEntry

	retryDelay      time.Duration
	researchTimeout time.Duration
	remoteAddr      string
	ipOverride      string
	discoveryAddr   string
	discoveryPort   int
	discoverySeeds  []string
}

// NewContainer creates an unstarted container identified by id (a fresh
// container id is minted via google/uuid if id is empty). Request,
// response, and start-param validation is on by default, against the
// embedded schemas in schema.go; Set("schemaValidator", ...) replaces
// it.
func NewContainer(id string) *Container {
	if id == "" {
		id = newContainerID()
	}
	return &Container{
		id:              id,
		registry:        NewRegistry(),
		validator:       defaultValidator,
		log:             noopLogger{},
		correlations:    make(map[string]*pendingRequest),
		breakers:        make(map[string]*CircuitBreaker),
		retryDelay:      defaultRetryDelay,
		researchTimeout: defaultResearchTimeout,
	}
}

// Set applies one of the container's named tunables. Every branch
// compares key with switch/case, never assignment.
func (c *Container) Set(key string, value any) {
	switch key {
	case "logger":
		if l, ok := value.(Logger); ok {
			c.log = l
		}
	case "schemaValidator":
		if v, ok := value.(SchemaValidator); ok {
			c.validator = v
		}
	case "stats":
		if s, ok := value.(string); ok && s == "on" && c.metrics == nil {
			c.metrics = NewMetrics()
		}
	case "rateLimit":
		if qps, ok := value.(int64); ok {
			if c.limiter == nil {
				c.limiter = NewTokenBucket(qps, 0)
			} else {
				c.limiter.SetQPS(qps)
			}
		}
	case "retryDelay":
		if d, ok := value.(time.Duration); ok {
			c.retryDelay = d
		}
	case "researchTimeout":
		if d, ok := value.(time.Duration); ok {
			c.researchTimeout = d
		}
	case "remoteAddr":
		if a, ok := value.(string); ok {
			c.remoteAddr = a
		}
	case "ip":
		if a, ok := value.(string); ok {
			c.ipOverride = a
		}
	case "discoveryAddr":
		if a, ok := value.(string); ok {
			c.discoveryAddr = a
		}
	case "discoveryPort":
		if p, ok := value.(int); ok {
			c.discoveryPort = p
		}
	case "discoveryAddrs":
		if seeds, ok := value.([]string); ok {
			c.discoverySeeds = seeds
			if c.disc != nil {
				_ = c.disc.SetSeeds(seeds)
			}
		}
	}
}

// Use registers mw at the given pipeline station.
func (c *Container) Use(kind MessageKind, mw MiddlewareFunc) {
	switch kind {
	case ReqOut:
		c.reqOut.use(mw)
	case ReqIn:
		c.reqIn.use(mw)
	case ResOut:
		c.resOut.use(mw)
	case ResIn:
		c.resIn.use(mw)
	}
}

// SubscribeFailures registers fn to be called whenever a hosted actor's
// handler panics; the supervisor uses this as its restart hook.
func (c *Container) SubscribeFailures(fn func(aid string, r any)) {
	c.failMu.Lock()
	c.failSubs = append(c.failSubs, fn)
	c.failMu.Unlock()
}

func (c *Container) notifyFailure(aid string, r any) {
	c.failMu.Lock()
	subs := append([]func(string, any){}, c.failSubs...)
	c.failMu.Unlock()
	for _, fn := range subs {
		fn(aid, r)
	}
}

// Start transitions the container from idle to started. params is
// validated against the startParams schema before anything else
// happens (a TECHERR return, container left idle, on failure);
// recognised keys are "ip" (override the resolved local IP in
// NetInfo), "discoveryAddr", "discoveryPort", and "stats", applied via
// the same Set switch a caller could use directly. Start then stands
// up the inproc transport, optionally the remote transport and
// discovery agent (if remoteAddr/discoveryAddr were configured), and
// drains the starting queue accumulated by any AddActor calls made
// before Start.
func (c *Container) Start(params map[string]any) error {
	c.stateMu.Lock()
	if c.state != stateIdle {
		c.stateMu.Unlock()
		c.log.Warn("start ignored, container already started or in transition", "id", c.id)
		return ErrAlreadyStarted
	}
	c.state = stateStarting
	c.stateMu.Unlock()

	if params != nil {
		if err := c.validator.Validate("startParams", params); err != nil {
			c.stateMu.Lock()
			c.state = stateIdle
			c.stateMu.Unlock()
			return techErr(err)
		}
		for k, v := range params {
			c.Set(k, v)
		}
	}

	ip := localIP()
	if c.ipOverride != "" {
		ip = c.ipOverride
	}
	c.netInfo = NetInfo{ID: c.id, IP: ip, PID: processPID()}
	c.inproc = newInprocTransport(c)

	if c.remoteAddr != "" || c.discoveryAddr != "" {
		rt, err := newRemoteTransport(c.remoteAddr, c.registry, c, c, c.log)
		if err != nil {
			c.stateMu.Lock()
			c.state = stateIdle
			c.stateMu.Unlock()
			return err
		}
		c.remote = rt
		c.netInfo.Port = addrPort(rt.Addr())
	}

	if c.discoveryAddr != "" {
		self := ContainerRef{ID: c.id, NetInfo: c.netInfo}
		disc, err := NewDiscovery(c.discoveryAddr, c.discoveryPort, self, c.registry, c.discoverySeeds, c.log)
		if err != nil {
			c.stateMu.Lock()
			c.state = stateIdle
			c.stateMu.Unlock()
			return err
		}
		disc.researchTTL = c.researchTimeout
		c.disc = disc
	}

	c.stateMu.Lock()
	queued := c.queue
	c.queue = nil
	c.state = stateStarted
	c.stateMu.Unlock()

	for _, e := range queued {
		c.spawn(e.id, e.handler, e.opts)
	}
	if c.metrics != nil {
		c.metrics.MarkStart()
	}
	c.log.Info("container started", "id", c.id, "addr", c.netInfo.IP)
	return nil
}

// Stop tears down discovery, the remote transport, and every hosted
// actor's mailbox, and returns the container to idle.
func (c *Container) Stop() error {
	c.stateMu.Lock()
	if c.state != stateStarted {
		c.stateMu.Unlock()
		c.log.Warn("stop ignored, container not running", "id", c.id)
		return ErrNotRunning
	}
	c.state = stateStopping
	c.stateMu.Unlock()

	if c.disc != nil {
		_ = c.disc.Stop()
		c.disc = nil
	}
	if c.remote != nil {
		c.remote.Stop()
		c.remote = nil
	}
	for _, aid := range c.registry.Snapshot() {
		scope := ScopeProcess
		if entry, ok := c.registry.Get(aid, &scope); ok && entry.handler != nil {
			entry.handler.stop()
		}
	}

	c.stateMu.Lock()
	c.state = stateIdle
	c.stateMu.Unlock()
	c.log.Info("container stopped", "id", c.id)
	return nil
}

// AddActor registers a new PROCESS-scoped actor under aid. aid must be
// a valid identifier (see ValidAID); if bare, a resource is
// auto-assigned. An invalid aid is rejected with a TECHERR *ErrInfo and
// makes no state change. Called before Start, the actor is held on the
// starting queue and spawned once Start runs; called after Start, it is
// spawned immediately.
func (c *Container) AddActor(aid string, handler Handler, opts mailbox.Options) (string, error) {
	if !ValidAID(aid) {
		return "", techErr(ErrInvalidAID)
	}
	full := qualify(aid)
	c.stateMu.Lock()
	if c.state != stateStarted {
		c.queue = append(c.queue, startQueueEntry{id: full, handler: handler, opts: opts})
		c.stateMu.Unlock()
		return full, nil
	}
	c.stateMu.Unlock()
	c.spawn(full, handler, opts)
	return full, nil
}

func (c *Container) spawn(id string, handler Handler, opts mailbox.Options) {
	pa := newProcessActor(id, handler, c, opts, c.log)
	c.registry.Add(&actorEntry{id: id, scope: ScopeProcess, container: ContainerRef{ID: c.id, NetInfo: c.netInfo}, handler: pa})
	pa.start()
	if c.disc != nil {
		c.disc.notifyAnnounce()
	}
}

// RemoveActor stops and deregisters the PROCESS-scoped actor hosted
// under aid. An invalid aid is rejected with a TECHERR *ErrInfo and
// makes no state change. Removing an aid that is not hosted here (or
// was never started) is otherwise a no-op, matching the registry's own
// idempotent Remove.
func (c *Container) RemoveActor(aid string) error {
	if !ValidAID(aid) {
		return techErr(ErrInvalidAID)
	}
	scope := ScopeProcess
	entry, ok := c.registry.Get(aid, &scope)
	if !ok {
		return nil
	}
	entry.handler.stop()
	c.registry.Remove(aid, ScopeProcess)
	if c.disc != nil {
		c.disc.notifyAnnounce()
	}
	return nil
}

// Send issues a request from outside any actor context, mirroring the
// from/to shape of Context.Send: from should normally be an AID already
// registered with this container (or "" for a genuinely anonymous
// caller) so a hosted responder can route its reply back. to must be a
// valid AID; a non-empty from must also be valid. Either failing is
// reported to cb as a TECHERR with no request sent. override normalizes
// the optional timeout/callback/headers argument; cb is nil for
// fire-and-forget.
func (c *Container) Send(from, to string, content any, override *SendOverride, cb func(*ErrInfo, *Response)) {
	c.sendFrom(from, to, content, override, cb)
}

func (c *Container) sendFrom(from, to string, content any, override *SendOverride, cb func(*ErrInfo, *Response)) {
	var (
		explicitTimeout time.Duration
		headers         map[string]any
	)
	if override != nil {
		explicitTimeout = override.Timeout
		if override.CB != nil {
			cb = override.CB
		}
		headers = override.Headers
	}
	if !ValidAID(to) || (from != "" && !ValidAID(from)) {
		if cb != nil {
			cb(techErr(ErrInvalidAID), nil)
		}
		return
	}
	timeout := explicitTimeout
	if timeout <= 0 {
		if cb != nil {
			timeout = defaultTimeout
		} else {
			timeout = maxSendTimeout
		}
	}
	req := &Request{
		ID:      newCorrelationID(),
		From:    from,
		To:      to,
		Content: content,
		Headers: headers,
		Date:    time.Now().UnixMilli(),
		Timeout: timeout,
		CB:      cb != nil,
	}
	if err := c.validator.Validate("request", req); err != nil {
		if cb != nil {
			cb(techErr(err), nil)
		}
		return
	}
	if c.limiter != nil && !c.limiter.Allow(1) {
		if cb != nil {
			cb(techErr(ErrCircuitOpen), nil)
		}
		return
	}

	if cb != nil {
		c.registerCorrelation(req, cb)
	}
	env := &Envelope{kind: EnvelopeRequest, req: req}
	c.reqOut.run(ReqOut, env, nil, func() {
		c.route(req)
	})
}

func (c *Container) registerCorrelation(req *Request, cb func(*ErrInfo, *Response)) {
	remaining := time.Until(req.deadline())
	if remaining < 0 {
		remaining = 0
	}
	p := &pendingRequest{origReq: req, cb: cb}
	p.timer = time.AfterFunc(remaining, func() { c.onTimeout(req.ID) })
	c.corrMu.Lock()
	c.correlations[req.ID] = p
	c.corrMu.Unlock()
}

func (c *Container) onTimeout(id string) {
	c.corrMu.Lock()
	p, ok := c.correlations[id]
	if ok {
		delete(c.correlations, id)
	}
	c.corrMu.Unlock()
	if ok {
		p.cb(timeoutErr(), nil)
	}
}

func (c *Container) failCorrelation(id string, errInfo *ErrInfo) {
	c.corrMu.Lock()
	p, ok := c.correlations[id]
	if ok {
		delete(c.correlations, id)
	}
	c.corrMu.Unlock()
	if ok {
		p.timer.Stop()
		p.cb(errInfo, nil)
	}
}

// route resolves req.To (as it stands in the correlation table, always
// the caller's original bare-or-full id) to a concrete destination via
// Registry.Pick and hands the request to whichever transport reaches
// it.
func (c *Container) route(req *Request) {
	full, scope, ok := c.registry.Pick(req.To)
	if !ok {
		if req.CB {
			go c.searchThenRoute(req)
		}
		return
	}
	c.deliverVia(req, full, scope)
}

func (c *Container) searchThenRoute(req *Request) {
	if c.disc == nil {
		c.failCorrelation(req.ID, notFoundErr())
		return
	}
	full, ref, ok := c.disc.search(BareOf(req.To))
	if !ok {
		c.failCorrelation(req.ID, notFoundErr())
		return
	}
	scope := ScopeRemote
	if ref.NetInfo.IP == c.netInfo.IP {
		scope = ScopeLocal
	}
	c.registry.Add(&actorEntry{id: full, scope: scope, container: ref})
	c.deliverVia(req, full, scope)
}

func (c *Container) deliverVia(req *Request, full string, scope Scope) {
	breaker := c.breakerFor(BareOf(full))
	if !breaker.Allow(time.Now()) {
		c.onDrop(req, ErrCircuitOpen)
		return
	}
	wire := *req
	wire.To = full
	t := c.transportFor(scope)
	if t == nil {
		breaker.OnFailure(time.Now())
		c.onDrop(req, errNoTransport)
		return
	}
	if err := t.SendRequest(&wire); err != nil {
		breaker.OnFailure(time.Now())
		c.onDrop(req, err)
		return
	}
	breaker.OnSuccess()
	if c.metrics != nil {
		c.metrics.IncOut()
	}
}

var errNoTransport = errors.New("actor: no transport for scope")

func (c *Container) transportFor(scope Scope) Transport {
	if scope == ScopeProcess {
		return c.inproc
	}
	return c.remote
}

func (c *Container) breakerFor(bare string) *CircuitBreaker {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	b, ok := c.breakers[bare]
	if !ok {
		b = NewCircuitBreaker(0, 0)
		c.breakers[bare] = b
	}
	return b
}

// onDrop implements dropNotifier: it is called by a transport whenever
// it could not deliver req. A request past its own absolute deadline is
// resolved DROPPED immediately; otherwise the request is re-routed
// after retryDelay, the DROPPED -> RESOLVING transition.
func (c *Container) onDrop(req *Request, cause error) {
	c.corrMu.Lock()
	p, ok := c.correlations[req.ID]
	c.corrMu.Unlock()
	if !ok {
		return
	}
	if p.origReq.expired(time.Now()) {
		c.failCorrelation(req.ID, droppedErr(cause))
		return
	}
	c.log.Debug("request dropped, will retry", "id", req.ID, "to", req.To, "cause", cause)
	time.AfterFunc(c.retryDelay, func() { c.route(p.origReq) })
}

// onReq implements inboundHandler: it is called by a transport when a
// Request addressed to an actor hosted here has arrived, whether from
// inproc's deferred timer goroutine or off the network (remote).
func (c *Container) onReq(req *Request, from Transport) {
	reply := func(errInfo *ErrInfo, content any, headers map[string]any) {
		c.respond(req, errInfo, content, headers)
	}
	env := &Envelope{kind: EnvelopeRequest, req: req}
	c.reqIn.run(ReqIn, env, reply, func() {
		if c.metrics != nil {
			c.metrics.IncIn()
		}
		scope := ScopeProcess
		entry, ok := c.registry.Get(req.To, &scope)
		if !ok {
			reply(notFoundErr(), nil, nil)
			return
		}
		entry.handler.deliverRequest(req, reply)
	})
}

// respond builds the Response for req and runs it through RES_OUT
// before handing it to whichever transport reaches req.From. A RES_OUT
// middleware can short-circuit delivery by calling reply with a
// replacement error/content/headers instead of calling next; either way
// the message that actually goes out is handed to sendResponse. Response
// Date always comes from req.Date, in every branch, never the response's
// own send time.
func (c *Container) respond(req *Request, errInfo *ErrInfo, content any, headers map[string]any) {
	if !req.CB {
		return
	}
	res := &Response{ID: req.ID, From: req.To, To: req.From, Err: errInfo, Content: content, Headers: headers, Date: req.Date}
	reply := func(errInfo *ErrInfo, content any, headers map[string]any) {
		c.sendResponse(&Response{ID: res.ID, From: res.From, To: res.To, Err: errInfo, Content: content, Headers: headers, Date: res.Date})
	}
	env := &Envelope{kind: EnvelopeResponse, res: res}
	c.resOut.run(ResOut, env, reply, func() {
		c.sendResponse(res)
	})
}

// sendResponse delivers res back to whatever originated the request it
// completes. A response whose id still has a live correlation entry on
// this container originated here, whether or not its From names an AID
// this container's registry can resolve (a bare container-level Send
// has no From at all); such responses complete the correlation
// directly rather than round-tripping through a transport. Only a
// response whose origin is some other container falls through to
// registry-based routing.
func (c *Container) sendResponse(res *Response) {
	c.corrMu.Lock()
	_, localOrigin := c.correlations[res.ID]
	c.corrMu.Unlock()
	if localOrigin {
		c.onRes(res)
		return
	}
	entry, ok := c.registry.Get(res.To, nil)
	if !ok {
		c.log.Warn("cannot route response, unknown destination", "to", res.To)
		return
	}
	t := c.transportFor(entry.scope)
	if t == nil {
		return
	}
	_ = t.SendResponse(res)
}

// onRes implements inboundHandler: it is called by a transport when a
// Response completing one of this container's own pending requests has
// arrived.
func (c *Container) onRes(res *Response) {
	if err := c.validator.Validate("response", res); err != nil {
		c.log.Warn("dropping malformed response", "id", res.ID, "err", err)
		return
	}
	env := &Envelope{kind: EnvelopeResponse, res: res}
	c.resIn.run(ResIn, env, nil, func() {
		c.completeCorrelation(res)
	})
}

func (c *Container) completeCorrelation(res *Response) {
	c.corrMu.Lock()
	p, ok := c.correlations[res.ID]
	if ok {
		delete(c.correlations, res.ID)
	}
	c.corrMu.Unlock()
	if !ok {
		return
	}
	p.timer.Stop()
	p.cb(res.Err, res)
}
