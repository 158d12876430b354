package sfu

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const wireVersion = "3.9.9"

type WorkerLogLevel string

const (
	WorkerLogLevelDebug WorkerLogLevel = "debug"
	WorkerLogLevelWarn  WorkerLogLevel = "warn"
	WorkerLogLevelError WorkerLogLevel = "error"
	WorkerLogLevelNone  WorkerLogLevel = "none"
)

type WorkerLogTag string

const (
	WorkerLogTagInfo      WorkerLogTag = "info"
	WorkerLogTagICE       WorkerLogTag = "ice"
	WorkerLogTagDTLS      WorkerLogTag = "dtls"
	WorkerLogTagRTP       WorkerLogTag = "rtp"
	WorkerLogTagSRTP      WorkerLogTag = "srtp"
	WorkerLogTagRTCP      WorkerLogTag = "rtcp"
	WorkerLogTagRTX       WorkerLogTag = "rtx"
	WorkerLogTagBWE       WorkerLogTag = "bwe"
	WorkerLogTagScore     WorkerLogTag = "score"
	WorkerLogTagSimulcast WorkerLogTag = "simulcast"
	WorkerLogTagSVC       WorkerLogTag = "svc"
	WorkerLogTagSCTP      WorkerLogTag = "sctp"
	WorkerLogTagMessage   WorkerLogTag = "message"
)

// WorkerSettings configures a spawned SFU worker process (§6.1 "Spawn
// environment"). Parsing these from a config file/CLI is explicitly
// out of scope (§1); callers build the struct directly.
type WorkerSettings struct {
	LogLevel            WorkerLogLevel
	LogTags             []WorkerLogTag
	RTCMinPort          uint16
	RTCMaxPort          uint16
	DTLSCertificateFile string
	DTLSPrivateKeyFile  string
}

func (w WorkerSettings) args() []string {
	args := []string{fmt.Sprintf("--logLevel=%s", w.LogLevel)}
	for _, tag := range w.LogTags {
		args = append(args, fmt.Sprintf("--logTags=%s", tag))
	}
	args = append(args,
		fmt.Sprintf("--rtcMinPort=%d", w.RTCMinPort),
		fmt.Sprintf("--rtcMaxPort=%d", w.RTCMaxPort),
	)
	if w.DTLSCertificateFile != "" && w.DTLSPrivateKeyFile != "" {
		args = append(args,
			"--dtlsCertificateFile="+w.DTLSCertificateFile,
			"--dtlsPrivateKeyFile="+w.DTLSPrivateKeyFile,
		)
	}
	return args
}

func defaultWorkerSettings() WorkerSettings {
	return WorkerSettings{
		LogLevel:   WorkerLogLevelError,
		RTCMinPort: 10000,
		RTCMaxPort: 59999,
	}
}

// WorkerBin is the path to the native SFU worker binary. It is the one
// piece of process-spawn configuration the host must supply; the
// worker's own internals are out of scope (§1).
var WorkerBin = os.Getenv("MEDIASERVER_WORKER_BIN")

func init() {
	if WorkerBin == "" {
		WorkerBin = "/usr/local/lib/mediaserver/worker"
	}
}

// Worker owns one native SFU child process and the pair of Channels
// multiplexed over its four IPC pipes (§4.1 Process model). It is not
// itself an addressable Resource (the worker protocol never targets a
// worker by uuid); it owns Routers, which are.
type Worker struct {
	logger Logger
	bus    *EventBus

	child *exec.Cmd
	pid   int

	channel        *Channel
	payloadChannel *PayloadChannel

	closed atomic.Bool

	mu        sync.Mutex
	routers   map[string]*Router
	zeroTime  time.Time
	loadScore int32

	registry *Registry
}

// NewWorker spawns a native SFU worker process and wires its two IPC
// channel pairs. bus receives WORKER_LAUNCHED/WORKER_SHUTDOWN and every
// event the worker emits for resources it owns; registry is the
// process-wide Resource Registry Routers created by this worker are
// added to.
func NewWorker(bus *EventBus, registry *Registry, settings WorkerSettings) (*Worker, error) {
	logger := NewLogger("Worker")

	producerPair, err := createSocketPair()
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}
	consumerPair, err := createSocketPair()
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}
	payloadProducerPair, err := createSocketPair()
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}
	payloadConsumerPair, err := createSocketPair()
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}

	producerConn, err := fileToConn(producerPair[0])
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}
	consumerConn, err := fileToConn(consumerPair[0])
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}
	payloadProducerConn, err := fileToConn(payloadProducerPair[0])
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}
	payloadConsumerConn, err := fileToConn(payloadConsumerPair[0])
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}

	child := exec.Command(WorkerBin, settings.args()...)
	// fd 3,4,5,6: command-to-worker, reply-from-worker, payload-to-worker,
	// payload-from-worker (§4.1 Process model).
	child.ExtraFiles = []*os.File{producerPair[1], consumerPair[1], payloadProducerPair[1], payloadConsumerPair[1]}
	child.Env = []string{"MEDIASOUP_VERSION=" + wireVersion}

	stderr, err := child.StderrPipe()
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}
	stdout, err := child.StdoutPipe()
	if err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}
	if err := child.Start(); err != nil {
		return nil, NewError(ErrWorkerSpawn, err.Error())
	}

	pid := child.Process.Pid
	workerLogger := NewLogger(fmt.Sprintf("worker[pid:%d]", pid))

	channel := newChannel(producerConn, consumerConn, pid)
	payloadChannel := newPayloadChannel(payloadProducerConn, payloadConsumerConn)

	w := &Worker{
		logger:         logger,
		bus:            bus,
		child:          child,
		pid:            pid,
		channel:        channel,
		payloadChannel: payloadChannel,
		routers:        make(map[string]*Router),
		registry:       registry,
		zeroTime:       time.Now(),
	}

	channel.onLog = func(tag byte, line string) {
		switch tag {
		case 'D':
			workerLogger.Debug("%s", line)
		case 'W':
			workerLogger.Warn("%s", line)
		case 'E', 'X':
			workerLogger.Error("%s", line)
		}
	}
	channel.onNotification = func(event, targetID string, data []byte) {
		w.dispatchWorkerEvent(event, targetID, data)
	}
	channel.onWorkerExit = w.handleWorkerExit
	payloadChannel.onWorkerExit = w.handleWorkerExit
	payloadChannel.onPayload = func(desc payloadDescriptor, payload []byte) {
		w.dispatchWorkerPayload(desc, payload)
	}

	go func() {
		r := bufio.NewReader(stderr)
		for {
			line, _, err := r.ReadLine()
			if err != nil {
				return
			}
			workerLogger.Error("(stderr) %s", line)
		}
	}()
	go func() {
		r := bufio.NewReader(stdout)
		for {
			line, _, err := r.ReadLine()
			if err != nil {
				return
			}
			workerLogger.Debug("(stdout) %s", line)
		}
	}()
	go child.Wait()

	bus.installWorkerNotificationRouter(registry)
	bus.Emit(Event{Kind: EventWorkerLaunched, Data: w})

	return w, nil
}

// dispatchWorkerEvent republishes a worker notification on the Event
// Bus tagged with the owning resource's local id, resolved via the
// Registry. Resource types (Router/Transport/Producer/Consumer)
// register Event Bus handlers filtering on their own uuid/local id,
// rather than reading the Channel directly — this is what keeps event
// handlers off the I/O goroutine (§4.1 Concurrency contract).
func (w *Worker) dispatchWorkerEvent(event, targetID string, data []byte) {
	res, ok := w.registry.LockedLookupByUUID(targetID)
	var resourceID uint32
	if ok {
		resourceID = res.LocalID()
		res.Unref()
	}
	w.bus.Emit(Event{
		Kind:       EventKind("worker:" + event),
		ResourceID: resourceID,
		Data:       rawWorkerEvent{targetID: targetID, raw: data},
	})
}

type rawWorkerEvent struct {
	targetID string
	raw      []byte
}

func (w *Worker) dispatchWorkerPayload(desc payloadDescriptor, payload []byte) {
	w.bus.Emit(Event{Kind: EventPayload, Data: workerPayloadEvent{desc: desc, payload: payload}})
}

type workerPayloadEvent struct {
	desc    payloadDescriptor
	payload []byte
}

// handleWorkerExit cascades a worker crash: every live Router is
// closed (which cascades to its Transports/Observers/Room per
// invariant 5), and WORKER_SHUTDOWN is emitted (§4.1 Failure
// semantics, scenario 4).
func (w *Worker) handleWorkerExit() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.logger.Error("worker process died unexpectedly [pid:%d]", w.pid)

	w.mu.Lock()
	routers := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	w.routers = make(map[string]*Router)
	w.mu.Unlock()

	w.bus.Emit(Event{Kind: EventWorkerShutdown, Data: w})

	for _, r := range routers {
		r.workerClosed()
	}
}

func (w *Worker) Pid() int     { return w.pid }
func (w *Worker) Closed() bool { return w.closed.Load() }

// LoadScore is the heuristic the Load Balancer uses to pick a worker
// for a new Router (§4.3).
func (w *Worker) LoadScore() int32 {
	return atomic.LoadInt32(&w.loadScore)
}

// IncLoad and DecLoad are called by callers (Router/Transport creation
// paths) when a long-lived resource binds to / unbinds from this
// worker. Reaching zero records zeroTime for the Load Balancer's idle
// scan (§4.3).
func (w *Worker) IncLoad() {
	atomic.AddInt32(&w.loadScore, 1)
}

func (w *Worker) DecLoad() {
	if atomic.AddInt32(&w.loadScore, -1) == 0 {
		w.mu.Lock()
		w.zeroTime = time.Now()
		w.mu.Unlock()
	}
}

func (w *Worker) ZeroTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.zeroTime
}

// Close kills the worker process and cascades teardown to every
// Router it owns. Shutdown is cooperative: SIGTERM first, SIGKILL
// after a 10-second grace period (§4.1 Failure semantics).
func (w *Worker) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.logger.Debug("close()")

	if w.child.Process != nil {
		w.child.Process.Signal(syscall.SIGTERM)
		go w.escalateKill()
	}

	w.channel.Close()
	w.payloadChannel.Close()

	w.mu.Lock()
	routers := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	w.routers = make(map[string]*Router)
	w.mu.Unlock()

	for _, r := range routers {
		r.workerClosed()
	}

	w.bus.Emit(Event{Kind: EventWorkerShutdown, Data: w})
}

// escalateKill sends SIGKILL if the process has not exited within the
// 10-second grace period.
func (w *Worker) escalateKill() {
	timer := time.NewTimer(10 * time.Second)
	defer timer.Stop()
	done := make(chan struct{})
	go func() {
		w.child.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-timer.C:
		if w.child.Process != nil {
			w.child.Process.Signal(syscall.SIGKILL)
		}
	}
}

func (w *Worker) Dump() DumpResult {
	resp := w.channel.Request("worker.dump", internalData{})
	return NewDumpResult(resp.Data(), resp.Err())
}

func (w *Worker) UpdateSettings(logLevel WorkerLogLevel, logTags []WorkerLogTag) error {
	return w.channel.Request("worker.updateSettings", internalData{}, H{
		"logLevel": logLevel,
		"logTags":  logTags,
	}).Err()
}

// CreateRouter spawns a Router on this worker (§4.4.1). The router's
// rtp_capabilities are computed from mediaCodecs via the RTP
// Capability Engine (§4.5) before the router becomes visible to other
// goroutines, per the §3 lifecycle summary.
func (w *Worker) CreateRouter(mediaCodecs []RtpCodecCapability) (*Router, error) {
	w.logger.Debug("createRouter()")

	internal := internalData{RouterId: newUUID()}
	if resp := w.channel.Request("worker.createRouter", internal); resp.Err() != nil {
		return nil, resp.Err()
	}

	rtpCapabilities, err := GenerateRouterRtpCapabilities(mediaCodecs)
	if err != nil {
		return nil, err
	}

	router := newRouter(routerParams{
		internal:        internal,
		rtpCapabilities: rtpCapabilities,
		channel:         w.channel,
		payloadChannel:  w.payloadChannel,
		bus:             w.bus,
		registry:        w.registry,
		worker:          w,
	})

	w.registry.Add(router)
	w.mu.Lock()
	w.routers[internal.RouterId] = router
	w.mu.Unlock()

	w.bus.Emit(Event{Kind: EventRouterCreated, ResourceID: router.LocalID(), Data: router})

	return router, nil
}

func (w *Worker) removeRouter(uuid string) {
	w.mu.Lock()
	delete(w.routers, uuid)
	w.mu.Unlock()
}

func createSocketPair() (file [2]*os.File, err error) {
	fd, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM, 0)
	if err != nil {
		return
	}
	file[0] = os.NewFile(uintptr(fd[0]), "")
	file[1] = os.NewFile(uintptr(fd[1]), "")
	return
}

func fileToConn(file *os.File) (net.Conn, error) {
	defer file.Close()
	return net.FileConn(file)
}
