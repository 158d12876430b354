package sfu

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
)

// fakeWorkerChannel wires a *Channel to an in-process goroutine that
// stands in for the native SFU worker (out of scope per §1): it acks
// every command except those named in ignoreMethods, which are left
// pending so tests can exercise the WORKER_EXIT completion path.
//
// kill simulates the worker process dying: it closes both pipe ends,
// which surfaces as read EOF on the Channel's reply pipe and drives it
// through the same handleWorkerExit path a real worker crash would
// (§4.1 Failure semantics, §8 scenario 4).
type fakeWorkerChannel struct {
	channel *Channel
	kill    func()
}

func newFakeWorkerChannel(t *testing.T, ignoreMethods map[string]bool) fakeWorkerChannel {
	t.Helper()

	cmdClient, cmdServer := net.Pipe()
	replyServer, replyClient := net.Pipe()

	go func() {
		reader := newFrameReader(cmdServer)
		writer := newFrameWriter(replyServer)
		for {
			frame, err := reader.ReadFrame()
			if err != nil {
				return
			}
			var cmd struct {
				ID     uint32 `json:"id"`
				Method string `json:"method"`
			}
			if json.Unmarshal(frame, &cmd) != nil {
				continue
			}
			if ignoreMethods[cmd.Method] {
				continue
			}
			reply, err := json.Marshal(map[string]interface{}{"id": cmd.ID, "accepted": true})
			if err != nil {
				continue
			}
			if writer.WriteFrame(reply) != nil {
				return
			}
		}
	}()

	channel := newChannel(cmdClient, replyClient, 99999)
	t.Cleanup(func() {
		cmdServer.Close()
		replyServer.Close()
	})

	return fakeWorkerChannel{
		channel: channel,
		kill: func() {
			cmdServer.Close()
			replyServer.Close()
		},
	}
}

// opusConsumable/opusClientCaps give Transport.Consume a codec pair
// that synthesizeConsumerRtpParameters accepts, mirroring scenario 1's
// fixture in consumer_params_test.go.
func opusConsumable() RtpParameters {
	return RtpParameters{
		Codecs: []RtpCodecParameters{
			{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2},
		},
	}
}

func opusClientCaps() RtpCapabilities {
	return RtpCapabilities{
		Codecs: []RtpCodecCapability{
			{Kind: MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		},
	}
}

// TestProducerCloseCascadesToConsumers is §8 scenario 3: a Producer
// with two Consumers on two different Transports. Closing the
// Producer must emit PRODUCER_CLOSED exactly once, CONSUMER_CLOSED for
// both Consumers, and leave the registry with no entry for any of the
// three (invariant 6, invariant 3).
func TestProducerCloseCascadesToConsumers(t *testing.T) {
	registry, bus := newTestHarness(t)
	fw := newFakeWorkerChannel(t, nil)

	router := newRouter(routerParams{
		internal: internalData{RouterId: newUUID()},
		channel:  fw.channel,
		bus:      bus,
		registry: registry,
	})
	registry.Add(router)

	sourceTransport, err := router.CreateDirectTransport(DirectTransportOptions{})
	if err != nil {
		t.Fatalf("CreateDirectTransport (source): %v", err)
	}
	transportA, err := router.CreateDirectTransport(DirectTransportOptions{})
	if err != nil {
		t.Fatalf("CreateDirectTransport (A): %v", err)
	}
	transportB, err := router.CreateDirectTransport(DirectTransportOptions{})
	if err != nil {
		t.Fatalf("CreateDirectTransport (B): %v", err)
	}

	producer, err := sourceTransport.Produce(ProducerOptions{Kind: MediaKindAudio, RtpParameters: opusConsumable()})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	c1, err := transportA.Consume(producer, opusClientCaps(), false, nil, false)
	if err != nil {
		t.Fatalf("Consume (A): %v", err)
	}
	c2, err := transportB.Consume(producer, opusClientCaps(), false, nil, false)
	if err != nil {
		t.Fatalf("Consume (B): %v", err)
	}

	var mu sync.Mutex
	producerClosedCount := 0
	consumerClosed := map[uint32]int{}
	done := make(chan struct{})
	handlerID := bus.On(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case EventProducerClosed:
			if ev.ResourceID == producer.LocalID() {
				producerClosedCount++
			}
		case EventConsumerClosed:
			consumerClosed[ev.ResourceID]++
		}
		if len(consumerClosed) == 2 && producerClosedCount == 1 {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer bus.Off(handlerID)

	producer.Close()
	<-done
	waitBriefly()

	mu.Lock()
	defer mu.Unlock()
	if producerClosedCount != 1 {
		t.Fatalf("PRODUCER_CLOSED observed %d times, want exactly 1", producerClosedCount)
	}
	if consumerClosed[c1.LocalID()] != 1 {
		t.Fatalf("CONSUMER_CLOSED for c1 observed %d times, want exactly 1", consumerClosed[c1.LocalID()])
	}
	if consumerClosed[c2.LocalID()] != 1 {
		t.Fatalf("CONSUMER_CLOSED for c2 observed %d times, want exactly 1", consumerClosed[c2.LocalID()])
	}

	if _, ok := registry.LockedLookupByUUID(producer.UUID()); ok {
		t.Fatal("producer still resolvable in the registry after close")
	}
	if _, ok := registry.LockedLookupByUUID(c1.UUID()); ok {
		t.Fatal("c1 still resolvable in the registry after close")
	}
	if _, ok := registry.LockedLookupByUUID(c2.UUID()); ok {
		t.Fatal("c2 still resolvable in the registry after close")
	}
}

// TestWorkerExitCascadesResourceTree is §8 scenario 4: killing the
// worker that owns a Router with two Transports, each carrying one
// Producer, must emit WORKER_SHUTDOWN, ROUTER_CLOSED, TRANSPORT_CLOSED
// for both transports, and PRODUCER_CLOSED for both producers.
func TestWorkerExitCascadesResourceTree(t *testing.T) {
	registry, bus := newTestHarness(t)
	fw := newFakeWorkerChannel(t, map[string]bool{"producer.pause": true})

	worker := &Worker{
		logger:   NewLogger("test"),
		bus:      bus,
		channel:  fw.channel,
		routers:  make(map[string]*Router),
		registry: registry,
	}
	fw.channel.onWorkerExit = worker.handleWorkerExit

	router := newRouter(routerParams{
		internal: internalData{RouterId: newUUID()},
		channel:  fw.channel,
		bus:      bus,
		registry: registry,
		worker:   worker,
	})
	registry.Add(router)
	worker.routers[router.internal.RouterId] = router

	t1, err := router.CreateDirectTransport(DirectTransportOptions{})
	if err != nil {
		t.Fatalf("CreateDirectTransport (T1): %v", err)
	}
	t2, err := router.CreateDirectTransport(DirectTransportOptions{})
	if err != nil {
		t.Fatalf("CreateDirectTransport (T2): %v", err)
	}
	p1, err := t1.Produce(ProducerOptions{Kind: MediaKindAudio, RtpParameters: opusConsumable()})
	if err != nil {
		t.Fatalf("Produce (T1): %v", err)
	}
	p2, err := t2.Produce(ProducerOptions{Kind: MediaKindAudio, RtpParameters: opusConsumable()})
	if err != nil {
		t.Fatalf("Produce (T2): %v", err)
	}

	var mu sync.Mutex
	sawWorkerShutdown, sawRouterClosed := false, false
	transportClosed := map[uint32]bool{}
	producerClosed := map[uint32]bool{}
	done := make(chan struct{})
	handlerID := bus.On(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case EventWorkerShutdown:
			sawWorkerShutdown = true
		case EventRouterClosed:
			if ev.ResourceID == router.LocalID() {
				sawRouterClosed = true
			}
		case EventTransportClosed:
			transportClosed[ev.ResourceID] = true
		case EventProducerClosed:
			producerClosed[ev.ResourceID] = true
		}
		if sawWorkerShutdown && sawRouterClosed && len(transportClosed) == 2 && len(producerClosed) == 2 {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer bus.Off(handlerID)

	// Simulate the in-flight command whose reply never arrives because
	// the worker died mid-flight (§5 Cancellation: "A dying worker
	// completes all its in-flight commands with WORKER_EXIT").
	pauseErrCh := make(chan error, 1)
	go func() {
		pauseErrCh <- p1.Pause()
	}()
	waitBriefly()

	fw.kill()

	<-done
	waitBriefly()

	mu.Lock()
	if !sawWorkerShutdown {
		t.Fatal("expected a WORKER_SHUTDOWN event")
	}
	if !sawRouterClosed {
		t.Fatal("expected ROUTER_CLOSED for the owning router")
	}
	if !transportClosed[t1.LocalID()] || !transportClosed[t2.LocalID()] {
		t.Fatal("expected TRANSPORT_CLOSED for both transports")
	}
	if !producerClosed[p1.LocalID()] || !producerClosed[p2.LocalID()] {
		t.Fatal("expected PRODUCER_CLOSED for both producers")
	}
	mu.Unlock()

	if err := <-pauseErrCh; kindOf(err) != ErrWorkerExit {
		t.Fatalf("pending producer.pause completed with kind %v, want WORKER_EXIT", kindOf(err))
	}

	if _, ok := registry.LockedLookupByUUID(router.UUID()); ok {
		t.Fatal("router still resolvable in the registry after worker exit")
	}
}
