package sfu

// WorkerMethod is the closed set of worker IPC methods (§6.1 "Full
// method set"), one typed constant per method name. The Channel.Request
// call sites in this package pass the same names as string literals.
type WorkerMethod string

const (
	MethodWorkerDump                   WorkerMethod = "worker.dump"
	MethodWorkerUpdateSettings         WorkerMethod = "worker.updateSettings"
	MethodWorkerCreateRouter           WorkerMethod = "worker.createRouter"
	MethodRouterDump                   WorkerMethod = "router.dump"
	MethodRouterClose                  WorkerMethod = "router.close"
	MethodRouterCreateWebRtcTransport  WorkerMethod = "router.createWebRtcTransport"
	MethodRouterCreatePlainTransport   WorkerMethod = "router.createPlainTransport"
	MethodRouterCreatePipeTransport    WorkerMethod = "router.createPipeTransport"
	MethodRouterCreateDirectTransport  WorkerMethod = "router.createDirectTransport"
	MethodRouterCreateAudioLevelObserver    WorkerMethod = "router.createAudioLevelObserver"
	MethodRouterCreateActiveSpeakerObserver WorkerMethod = "router.createActiveSpeakerObserver"
	MethodTransportClose               WorkerMethod = "transport.close"
	MethodTransportDump                WorkerMethod = "transport.dump"
	MethodTransportGetStats            WorkerMethod = "transport.getStats"
	MethodTransportConnect             WorkerMethod = "transport.connect"
	MethodTransportSetMaxIncomingBitrate WorkerMethod = "transport.setMaxIncomingBitrate"
	MethodTransportRestartIce          WorkerMethod = "transport.restartIce"
	MethodTransportProduce             WorkerMethod = "transport.produce"
	MethodTransportConsume             WorkerMethod = "transport.consume"
	MethodTransportProduceData         WorkerMethod = "transport.produceData"
	MethodTransportConsumeData         WorkerMethod = "transport.consumeData"
	MethodTransportEnableTraceEvent    WorkerMethod = "transport.enableTraceEvent"
	MethodProducerClose                WorkerMethod = "producer.close"
	MethodProducerDump                 WorkerMethod = "producer.dump"
	MethodProducerGetStats             WorkerMethod = "producer.getStats"
	MethodProducerPause                WorkerMethod = "producer.pause"
	MethodProducerResume               WorkerMethod = "producer.resume"
	MethodProducerEnableTraceEvent     WorkerMethod = "producer.enableTraceEvent"
	MethodConsumerClose                WorkerMethod = "consumer.close"
	MethodConsumerDump                 WorkerMethod = "consumer.dump"
	MethodConsumerGetStats             WorkerMethod = "consumer.getStats"
	MethodConsumerPause                WorkerMethod = "consumer.pause"
	MethodConsumerResume               WorkerMethod = "consumer.resume"
	MethodConsumerSetPreferredLayers   WorkerMethod = "consumer.setPreferredLayers"
	MethodConsumerSetPriority          WorkerMethod = "consumer.setPriority"
	MethodConsumerRequestKeyFrame      WorkerMethod = "consumer.requestKeyFrame"
	MethodConsumerEnableTraceEvent     WorkerMethod = "consumer.enableTraceEvent"
	MethodDataProducerClose            WorkerMethod = "dataProducer.close"
	MethodDataProducerDump             WorkerMethod = "dataProducer.dump"
	MethodDataProducerGetStats         WorkerMethod = "dataProducer.getStats"
	MethodDataConsumerClose            WorkerMethod = "dataConsumer.close"
	MethodDataConsumerDump             WorkerMethod = "dataConsumer.dump"
	MethodDataConsumerGetStats         WorkerMethod = "dataConsumer.getStats"
	MethodDataConsumerGetBufferedAmount WorkerMethod = "dataConsumer.getBufferedAmount"
	MethodDataConsumerSetBufferedAmountLowThreshold WorkerMethod = "dataConsumer.setBufferedAmountLowThreshold"
	MethodRtpObserverClose             WorkerMethod = "rtpObserver.close"
	MethodRtpObserverPause             WorkerMethod = "rtpObserver.pause"
	MethodRtpObserverResume            WorkerMethod = "rtpObserver.resume"
	MethodRtpObserverAddProducer       WorkerMethod = "rtpObserver.addProducer"
	MethodRtpObserverRemoveProducer    WorkerMethod = "rtpObserver.removeProducer"
)

// WorkerEventName is the closed set of event names the worker may push
// (§6.1 "Event names consumed").
type WorkerEventName string

const (
	WorkerEventRunning                WorkerEventName = "running"
	WorkerEventScore                  WorkerEventName = "score"
	WorkerEventTrace                  WorkerEventName = "trace"
	WorkerEventTuple                  WorkerEventName = "tuple"
	WorkerEventRtcpTuple              WorkerEventName = "rtcptuple"
	WorkerEventSilence                WorkerEventName = "silence"
	WorkerEventVolumes                WorkerEventName = "volumes"
	WorkerEventDominantSpeaker        WorkerEventName = "dominantspeaker"
	WorkerEventIceStateChange         WorkerEventName = "icestatechange"
	WorkerEventIceSelectedTupleChange WorkerEventName = "iceselectedtuplechange"
	WorkerEventDtlsStateChange        WorkerEventName = "dtlsstatechange"
	WorkerEventSctpStateChange        WorkerEventName = "sctpstatechange"
	WorkerEventVideoOrientationChange WorkerEventName = "videoorientationchange"
	WorkerEventProducerClose          WorkerEventName = "producerclose"
	WorkerEventProducerPause          WorkerEventName = "producerpause"
	WorkerEventProducerResume         WorkerEventName = "producerresume"
	WorkerEventLayersChange           WorkerEventName = "layerschange"
)
