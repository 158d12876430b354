package sfu

import (
	"encoding/json"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
)

// H is a loose JSON object, used at the worker-IPC boundary only (the
// Design Notes forbid letting it leak into the Room Domain).
type H map[string]interface{}

// internalData identifies the target resource(s) of a worker command,
// sent verbatim as the command's "internal" field.
type internalData struct {
	RouterId        string `json:"routerId,omitempty"`
	TransportId     string `json:"transportId,omitempty"`
	ProducerId      string `json:"producerId,omitempty"`
	ConsumerId      string `json:"consumerId,omitempty"`
	DataProducerId  string `json:"dataProducerId,omitempty"`
	DataConsumerId  string `json:"dataConsumerId,omitempty"`
	RtpObserverId   string `json:"rtpObserverId,omitempty"`
}

// DumpResult wraps a worker dump reply: raw bytes plus any transport
// error, so callers can Unmarshal lazily into whatever shape they need.
type DumpResult struct {
	data []byte
	err  error
}

func NewDumpResult(data []byte, err error) DumpResult {
	return DumpResult{data: data, err: err}
}

func (d DumpResult) Data() []byte { return d.data }
func (d DumpResult) Err() error   { return d.err }

func (d DumpResult) Unmarshal(v interface{}) error {
	if d.err != nil {
		return d.err
	}
	if len(d.data) == 0 {
		return nil
	}
	return json.Unmarshal(d.data, v)
}

// newUUID returns an RFC 4122 v4 textual uuid, the only identifier
// form the worker and persistent storage understand.
func newUUID() string {
	return uuid.NewV4().String()
}

// localIDAllocator hands out process-unique, monotonically increasing
// 32-bit local ids, reused only after the counter wraps (§3: "32-bit
// local id... monotonic, reused only after wrap").
type localIDAllocator struct {
	counter uint32
}

func (a *localIDAllocator) next() uint32 {
	return atomic.AddUint32(&a.counter, 1)
}

var globalLocalIDs localIDAllocator

func nextLocalID() uint32 {
	return globalLocalIDs.next()
}

// MediaKind distinguishes audio/video producers and consumers.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)
