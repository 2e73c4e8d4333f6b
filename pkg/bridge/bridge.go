// Package bridge exposes a reader attached to the local machine over MQTT.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/romreader/pkg/bridge/msgs"
	"github.com/robotalks/romreader/pkg/host"
	"github.com/robotalks/romreader/pkg/reader"
)

// Meta is published retained on <device>/meta while the bridge is online.
type Meta struct {
	Device      string `json:"device"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
}

// Topic names relative to the device.
const (
	TopicRequest = "req"
	TopicReply   = "reply"
	TopicMeta    = "meta"
)

// DeviceTopic returns the topic of a device.
func DeviceTopic(device, name string) string {
	return device + "/" + name
}

// Executor runs requests on a reader.
type Executor struct {
	Client *host.Client
	// Chunk is the dump chunk size when the request doesn't specify one.
	Chunk int32
}

// DefaultChunk keeps every scan under a second at 115200 baud.
const DefaultChunk = 4096

// Execute runs req and builds the reply. Errors are carried in the reply.
func (e *Executor) Execute(ctx context.Context, req *msgs.Request) *msgs.Reply {
	reply := &msgs.Reply{Id: req.Id, Op: req.Op}
	var dump *host.Dump
	var err error
	switch req.Op {
	case msgs.OpSetRange:
		err = e.Client.SetRange(reader.AddressRange{Min: req.Min, Max: req.Max})
		reply.Base = req.Min
	case msgs.OpRead:
		dump, err = e.Client.Read(ctx)
	case msgs.OpReadI2C:
		dump, err = e.Client.ReadI2C(ctx)
	case msgs.OpReadSPI:
		dump, err = e.Client.ReadSPI(ctx)
	case msgs.OpReadLocation:
		var b byte
		if b, err = e.Client.ReadLocation(ctx, req.Address); err == nil {
			reply.Base, reply.Data = req.Address, []byte{b}
		}
	case msgs.OpDump:
		chunk := req.Chunk
		if chunk <= 0 {
			chunk = e.Chunk
		}
		dump, err = e.Client.Dump(ctx, reader.AddressRange{Min: req.Min, Max: req.Max}, chunk, nil)
	default:
		err = fmt.Errorf("unknown operation %s", msgs.OpName(req.Op))
	}
	if err != nil {
		reply.Error = err.Error()
	} else if dump != nil {
		reply.Base, reply.Data, reply.Placeholder = dump.Base, dump.Data, dump.Placeholder
	}
	rng := e.Client.Range()
	reply.Min, reply.Max = rng.Min, rng.Max
	return reply
}

// Bridge serves requests from MQTT with an Executor. Requests are executed
// one at a time in arrival order.
type Bridge struct {
	Queue    *Queue
	Device   string
	Meta     Meta
	Executor *Executor

	pub    Publisher
	link   io.Closer
	reqCh  chan []byte
	served uint64
}

// NewBridge creates a Bridge on queue for the reader behind client. link is
// closed when the bridge stops, it can be nil.
func NewBridge(queue *Queue, device string, client *host.Client, link io.Closer) *Bridge {
	b := &Bridge{
		Queue:    queue,
		Device:   device,
		Meta:     Meta{Device: device},
		Executor: &Executor{Client: client, Chunk: DefaultChunk},
		pub:      queue,
		link:     link,
		reqCh:    make(chan []byte, 16),
	}
	queue.OnConnect = func(*Queue) { b.publishMeta(true) }
	return b
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	if b.link != nil {
		defer b.link.Close()
	}
	sub := b.Queue.Sub(DeviceTopic(b.Device, TopicRequest), b.enqueue)
	token := b.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	glog.Infof("bridge %s online", b.Device)
	defer func() {
		sub.Close()
		b.publishMeta(false)
		b.Queue.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-b.reqCh:
			if err := b.serve(ctx, payload); err != nil {
				glog.Errorf("serve request: %v", err)
			}
			if b.Executor.Client.Desynced() {
				return host.ErrDesync
			}
		}
	}
}

// Served returns the number of replies published.
func (b *Bridge) Served() uint64 {
	return atomic.LoadUint64(&b.served)
}

func (b *Bridge) enqueue(_ string, payload []byte) {
	select {
	case b.reqCh <- payload:
	default:
		glog.Warningf("request dropped, %d pending", len(b.reqCh))
	}
}

func (b *Bridge) serve(ctx context.Context, payload []byte) error {
	req, err := msgs.DecodeRequest(payload)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	glog.V(1).Infof("request %d %s", req.Id, msgs.OpName(req.Op))
	reply := b.Executor.Execute(ctx, req)
	if reply.Error != "" {
		glog.Warningf("request %d %s: %s", req.Id, msgs.OpName(req.Op), reply.Error)
	}
	out, err := msgs.Encode(reply)
	if err != nil {
		return err
	}
	token := b.pub.PubWith(DeviceTopic(b.Device, TopicReply), out, 1, false)
	token.Wait()
	if err = token.Error(); err == nil {
		atomic.AddUint64(&b.served, 1)
	}
	return err
}

func (b *Bridge) publishMeta(online bool) {
	var payload []byte
	if online {
		var err error
		if payload, err = json.Marshal(&b.Meta); err != nil {
			panic(err)
		}
	}
	token := b.pub.PubWith(DeviceTopic(b.Device, TopicMeta), payload, 1, true)
	token.Wait()
	if err := token.Error(); err != nil {
		glog.Warningf("publish meta: %v", err)
	}
}
