// Package pipeline connects a capture source to the packet sniffer:
// a capture goroutine blocks on the source and feeds a bounded queue,
// a processing goroutine drains the queue and runs the decode chain to
// completion for one packet at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/capture"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/metrics"
)

// PacketHandler consumes one raw frame to completion. The sniffer is
// the production implementation; an error means unrecoverable stream
// corruption and stops the pipeline.
type PacketHandler interface {
	HandlePacket(frame core.RawFrame) error
}

// Config wires a pipeline.
type Config struct {
	Source  capture.Source
	Handler PacketHandler

	// QueueSize bounds the raw frame queue; when the processing side
	// falls behind, arriving packets are dropped (drop-newest). 0 means
	// the 1024 default.
	QueueSize int

	Logger log.Logger
}

const defaultQueueSize = 1024

// Pipeline owns the capture and processing goroutines.
type Pipeline struct {
	source  capture.Source
	handler PacketHandler
	log     log.Logger
	link    core.LinkType

	queue chan core.RawFrame
	stats counters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	fatal  chan error
	done   chan struct{}
}

func New(cfg Config) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		source:  cfg.Source,
		handler: cfg.Handler,
		log:     logger,
		queue:   make(chan core.RawFrame, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		fatal:   make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Start opens the source and launches both loops. Open failures are
// setup-fatal and returned synchronously.
func (p *Pipeline) Start() error {
	if err := p.source.Open(); err != nil {
		return err
	}

	p.link = p.source.LinkType()
	if !p.link.Supported() {
		// Not fatal: capture keeps running, nothing will decode.
		p.log.Errorf("capture link type %s is not supported, no frames will match", p.link)
	} else {
		p.log.Infof("capture started, link type %s", p.link)
	}

	p.wg.Add(2)
	go p.captureLoop()
	go p.processLoop()
	return nil
}

// Stop cancels both loops, waits for them and closes the source. Safe
// to call more than once.
func (p *Pipeline) Stop() {
	p.cancel()
	p.wg.Wait()
	if err := p.source.Close(); err != nil {
		p.log.Warnf("failed to close capture source: %v", err)
	}
}

// Err delivers the first unrecoverable pipeline error: stream
// corruption from the handler or a broken capture source.
func (p *Pipeline) Err() <-chan error {
	return p.fatal
}

// Done is closed when the processing loop has exited, either because a
// finite source was fully drained or after a fatal error.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) captureLoop() {
	defer p.wg.Done()

	for {
		if p.ctx.Err() != nil {
			return
		}

		data, ci, err := p.source.ReadPacket()
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrReadTimeout):
			continue
		case errors.Is(err, io.EOF):
			p.log.Infof("capture source drained after %d packets", p.stats.received.Load())
			close(p.queue)
			return
		default:
			if p.ctx.Err() != nil {
				return
			}
			p.fail(fmt.Errorf("capture read failed: %w", err))
			return
		}

		p.stats.received.Add(1)
		metrics.PacketsTotal.Inc()

		frame := core.RawFrame{Data: data, Timestamp: ci.Timestamp, Link: p.link}
		select {
		case p.queue <- frame:
		default:
			p.stats.dropped.Add(1)
			metrics.QueueDropsTotal.Inc()
		}
	}
}

func (p *Pipeline) processLoop() {
	defer p.wg.Done()
	defer close(p.done)

	for {
		select {
		case <-p.ctx.Done():
			return
		case frame, ok := <-p.queue:
			if !ok {
				p.log.Infof("packet queue drained, %d packets processed", p.stats.processed.Load())
				return
			}
			p.stats.processed.Add(1)
			if err := p.handler.HandlePacket(frame); err != nil {
				p.fail(err)
				return
			}
		}
	}
}

func (p *Pipeline) fail(err error) {
	p.log.Errorf("pipeline stopped: %v", err)
	select {
	case p.fatal <- err:
	default:
	}
	p.cancel()
}
