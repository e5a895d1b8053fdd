// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kinetos/sniff/cmd/sniff/frame"
	"github.com/kinetos/sniff/cmd/sniff/modbus"
	"github.com/kinetos/sniff/cmd/sniff/port"
	"github.com/kinetos/sniff/cmd/sniff/rapi"
	"github.com/kinetos/sniff/cmd/sniff/trace"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step is one scripted read: the clock moves by after, then data (or
// nothing, a timeout) is returned together with err.
type step struct {
	after time.Duration
	data  []byte
	err   error
}

type fakeDevice struct {
	mu     sync.Mutex
	now    time.Time
	steps  []step
	closed bool
	// block makes reads past the script wait for ctx instead of ending;
	// idle is closed when that happens.
	block context.Context
	idle  chan struct{}
	once  sync.Once
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	if len(d.steps) == 0 {
		d.mu.Unlock()
		if d.block != nil {
			d.once.Do(func() { close(d.idle) })
			<-d.block.Done()
			return 0, nil
		}
		return 0, io.EOF
	}
	s := d.steps[0]
	d.steps = d.steps[1:]
	d.now = d.now.Add(s.after)
	d.mu.Unlock()
	return copy(p, s.data), s.err
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) clock() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

type collector struct {
	mu      sync.Mutex
	records []trace.Record
}

func (c *collector) Render(r trace.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *collector) all() []trace.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]trace.Record(nil), c.records...)
}

var (
	start = time.Date(2024, 2, 2, 10, 0, 0, 0, time.Local)
	txSrc = frame.Source{ID: "TX", Device: "/dev/ttyUSB0"}
	rxSrc = frame.Source{ID: "RX", Device: "/dev/ttyUSB1"}
)

func modbusPipeline(dev *fakeDevice, sink Renderer) *Pipeline {
	return &Pipeline{
		Source:    txSrc,
		Options:   port.Options{Device: txSrc.Device, Baud: 9600, StopBits: 1, DataBits: 8, ReadTimeout: 4 * time.Millisecond},
		Assembler: frame.NewGapAssembler(20 * time.Millisecond),
		Decode:    func(f frame.Frame) trace.Record { return modbus.NewRecord(f) },
		Sink:      sink,
		Log:       zerolog.Nop(),
		Open:      func(port.Options) (port.Device, error) { return dev, nil },
		Clock:     dev.clock,
		Pause:     time.Millisecond,
	}
}

func crcFrame(body ...byte) []byte {
	crc := modbus.Checksum(body)
	return append(append([]byte{}, body...), byte(crc), byte(crc>>8))
}

func TestChunksWithoutSilenceFormOneFrame(t *testing.T) {
	full := crcFrame(0x01, 0x02, 0x03, 0x04)
	dev := &fakeDevice{now: start, steps: []step{
		{data: full[:2]},
		{after: 30 * time.Millisecond, data: full[2:]},
	}}
	sink := &collector{}
	p := modbusPipeline(dev, sink)

	require.NoError(t, p.Run(context.Background()))

	recs := sink.all()
	require.Len(t, recs, 1)
	r := recs[0].(*modbus.Record)
	assert.Equal(t, modbus.StatusOK, r.Status)
	assert.Equal(t, "01 02 03 04", r.Payload)
	assert.True(t, dev.closed)
	assert.Equal(t, int64(1), p.Stats.Frames.Load())
	assert.Equal(t, int64(len(full)), p.Stats.Bytes.Load())
}

func TestSilenceSplitsFrames(t *testing.T) {
	req := crcFrame(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)
	resp := crcFrame(0x01, 0x03, 0x02, 0x00, 0x2A)
	dev := &fakeDevice{now: start, steps: []step{
		{data: req[:3]},
		{after: time.Millisecond, data: req[3:]},
		{after: 4 * time.Millisecond},
		{after: 4 * time.Millisecond},
		{after: 4 * time.Millisecond},
		{after: 4 * time.Millisecond},
		{after: 4 * time.Millisecond},
		{after: time.Millisecond, data: resp},
		{after: 4 * time.Millisecond},
	}}
	sink := &collector{}
	require.NoError(t, modbusPipeline(dev, sink).Run(context.Background()))

	recs := sink.all()
	require.Len(t, recs, 2)
	first := recs[0].(*modbus.Record)
	assert.Equal(t, "00 00 00 01", first.Payload)
	assert.Equal(t, start.Add(21*time.Millisecond), first.At)
	second := recs[1].(*modbus.Record)
	assert.Equal(t, "02 00 2A", second.Payload)
	assert.Equal(t, "TX", second.Dir)
}

func TestTransientErrorsDoNotLoseBytes(t *testing.T) {
	full := crcFrame(0x11, 0x06, 0x00, 0x01)
	dev := &fakeDevice{now: start, steps: []step{
		{data: full[:3], err: errors.New("input/output error")},
		{err: errors.New("input/output error")},
		{data: full[3:]},
	}}
	sink := &collector{}
	p := modbusPipeline(dev, sink)
	require.NoError(t, p.Run(context.Background()))

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, modbus.StatusOK, recs[0].(*modbus.Record).Status)
	assert.Equal(t, int64(2), p.Stats.Transient.Load())
}

func TestFatalReadFlushesAndStops(t *testing.T) {
	fatal := &port.Error{Kind: port.KindFatal, Device: txSrc.Device, Err: errors.New("port closed")}
	dev := &fakeDevice{now: start, steps: []step{
		{data: []byte{0x01, 0x03}},
		{err: fatal},
		{data: []byte{0xFF}},
	}}
	sink := &collector{}
	err := modbusPipeline(dev, sink).Run(context.Background())
	assert.True(t, port.IsFatal(err))

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, modbus.StatusUnavailable, recs[0].(*modbus.Record).Status)
}

func TestCancelFlushesPartialFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dev := &fakeDevice{now: start, block: ctx, idle: make(chan struct{}), steps: []step{
		{data: []byte{0x01, 0x03, 0x00}},
	}}
	sink := &collector{}
	done := make(chan error)
	go func() { done <- modbusPipeline(dev, sink).Run(ctx) }()

	<-dev.idle
	cancel()
	require.NoError(t, <-done)
	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "00", recs[0].(*modbus.Record).Payload)
	assert.True(t, dev.closed)
}

func TestBadFramesAreCounted(t *testing.T) {
	dev := &fakeDevice{now: start, steps: []step{
		{data: []byte("$GET 1 2^$^junk$SET^")},
	}}
	sink := &collector{}
	p := &Pipeline{
		Source:    rxSrc,
		Options:   port.Options{Device: rxSrc.Device},
		Assembler: frame.NewDelimitedAssembler(frame.StartMarker, frame.EndMarker),
		Decode:    func(f frame.Frame) trace.Record { return rapi.NewRecord(f) },
		Sink:      sink,
		Log:       zerolog.Nop(),
		Open:      func(port.Options) (port.Device, error) { return dev, nil },
		Clock:     dev.clock,
	}
	require.NoError(t, p.Run(context.Background()))

	recs := sink.all()
	require.Len(t, recs, 3)
	assert.Equal(t, "GET", recs[0].(*rapi.Record).Command)
	assert.True(t, recs[1].(*rapi.Record).Malformed)
	assert.Equal(t, "SET", recs[2].(*rapi.Record).Command)
	assert.Equal(t, int64(3), p.Stats.Frames.Load())
	assert.Equal(t, int64(1), p.Stats.Bad.Load())
}

func TestRunKeepsSiblingAliveWhenOneFailsToOpen(t *testing.T) {
	openErr := &port.Error{Kind: port.KindFatal, Device: "/dev/missing", Err: errors.New("the port '/dev/missing' was not found")}
	broken := &Pipeline{
		Source:  rxSrc,
		Options: port.Options{Device: "/dev/missing"},
		Log:     zerolog.Nop(),
		Open:    func(port.Options) (port.Device, error) { return nil, openErr },
	}

	full := crcFrame(0x05, 0x01)
	dev := &fakeDevice{now: start, steps: []step{{data: full}}}
	sink := &collector{}
	healthy := modbusPipeline(dev, sink)

	stuck, err := Run(context.Background(), time.Second, broken, healthy)
	assert.Equal(t, 0, stuck)
	assert.ErrorIs(t, err, openErr)
	require.Len(t, sink.all(), 1)
}

func TestRunAbandonsWedgedPipeline(t *testing.T) {
	dev := &wedgedDevice{entered: make(chan struct{}), release: make(chan struct{})}
	defer close(dev.release)
	p := &Pipeline{
		Source:    txSrc,
		Options:   port.Options{Device: txSrc.Device},
		Assembler: frame.NewGapAssembler(0),
		Log:       zerolog.Nop(),
		Sink:      &collector{},
		Open:      func(port.Options) (port.Device, error) { return dev, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-dev.entered
		cancel()
	}()
	stuck, err := Run(ctx, 10*time.Millisecond, p)
	assert.NoError(t, err)
	assert.Equal(t, 1, stuck)
}

// wedgedDevice never returns from Read until released.
type wedgedDevice struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *wedgedDevice) Read([]byte) (int, error) {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return 0, io.EOF
}

func (w *wedgedDevice) Close() error { return nil }
