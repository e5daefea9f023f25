package discord

import (
	"context"
	"math"
	"strings"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	"github.com/cockroachdb/errors"
)

const (
	sampleRate   = 48000
	channels     = 2
	frameSamples = 960 // 20ms at 48kHz
	opusBitRate  = 128000
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// gain is a volume scalar shared between a sink and its running transcoder.
type gain struct {
	bits atomic.Uint64
}

func (g *gain) Store(v float64) { g.bits.Store(math.Float64bits(v)) }
func (g *gain) Load() float64   { return math.Float64frombits(g.bits.Load()) }

// transcoder decodes any ffmpeg-readable input into 20ms Opus frames.
type transcoder struct {
	input       *astiav.FormatContext
	decoder     *astiav.CodecContext
	encoder     *astiav.CodecContext
	streamIndex int

	packet        *astiav.Packet
	frame         *astiav.Frame
	resampler     *astiav.SoftwareResampleContext
	resampleFrame *astiav.Frame
	fifo          *astiav.AudioFifo

	volume *gain
	pts    int64
	emit   func([]byte) bool
}

// openTranscoder opens locator and prepares the decoder and the Opus encoder.
func openTranscoder(locator string, volume *gain) (*transcoder, error) {
	t := &transcoder{
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
		volume:        volume,
	}
	if err := t.openInput(locator); err != nil {
		t.close()
		return nil, errors.Wrap(err, "open input")
	}
	if err := t.setupDecoder(); err != nil {
		t.close()
		return nil, errors.Wrap(err, "setup decoder")
	}
	if err := t.setupEncoder(); err != nil {
		t.close()
		return nil, errors.Wrap(err, "setup encoder")
	}
	return t, nil
}

func (t *transcoder) openInput(locator string) error {
	t.input = astiav.AllocFormatContext()
	if t.input == nil {
		return errors.New("failed to alloc format context")
	}

	var opts *astiav.Dictionary
	if strings.HasPrefix(locator, "http") {
		opts = astiav.NewDictionary()
		defer opts.Free()
		opts.Set("reconnect", "1", 0)
		opts.Set("reconnect_streamed", "1", 0)
		opts.Set("reconnect_delay_max", "30", 0)
		opts.Set("timeout", "30000000", 0)
		opts.Set("probesize", "10000000", 0)
		opts.Set("analyzeduration", "10000000", 0)
	}
	if err := t.input.OpenInput(locator, nil, opts); err != nil {
		return err
	}
	if err := t.input.FindStreamInfo(nil); err != nil {
		return err
	}

	t.streamIndex = -1
	for _, s := range t.input.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.streamIndex = s.Index()
			break
		}
	}
	if t.streamIndex == -1 {
		return errors.New("no audio stream")
	}
	return nil
}

func (t *transcoder) setupDecoder() error {
	params := t.input.Streams()[t.streamIndex].CodecParameters()
	d := astiav.FindDecoder(params.CodecID())
	if d == nil {
		return errors.Newf("no decoder for %v", params.CodecID())
	}
	t.decoder = astiav.AllocCodecContext(d)
	if err := params.ToCodecContext(t.decoder); err != nil {
		return err
	}
	return t.decoder.Open(d, nil)
}

func (t *transcoder) setupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no opus encoder")
	}
	t.encoder = astiav.AllocCodecContext(e)
	t.encoder.SetBitRate(opusBitRate)
	t.encoder.SetSampleRate(sampleRate)
	t.encoder.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoder.SetSampleFormat(astiav.SampleFormatS16)
	t.encoder.SetTimeBase(astiav.NewRational(1, sampleRate))

	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("vbr", "on", 0)
	opts.Set("compression_level", "10", 0)
	opts.Set("frame_size", "20", 0)
	if err := t.encoder.Open(e, opts); err != nil {
		return err
	}

	t.resampler = astiav.AllocSoftwareResampleContext()
	if t.resampler == nil {
		return errors.New("failed to alloc resampler")
	}
	t.fifo = astiav.AllocAudioFifo(t.encoder.SampleFormat(), t.encoder.ChannelLayout().Channels(), frameSamples*2)
	if t.fifo == nil {
		return errors.New("failed to alloc fifo")
	}
	return nil
}

// run transcodes until the input ends, ctx is done or emit reports false.
func (t *transcoder) run(ctx context.Context, emit func([]byte) bool) error {
	t.emit = emit
	defer t.packet.Unref()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.packet.Unref()
		if err := t.input.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return errors.Wrap(err, "read frame")
		}
		if t.packet.StreamIndex() != t.streamIndex {
			continue
		}
		if err := t.decoder.SendPacket(t.packet); err != nil {
			return errors.Wrap(err, "decode")
		}
		if err := t.drainDecoder(); err != nil {
			return err
		}
	}

	// Flush decoder, fifo and encoder.
	_ = t.decoder.SendPacket(nil)
	if err := t.drainDecoder(); err != nil {
		return err
	}
	if err := t.processFifo(true); err != nil {
		return err
	}
	_ = t.encoder.SendFrame(nil)
	t.drainEncoder()
	return ctx.Err()
}

func (t *transcoder) drainDecoder() error {
	for {
		if err := t.decoder.ReceiveFrame(t.frame); err != nil {
			return nil
		}
		err := t.pushToFifo()
		t.frame.Unref()
		if err != nil {
			return err
		}
	}
}

func (t *transcoder) pushToFifo() error {
	t.resampleFrame.Unref()
	t.resampleFrame.SetChannelLayout(t.encoder.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoder.SampleFormat())
	t.resampleFrame.SetSampleRate(t.encoder.SampleRate())

	nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()),
		astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, t.encoder.SampleRate())))
	if nb <= 0 {
		return nil
	}
	t.resampleFrame.SetNbSamples(nb)
	if err := t.resampleFrame.AllocBuffer(0); err != nil {
		return errors.Wrap(err, "alloc resample buffer")
	}
	if err := t.resampler.ConvertFrame(t.frame, t.resampleFrame); err != nil {
		return errors.Wrap(err, "resample")
	}
	if _, err := t.fifo.Write(t.resampleFrame); err != nil {
		return errors.Wrap(err, "fifo write")
	}
	return t.processFifo(false)
}

// processFifo encodes every full frame in the fifo, plus the remainder when drain is set.
func (t *transcoder) processFifo(drain bool) error {
	for {
		n := frameSamples
		if t.fifo.Size() < n {
			if !drain || t.fifo.Size() == 0 {
				return nil
			}
			n = t.fifo.Size()
		}

		t.resampleFrame.Unref()
		t.resampleFrame.SetNbSamples(n)
		t.resampleFrame.SetChannelLayout(t.encoder.ChannelLayout())
		t.resampleFrame.SetSampleFormat(t.encoder.SampleFormat())
		t.resampleFrame.SetSampleRate(t.encoder.SampleRate())
		if err := t.resampleFrame.AllocBuffer(0); err != nil {
			return errors.Wrap(err, "alloc frame buffer")
		}
		if _, err := t.fifo.Read(t.resampleFrame); err != nil {
			return errors.Wrap(err, "fifo read")
		}

		if g := t.volume.Load(); g != 1 {
			data, err := t.resampleFrame.Data().Bytes(1)
			if err == nil {
				scaleS16(data[:min(len(data), n*channels*2)], g)
				_ = t.resampleFrame.Data().SetBytes(data, 1)
			}
		}

		t.resampleFrame.SetPts(t.pts)
		t.pts += int64(n)
		if err := t.encoder.SendFrame(t.resampleFrame); err != nil {
			return errors.Wrap(err, "encode")
		}
		t.drainEncoder()
	}
}

func (t *transcoder) drainEncoder() {
	for {
		t.packet.Unref()
		if t.encoder.ReceivePacket(t.packet) != nil {
			return
		}
		data := t.packet.Data()
		frame := make([]byte, len(data))
		copy(frame, data)
		if !t.emit(frame) {
			return
		}
	}
}

func (t *transcoder) close() {
	if t.fifo != nil {
		t.fifo.Free()
	}
	if t.resampler != nil {
		t.resampler.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.decoder != nil {
		t.decoder.Free()
	}
	if t.encoder != nil {
		t.encoder.Free()
	}
	if t.input != nil {
		t.input.CloseInput()
		t.input.Free()
	}
}

// scaleS16 multiplies interleaved little-endian signed 16-bit samples by g, clipping at the int16 range.
func scaleS16(data []byte, g float64) {
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(uint16(data[i]) | uint16(data[i+1])<<8)
		scaled := math.Round(float64(sample) * g)
		switch {
		case scaled > math.MaxInt16:
			scaled = math.MaxInt16
		case scaled < math.MinInt16:
			scaled = math.MinInt16
		}
		v := uint16(int16(scaled))
		data[i] = byte(v)
		data[i+1] = byte(v >> 8)
	}
}
