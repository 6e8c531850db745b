package sink

import (
	"context"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"camstream/metrics"
	"camstream/video/source"
)

const (
	Boundary = "frame"
	// ContentType is the response type of an MJPEG stream built from Chunk.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

	header  = "--" + Boundary + "\r\n" + "Content-Type:image/jpeg\r\n" + "\r\n"
	trailer = "\r\n"

	textNoInput = "No Input"
	textEnd     = "The End"
)

// Chunk wraps an encoded JPEG as one part of a multipart MJPEG stream.
func Chunk(jpeg []byte) []byte {
	b := make([]byte, 0, len(header)+len(jpeg)+len(trailer))
	b = append(b, header...)
	b = append(b, jpeg...)
	return append(b, trailer...)
}

// Producer turns the frames of a feed into MJPEG chunks for a single viewer.
// It is not safe for concurrent use.
type Producer struct {
	// Channel labels the chunks in metrics.
	Channel string
	Log     *log.Entry

	feed    Feed
	imager  Imager
	opts    Options
	limiter *rate.Limiter

	grace       int
	placeholder []byte
	done        bool
}

// NewProducer creates a producer reading from feed. A nil feed is treated as
// a source that never has a frame.
func NewProducer(feed Feed, imager Imager, opts Options) *Producer {
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Producer{
		Log:     log.NewEntry(log.StandardLogger()),
		feed:    feed,
		imager:  imager,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		grace:   opts.Grace,
	}
}

// Next blocks until the next chunk is due and returns it. It returns io.EOF
// once a finite session has sent its final placeholder, or the context's error
// if it is cancelled first.
func (p *Producer) Next(ctx context.Context) ([]byte, error) {
	for {
		if p.done {
			return nil, io.EOF
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		chunk, err := p.produce(ctx)
		if err == nil {
			return chunk, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.Log.Warnf("Failed to produce chunk: %v", err)
	}
}

func (p *Producer) produce(ctx context.Context) ([]byte, error) {
	for {
		fr := p.current()
		if fr != nil {
			p.grace = p.opts.Grace
			defer fr.Release()
			chunk, err := p.encode(fr.Pixels)
			if err == nil {
				metrics.ChunksSent.WithLabelValues(p.Channel, "false").Inc()
			}
			return chunk, err
		}
		if p.grace > 0 {
			p.grace--
			if err := sleep(ctx, p.opts.GraceWait); err != nil {
				return nil, err
			}
			continue
		}
		return p.blank()
	}
}

func (p *Producer) current() *source.Frame {
	if p.feed == nil {
		return nil
	}
	return p.feed.Current()
}

// blank returns the placeholder chunk, rendering it on first use.
func (p *Producer) blank() ([]byte, error) {
	text := textNoInput
	if !p.opts.Infinite {
		text = textEnd
	}
	if p.placeholder == nil {
		px, err := p.imager.Blank(p.opts.Resolution, text)
		if err != nil {
			return nil, fmt.Errorf("creating placeholder: %w", err)
		}
		defer px.Close()
		chunk, err := p.encode(px)
		if err != nil {
			return nil, err
		}
		p.Log.WithField("text", text).Debug("Sending placeholder frame")
		p.placeholder = chunk
	}
	// A finite session ends only once its final chunk is in hand.
	p.done = !p.opts.Infinite
	metrics.ChunksSent.WithLabelValues(p.Channel, "true").Inc()
	return p.placeholder, nil
}

func (p *Producer) encode(px source.Pixels) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.EncodeSeconds.Observe(time.Since(start).Seconds())
	}()

	if p.opts.Reduction > 0 {
		reduced, err := p.imager.Reduce(px, p.opts.Reduction)
		if err != nil {
			return nil, fmt.Errorf("reducing frame: %w", err)
		}
		defer reduced.Close()
		px = reduced
	}
	jpeg, err := p.imager.Encode(px, p.opts.EncodeOptions)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return Chunk(jpeg), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
