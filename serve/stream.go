package serve

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"camstream/util"
	"camstream/video"
	"camstream/video/sink"
	"camstream/video/source"
)

// StreamPattern routes viewers to a StreamServer.
const StreamPattern = "GET /video/{channel}/{camId}"

// SourceResolver supplies the current camera list and viewer options. It is
// consulted on every request so configuration changes apply to new viewers.
type SourceResolver interface {
	Sources() map[int]source.Channels
	StreamOptions() sink.Options
}

// StreamServer serves one camera channel per request as an MJPEG stream.
type StreamServer struct {
	Resolver SourceResolver
	Registry *video.Registry
	Imager   sink.Imager

	shutdown *util.Event
}

func NewStreamServer(resolver SourceResolver, registry *video.Registry, imager sink.Imager) *StreamServer {
	return &StreamServer{
		Resolver: resolver,
		Registry: registry,
		Imager:   imager,
		shutdown: util.NewEvent(),
	}
}

// Shutdown ends every open stream. Later requests get an empty response.
func (s *StreamServer) Shutdown() {
	s.shutdown.Notify()
}

// lookup resolves a request to its source. ok is false for an unknown camera
// or channel.
func (s *StreamServer) lookup(channel, camID string) (src source.Source, ok bool) {
	ch, ok := source.ParseChannel(channel)
	if !ok {
		return src, false
	}
	id, err := strconv.ParseFloat(camID, 64)
	if err != nil {
		return src, false
	}
	chans, ok := s.Resolver.Sources()[int(id)]
	if !ok {
		return src, false
	}
	src, ok = chans[ch]
	return src, ok && src.URI != ""
}

func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel, camID := r.PathValue("channel"), r.PathValue("camId")
	clog := log.WithFields(log.Fields{
		"addr":    r.RemoteAddr,
		"session": uuid.NewString(),
		"camera":  camID,
		"channel": channel,
	})

	// A nil feed makes the producer send placeholders.
	var feed sink.Feed
	src, ok := s.lookup(channel, camID)
	if !ok {
		clog.Warn("Source not found for camera and channel")
	} else if f := s.Registry.Get(src); f != nil {
		feed = f
		f.AddViewer(1)
		defer f.AddViewer(-1)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.shutdown.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	p := sink.NewProducer(feed, s.Imager, s.Resolver.StreamOptions())
	p.Channel = channel
	p.Log = clog

	w.Header().Set("Content-Type", sink.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	clog.Info("MJPEG stream connected")
	sent := 0
	for {
		chunk, err := p.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				clog.Info("MJPEG stream ended")
			case s.shutdown.HasBeenNotified():
				clog.Info("MJPEG stream closed for shutdown")
			default:
				clog.Infof("MJPEG stream disconnected after %d frames", sent)
			}
			return
		}
		if _, err := w.Write(chunk); err != nil {
			clog.Infof("MJPEG stream disconnected after %d frames: %v", sent, err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		sent++
	}
}
