package config

import (
	"encoding/json"
	"fmt"
	"image"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"camstream/video"
	"camstream/video/sink"
	"camstream/video/source"
)

const DefaultListen = ":8001"

type Config struct {
	Listen string `json:"listen" yaml:"listen"`
	// WebDir holds the static files served at "/".
	WebDir string `json:"web_dir" yaml:"web_dir"`
	// TestSource, when set, replaces the URI of every camera channel. A test
	// file always loops.
	TestSource   string `json:"test_source" yaml:"test_source"`
	RetryDelayMS int    `json:"retry_delay_ms" yaml:"retry_delay_ms"`

	// Stream holds the viewer options by name; see parseStreamOptions.
	Stream  map[string]interface{} `json:"stream" yaml:"stream"`
	Cameras []Camera               `json:"cameras" yaml:"cameras"`

	streamOptions sink.Options
}

// Camera describes one camera and how to reach its two channels. A
// non-empty streaming URL takes precedence over the URI composed from the
// other fields.
type Camera struct {
	ID       int    `json:"id" yaml:"id"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	IP       string `json:"ip" yaml:"ip"`
	Port     Port   `json:"port" yaml:"port"`

	PrimaryChannelURI     string `json:"primary_channel_uri" yaml:"primary_channel_uri"`
	SecondaryChannelURI   string `json:"secondary_channel_uri" yaml:"secondary_channel_uri"`
	PrimaryStreamingURL   string `json:"primary_streaming_url" yaml:"primary_streaming_url"`
	SecondaryStreamingURL string `json:"secondary_streaming_url" yaml:"secondary_streaming_url"`

	// Loop replays local files.
	Loop     bool    `json:"loop" yaml:"loop"`
	Rotation float64 `json:"rotation" yaml:"rotation"`
	// ROI is x, y, width, height. A zero width disables cropping.
	ROI []int `json:"roi" yaml:"roi"`
}

// Port accepts both a number and a string.
type Port string

func (p *Port) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = Port(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("port must be a string or number: %w", err)
	}
	*p = Port(n.String())
	return nil
}

func (p *Port) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: port must be a scalar", n.Line)
	}
	*p = Port(n.Value)
	return nil
}

// parse decodes b as YAML or JSON depending on the file extension of path.
func parse(path string, b []byte) (*Config, error) {
	var c Config
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.streamOptions = parseStreamOptions(c.Stream)
	return &c, nil
}

func (c *Config) validate() error {
	seen := make(map[int]bool)
	for _, cam := range c.Cameras {
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id %d", cam.ID)
		}
		seen[cam.ID] = true
		if len(cam.ROI) != 0 && len(cam.ROI) != 4 {
			return fmt.Errorf("camera %d: roi needs 4 values, got %d", cam.ID, len(cam.ROI))
		}
	}
	if c.RetryDelayMS < 0 {
		return fmt.Errorf("negative retry_delay_ms")
	}
	return nil
}

func (c *Config) ListenAddr() string {
	if c.Listen == "" {
		return DefaultListen
	}
	return c.Listen
}

func (c *Config) RetryDelay() time.Duration {
	if c.RetryDelayMS == 0 {
		return video.DefaultRetryDelay
	}
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// StreamOptions returns the validated viewer options.
func (c *Config) StreamOptions() sink.Options {
	return c.streamOptions
}

// Sources resolves every camera to the sources of its channels.
func (c *Config) Sources() map[int]source.Channels {
	m := make(map[int]source.Channels, len(c.Cameras))
	for _, cam := range c.Cameras {
		m[cam.ID] = source.Channels{
			source.Primary:   c.source(cam, source.Primary),
			source.Secondary: c.source(cam, source.Secondary),
		}
	}
	return m
}

func (c *Config) source(cam Camera, ch source.Channel) source.Source {
	s := source.Source{
		Name:     strconv.Itoa(cam.ID) + "/" + string(ch),
		Loop:     cam.Loop,
		Rotation: cam.Rotation,
	}
	if len(cam.ROI) == 4 && cam.ROI[2] > 0 && cam.ROI[3] > 0 {
		s.ROI = image.Rect(cam.ROI[0], cam.ROI[1], cam.ROI[0]+cam.ROI[2], cam.ROI[1]+cam.ROI[3])
	}

	streaming, channel := cam.PrimaryStreamingURL, cam.PrimaryChannelURI
	if ch == source.Secondary {
		streaming, channel = cam.SecondaryStreamingURL, cam.SecondaryChannelURI
	}
	switch {
	case c.TestSource != "":
		s.URI = c.TestSource
		s.Kind = source.KindOf(s.URI)
		s.Loop = true
	case streaming != "":
		s.URI = streaming
		s.Kind = source.KindOf(s.URI)
	case cam.Protocol == "file":
		s.URI = channel
		s.Kind = source.KindFile
	default:
		s.URI = cam.uri(channel)
		s.Kind = source.KindNetwork
	}
	if strings.EqualFold(cam.Protocol, "mjpeg") && s.Kind != source.KindFile {
		s.Kind = source.KindMJPEG
	}
	return s
}

// uri composes protocol://username:password@ip:port/channel.
func (cam Camera) uri(channel string) string {
	scheme := strings.ToLower(cam.Protocol)
	if scheme == "mjpeg" {
		scheme = "http"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   cam.IP,
	}
	if cam.Port != "" {
		u.Host = net.JoinHostPort(cam.IP, string(cam.Port))
	}
	if cam.Username != "" {
		u.User = url.UserPassword(cam.Username, cam.Password)
	}
	path, query, _ := strings.Cut(channel, "?")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawQuery = query
	return u.String()
}

// redacted returns a copy with passwords masked, for logging.
func (c *Config) redacted() Config {
	r := *c
	r.Cameras = make([]Camera, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.Password != "" {
			cam.Password = "xxxxx"
		}
		for _, u := range []*string{&cam.PrimaryStreamingURL, &cam.SecondaryStreamingURL} {
			*u = source.Source{URI: *u}.Redacted()
		}
		r.Cameras[i] = cam
	}
	return r
}
