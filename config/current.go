package config

import (
	"camstream/video/sink"
	"camstream/video/source"
)

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{streamOptions: sink.DefaultOptions()}
}

// Current resolves sources from whichever configuration is loaded at the
// time of the call, so reloads apply to new viewers.
type Current struct {
	// TestSource overrides the configured test_source when set.
	TestSource string
}

func (cur Current) Sources() map[int]source.Channels {
	c := Get()
	if c == nil {
		return nil
	}
	if cur.TestSource != "" {
		o := *c
		o.TestSource = cur.TestSource
		return o.Sources()
	}
	return c.Sources()
}

func (cur Current) StreamOptions() sink.Options {
	if c := Get(); c != nil {
		return c.StreamOptions()
	}
	return sink.DefaultOptions()
}
