package config

import (
	"encoding/json"
	"image"
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"camstream/video/sink"
)

// Names of the recognized stream options.
const (
	OptQuality     = "jpegCompressionQuality"
	OptColorspace  = "jpegCompressionColorspace"
	OptFastDCT     = "jpegCompressionFastDCT"
	OptSubsampling = "jpegCompressionSubsampling"
	OptReduction   = "frameSizeReductionPercent"
	OptInfinite    = "enableInfiniteFrames"
	OptFrameRate   = "frameRateTargetHz"
	OptResolution  = "resolution"
)

type optionSetter func(o *sink.Options, v interface{}) bool

var optionSetters = map[string]optionSetter{
	OptQuality: func(o *sink.Options, v interface{}) bool {
		n, ok := number(v)
		if !ok || n < 10 || n > 100 {
			return false
		}
		o.Quality = int(n)
		return true
	},
	OptColorspace: func(o *sink.Options, v interface{}) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		s = strings.ToUpper(strings.TrimSpace(s))
		if !contains(sink.Colorspaces, s) {
			return false
		}
		o.Colorspace = s
		return true
	},
	OptFastDCT: func(o *sink.Options, v interface{}) bool {
		b, ok := v.(bool)
		if ok {
			o.FastDCT = b
		}
		return ok
	},
	OptSubsampling: func(o *sink.Options, v interface{}) bool {
		var s string
		switch t := v.(type) {
		case string:
			s = strings.TrimSpace(t)
		default:
			n, ok := number(v)
			if !ok || n != math.Trunc(n) {
				return false
			}
			s = strconv.Itoa(int(n))
		}
		if !contains(sink.Subsamplings, s) {
			return false
		}
		o.Subsampling = s
		return true
	},
	OptReduction: func(o *sink.Options, v interface{}) bool {
		n, ok := number(v)
		if !ok || n < 0 || n > 90 {
			return false
		}
		o.Reduction = int(n)
		return true
	},
	OptInfinite: func(o *sink.Options, v interface{}) bool {
		b, ok := v.(bool)
		if ok {
			o.Infinite = b
		}
		return ok
	},
	OptFrameRate: func(o *sink.Options, v interface{}) bool {
		hz, ok := number(v)
		if !ok || hz < 0.1 || hz > 60 {
			return false
		}
		o.Interval = time.Duration(float64(time.Second) / hz)
		return true
	},
	OptResolution: func(o *sink.Options, v interface{}) bool {
		l, ok := v.([]interface{})
		if !ok || len(l) != 2 {
			return false
		}
		w, wok := number(l[0])
		h, hok := number(l[1])
		if !wok || !hok || w < 1 || h < 1 || w != math.Trunc(w) || h != math.Trunc(h) {
			return false
		}
		o.Resolution = image.Pt(int(w), int(h))
		return true
	},
}

// parseStreamOptions applies the recognized entries of m over the defaults.
// Unknown names and invalid values are skipped with a warning.
func parseStreamOptions(m map[string]interface{}) sink.Options {
	o := sink.DefaultOptions()
	for k, v := range m {
		name := strings.TrimSpace(k)
		set, ok := optionSetters[name]
		if !ok {
			log.Warnf("Skipped unknown stream option %q", name)
			continue
		}
		if !set(&o, v) {
			log.Warnf("Skipped invalid `%s` value %v", name, v)
		}
	}
	return o
}

// number accepts the numeric types produced by the JSON and YAML decoders.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
