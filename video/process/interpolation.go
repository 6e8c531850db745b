package process

import (
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// interpolationLinearExact is cv::INTER_LINEAR_EXACT, added in OpenCV 3.4.2.
const interpolationLinearExact gocv.InterpolationFlags = 5

type interpolation struct {
	name  string
	flag  gocv.InterpolationFlags
	since [3]int
}

// Candidates for downscaling, most preferred first.
var interpolations = []interpolation{
	{"linear_exact", interpolationLinearExact, [3]int{3, 4, 2}},
	{"linear", gocv.InterpolationLinear, [3]int{}},
	{"area", gocv.InterpolationArea, [3]int{}},
}

// BestInterpolation returns the first downscaling interpolation supported by
// the OpenCV library in use.
func BestInterpolation() gocv.InterpolationFlags {
	v := parseVersion(gocv.OpenCVVersion())
	for _, i := range interpolations {
		if !versionLess(v, i.since) {
			log.Debugf("Using %s interpolation for frame reduction", i.name)
			return i.flag
		}
	}
	return gocv.InterpolationArea
}

// parseVersion reads "major.minor.patch", ignoring any suffix.
func parseVersion(s string) [3]int {
	var v [3]int
	for i, part := range strings.SplitN(s, ".", 3) {
		if j := strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' }); j >= 0 {
			part = part[:j]
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		v[i] = n
	}
	return v
}

func versionLess(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
