package device

import (
	"strings"

	"github.com/qrtrail/qrtrail/internal/model"
)

// Classify maps a User-Agent string to a coarse device class. It only
// needs the four buckets the scan analytics break down by, so substring
// checks cover it; tablet markers are tested before mobile ones because
// Android tablets also advertise "Android".
func Classify(userAgent string) model.DeviceClass {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return model.DeviceUnknown
	}

	switch {
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "kindle"),
		strings.Contains(ua, "silk/"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return model.DeviceTablet
	case strings.Contains(ua, "iphone"),
		strings.Contains(ua, "ipod"),
		strings.Contains(ua, "android"),
		strings.Contains(ua, "windows phone"),
		strings.Contains(ua, "blackberry"),
		strings.Contains(ua, "mobile"):
		return model.DeviceMobile
	case strings.Contains(ua, "windows nt"),
		strings.Contains(ua, "macintosh"),
		strings.Contains(ua, "x11"),
		strings.Contains(ua, "linux"),
		strings.Contains(ua, "cros"):
		return model.DeviceDesktop
	default:
		return model.DeviceUnknown
	}
}
