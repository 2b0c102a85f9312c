package device

import (
	"strings"
)

type Classification struct {
	DeviceType        string
	OS                string
	Browser           string
	IsBot             bool
	IsStreamingDevice bool
}

const (
	TypeDesktop   = "desktop"
	TypeMobile    = "mobile"
	TypeTablet    = "tablet"
	TypeBot       = "bot"
	TypeStreaming = "tv"
)

var botKeywords = []string{
	"bot", "crawler", "spider", "slurp", "curl/", "wget/", "python-requests",
	"headlesschrome", "facebookexternalhit", "monitoring",
}

var streamingKeywords = []string{
	"smart-tv", "smarttv", "googletv", "appletv", "apple tv", "roku",
	"chromecast", "crkey", "shield android tv", "aftb", "aftt", "afts", "bravia",
	"netcast", "webos", "tizen", "hbbtv", "playstation", "xbox", "kodi", "mibox",
}

var tabletKeywords = []string{"ipad", "tablet", "kindle", "silk/", "playbook", "sm-t"}

var mobileKeywords = []string{"mobile", "iphone", "ipod", "android", "blackberry", "windows phone", "opera mini"}

// Classify maps a User-Agent string to a device classification. It is a
// pure, total function: unknown or empty input yields the desktop/Unknown
// default rather than an error, so it is safe to call inline on every
// request.
func Classify(userAgent string) Classification {
	ua := strings.ToLower(userAgent)

	c := Classification{
		DeviceType: TypeDesktop,
		OS:         detectOS(ua),
		Browser:    detectBrowser(ua),
	}

	for _, kw := range botKeywords {
		if strings.Contains(ua, kw) {
			c.DeviceType = TypeBot
			c.IsBot = true
			return c
		}
	}

	for _, kw := range streamingKeywords {
		if strings.Contains(ua, kw) {
			c.DeviceType = TypeStreaming
			c.IsStreamingDevice = true
			return c
		}
	}

	// Tablet before mobile: Android tablet UAs also contain "android".
	for _, kw := range tabletKeywords {
		if strings.Contains(ua, kw) {
			c.DeviceType = TypeTablet
			return c
		}
	}

	for _, kw := range mobileKeywords {
		if strings.Contains(ua, kw) {
			c.DeviceType = TypeMobile
			return c
		}
	}

	return c
}

func detectOS(ua string) string {
	switch {
	case strings.Contains(ua, "windows phone"):
		return "Windows Phone"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		return "iOS"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "cros"):
		return "ChromeOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

func detectBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge/"):
		return "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "firefox/"):
		return "Firefox"
	case strings.Contains(ua, "chrome/"):
		return "Chrome"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	default:
		return "Unknown"
	}
}
