package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel = "info"
	DefaultJSONLog  = false

	DefaultHeadless         = false
	DefaultChannel          = "chrome"
	DefaultInteractionDelay = 100 * time.Millisecond
	DefaultOpTimeout        = 30 * time.Second
	DefaultLaunchTimeout    = 30 * time.Second
	DefaultUserAgent        = ""

	DefaultSiteURL    = "https://www.xiaohongshu.com"
	DefaultExploreURL = "https://www.xiaohongshu.com/explore"

	DefaultLoginSettle       = 3 * time.Second
	DefaultLoginPollAttempts = 60
	DefaultLoginPollInterval = time.Second

	DefaultDetailRateLimitRPS   = 1.0
	DefaultDetailRateLimitBurst = 1
	DefaultImageRateLimitRPS    = 5.0
	DefaultImageRateLimitBurst  = 5

	DefaultOCRLanguages      = "chi_sim+eng"
	DefaultOCRWorkers        = 2
	DefaultImageTimeout      = 10 * time.Second
	DefaultCacheTTL          = time.Hour
	DefaultCacheMaxSizeBytes = 8 * 1024 * 1024 // 8MB of recognized text

	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3

	MaxLoginPollAttempts = 600
)

// Browser channels accepted by --channel
var Channels = []string{"chrome", "chromium", "msedge"}

// DefaultEvasionFlags are passed to every launched browser
var DefaultEvasionFlags = []string{
	"disable-blink-features=AutomationControlled",
	"disable-infobars",
	"window-size=1280,900",
}
