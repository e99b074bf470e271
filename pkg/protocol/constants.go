package protocol

// Magic opens every binary frame.
const Magic int32 = -2027771214

// Ports used by the chat servers.
const (
	FlashPort     = 8100
	WebSocketPort = 443
)

// WebSocketHello is the first text message a websocket client sends.
const WebSocketHello = "fcsws_20180422\n\x00"

// State is a model's video state.
type State int

const (
	StateFreeChat  State = 0
	StateAway      State = 2
	StatePrivate   State = 12
	StateGroupShow State = 13
	StateClub      State = 14
	StateOnline    State = 90
	StateOffline   State = 127
)

// String returns the name of the video state
func (s State) String() string {
	switch s {
	case StateFreeChat:
		return "FreeChat"
	case StateAway:
		return "Away"
	case StatePrivate:
		return "Private"
	case StateGroupShow:
		return "GroupShow"
	case StateClub:
		return "Club"
	case StateOnline:
		return "Online"
	case StateOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// User levels.
const (
	LevelGuest   = 0
	LevelBasic   = 1
	LevelPremium = 2
	LevelModel   = 4
	LevelAdmin   = 5
)

// Model option bits carried in the "flags" field of model details.
const (
	OptTruePvt   = 8
	OptModelSW   = 2048
	OptGuestMute = 4096
	OptBasicMute = 8192
)

// Channel operations (JOINCHAN arg2, CLUBSHOW op).
const (
	ChanJoin    = 1
	ChanPart    = 2
	ChanHistory = 8
	ChanWelcome = 32
)

// Server response codes.
const (
	ResponseSuccess = 0
	ResponseError   = 1
	ResponseSuspend = 3
)

// List kinds carried by MANAGELIST arg2.
const (
	ListFriends              = 1
	ListIgnores              = 2
	ListBookmarks            = 3
	ListTags                 = 20
	ListCams                 = 21
	ListRoommates            = 22
	ListShareClubs           = 24
	ListShareClubMemberships = 25
	ListShareClubShows       = 26
)

// ExtRedisJSON marks EXTDATA packets holding a deferred JSON response.
const ExtRedisJSON = 256

// Login protocol versions.
const (
	LoginVersionFlash     = 20071025
	LoginVersionWebSocket = 20080910
)

// Platform selects the site variant a client talks to.
type Platform int

const (
	PlatformMFC    Platform = 1
	PlatformCamYou Platform = 2
)

// String returns the platform name
func (p Platform) String() string {
	switch p {
	case PlatformMFC:
		return "mfc"
	case PlatformCamYou:
		return "camyou"
	default:
		return "unknown"
	}
}

// BaseDomain returns the site domain for the platform.
func (p Platform) BaseDomain() string {
	if p == PlatformCamYou {
		return "camyou.com"
	}
	return "myfreecams.com"
}
