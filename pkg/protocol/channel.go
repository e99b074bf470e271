package protocol

import (
	"errors"
	"fmt"
)

// Numeric windows of the channel id space.
const (
	UserIDSpace      = 100000000
	FreeChatStart    = 100000000
	SessionChanStart = 200000000
	SessionChanEnd   = 300000000
	CamYouChanStart  = 400000000
	CamYouChanEnd    = 500000000
)

// ChannelType classifies a channel id.
type ChannelType int

const (
	// ChannelNone means the id is a plain user id.
	ChannelNone ChannelType = iota
	ChannelFreeChat
	ChannelSession
)

// String returns the channel type name
func (ct ChannelType) String() string {
	switch ct {
	case ChannelNone:
		return "none"
	case ChannelFreeChat:
		return "freechat"
	case ChannelSession:
		return "session"
	default:
		return "unknown"
	}
}

var (
	// ErrUnknownChannel is returned for ids outside every known channel window.
	ErrUnknownChannel = errors.New("id is not in a known channel range")
	// ErrUnknownChannelType is returned for channel types ToChannelID cannot build.
	ErrUnknownChannelType = errors.New("unknown channel type")
)

// ToUserID reduces a channel id to the user id it belongs to.
func ToUserID(id int) int {
	return id % UserIDSpace
}

// ToChannelID converts a user or channel id to a channel id of the given type.
func ToChannelID(id int, ct ChannelType, platform Platform) (int, error) {
	id = ToUserID(id)
	switch ct {
	case ChannelFreeChat:
		return id + freeChatBase(platform), nil
	case ChannelSession:
		return id + SessionChanStart, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannelType, ct)
	}
}

// ClassifyChannel returns the type of channel id, or ChannelNone when id is
// a user id.
func ClassifyChannel(id int, platform Platform) (ChannelType, error) {
	if ToUserID(id) == id {
		return ChannelNone, nil
	}

	if platform == PlatformCamYou {
		if id > CamYouChanStart && id < CamYouChanEnd {
			return ChannelFreeChat, nil
		}
	} else if id > FreeChatStart && id < SessionChanStart {
		return ChannelFreeChat, nil
	}

	if id > SessionChanStart && id < SessionChanEnd {
		return ChannelSession, nil
	}

	return ChannelNone, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
}

// ToRoomID returns the free chat room id for a user id, leaving room ids
// unchanged.
func ToRoomID(id int, platform Platform) int {
	base := freeChatBase(platform)
	if id < base {
		id += base
	}
	return id
}

func freeChatBase(platform Platform) int {
	if platform == PlatformCamYou {
		return CamYouChanStart
	}
	return FreeChatStart
}
