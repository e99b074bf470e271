package client

import (
	"fmt"

	"github.com/omochice/fcchat/pkg/protocol"
)

// NegotiateJoinChannel picks the channel to join for channel cid of model
// mid. Free chat channels are kept. Session channels are kept only for club
// shows the client holds a membership for; a club show without one fails
// with ErrNoClubAccess. Every other session channel, group shows included,
// falls back to the model's free chat channel.
func (c *Client) NegotiateJoinChannel(cid, mid int) (int, error) {
	ct, err := protocol.ClassifyChannel(cid, c.opts.Platform)
	if err != nil {
		return 0, err
	}
	switch ct {
	case protocol.ChannelNone:
		return 0, fmt.Errorf("%w: %d is a user id", protocol.ErrUnknownChannel, cid)
	case protocol.ChannelFreeChat:
		return cid, nil
	}

	if m, ok := c.registry.Get(mid); ok && m.BestSession().VideoState() == protocol.StateClub {
		c.mu.Lock()
		_, member := c.clubShows[mid]
		c.mu.Unlock()
		if !member {
			return 0, fmt.Errorf("%w: model %d", ErrNoClubAccess, mid)
		}
		return cid, nil
	}
	return protocol.ToChannelID(mid, protocol.ChannelFreeChat, c.opts.Platform)
}

// toFreeIfModel maps a user id to the user's free chat channel and keeps
// channel ids.
func (c *Client) toFreeIfModel(id int) int {
	ct, err := protocol.ClassifyChannel(id, c.opts.Platform)
	if err != nil || ct != protocol.ChannelNone {
		return id
	}
	free, err := protocol.ToChannelID(id, protocol.ChannelFreeChat, c.opts.Platform)
	if err != nil {
		return id
	}
	return free
}
