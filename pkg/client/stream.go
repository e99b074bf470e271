package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/omochice/fcchat/pkg/protocol"
)

// StreamURL returns the HLS playlist of a model broadcasting in free chat.
// It fails with ErrNoStream when the model is unknown, not in free chat or
// has no video server.
func (c *Client) StreamURL(ctx context.Context, uid int) (string, error) {
	uid = protocol.ToUserID(uid)
	m, ok := c.registry.Get(uid)
	if !ok {
		return "", fmt.Errorf("%w: unknown model %d", ErrNoStream, uid)
	}
	best := m.BestSession()
	camserv, ok := best.Int("camserv")
	if !ok || camserv == 0 || best.VideoState() != protocol.StateFreeChat {
		return "", fmt.Errorf("%w: model %d", ErrNoStream, uid)
	}
	dir, err := c.directory(ctx)
	if err != nil {
		return "", err
	}

	room, err := protocol.ToChannelID(uid, protocol.ChannelFreeChat, c.opts.Platform)
	if err != nil {
		return "", err
	}
	prefix := "mfc"
	if c.opts.Platform == protocol.PlatformCamYou {
		prefix = "cam"
	}
	phase, _ := best.Text("phase")
	base := c.opts.Platform.BaseDomain()
	key := strconv.Itoa(camserv)
	nc := rand.Uint64()

	if server, ok := dir.WzobsServers[key]; ok {
		return fmt.Sprintf("https://%s.%s:443/NxServer/ngrp:%s_%s_%d.f4v_mobile/playlist.m3u8?nc=%d",
			server, base, prefix, phase, room, nc), nil
	}
	if server, ok := dir.NgVideoServers[key]; ok {
		c.mu.Lock()
		auth := c.stream
		c.mu.Unlock()
		return fmt.Sprintf("https://%s.%s:8444/x-hls/%d/%d/%s/%s/%s_%s_%d.m3u8",
			server, base, auth.cxid, room, auth.password, auth.vidctx, prefix, phase, room), nil
	}
	return fmt.Sprintf("https://video%d.%s:443/NxServer/ngrp:%s_%d.f4v_mobile/playlist.m3u8?nc=%d",
		camserv-500, base, prefix, room, nc), nil
}
