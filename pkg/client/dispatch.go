package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/omochice/fcchat/pkg/model"
	"github.com/omochice/fcchat/pkg/protocol"
)

// handlePacket dispatches p and every packet synthesized while handling
// it, in FIFO order. Dispatch is serialized per client.
func (c *Client) handlePacket(p *protocol.Packet) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	queue := []*protocol.Packet{p}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		queue = append(queue, c.dispatch(next)...)
	}
}

func (c *Client) dispatch(p *protocol.Packet) []*protocol.Packet {
	now := time.Now()
	c.mu.Lock()
	c.lastPacket = now
	c.mu.Unlock()

	c.metrics.packet(p.Type)
	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "packet", slog.String("packet", p.String()))
	}

	var synthetic []*protocol.Packet
	switch p.Type {
	case protocol.FCTypeDetails, protocol.FCTypeRoomHelper, protocol.FCTypeSessionState,
		protocol.FCTypeAddFriend, protocol.FCTypeAddIgnore, protocol.FCTypeCMesg,
		protocol.FCTypePMesg, protocol.FCTypeTxProfile, protocol.FCTypeUsernameLookup,
		protocol.FCTypeMyCamState, protocol.FCTypeMyWebcam, protocol.FCTypeJoinChan:
		c.handleStatePacket(p, now)
	case protocol.FCTypeLogin:
		c.handleLogin(p)
	case protocol.FCTypeTags:
		c.mergeTagMap(p.Payload)
	case protocol.FCTypeBookmarks:
		c.handleBookmarks(p)
	case protocol.FCTypeExtData:
		c.handleExtData(p)
	case protocol.FCTypeManageList:
		synthetic = c.handleManageList(p)
	case protocol.FCTypeRoomData:
		c.handleRoomData(p)
	case protocol.FCTypeTKX:
		c.handleTKX(p)
	case protocol.FCTypeTokenInc:
		if p.Payload == nil {
			c.mu.Lock()
			c.tokens = p.Arg1
			c.mu.Unlock()
		}
	case protocol.FCTypeClubShow:
		c.handleClubShow(p)
	}

	c.pending.resolve(p)
	c.emitPacket(p)
	return synthetic
}

func (c *Client) handleStatePacket(p *protocol.Packet, now time.Time) {
	c.mu.Lock()
	c.lastState = now
	if p.Type == protocol.FCTypeDetails && p.To == c.sessionID {
		c.tokens = p.Arg1
	}
	c.mu.Unlock()

	// 100 is the first real user id; lower arg2 values are response codes.
	if (p.Type == protocol.FCTypeDetails && p.From == int(protocol.FCTypeTokenInc)) ||
		(p.Type == protocol.FCTypeRoomHelper && p.Arg2 < 100) ||
		(p.Type == protocol.FCTypeJoinChan && p.Arg2 == protocol.ChanPart) {
		return
	}

	if p.Type == protocol.FCTypeRoomHelper {
		c.mu.Lock()
		if p.Arg2 >= 100 || p.Arg2 == protocol.ResponseSuccess {
			c.roomHelper[p.Arg1] = true
		}
		if p.Arg2 == protocol.ResponseSuspend {
			c.roomHelper[p.Arg1] = false
		}
		c.mu.Unlock()
	}

	m, ok := p.PayloadMap()
	if !ok {
		return
	}
	f := model.FragmentFromMap(m)

	uid := -1
	if f.UID != nil {
		uid = *f.UID
		if uid == 0 && f.SID != nil && *f.SID > 0 {
			uid = *f.SID
		}
	} else if id, ok := p.AboutID(); ok {
		uid = id
	}
	if uid == -1 {
		return
	}
	if f.Level != nil && *f.Level != protocol.LevelModel {
		return
	}
	c.mergeFragment(uid, f)
}

// mergeFragment merges f into model uid. Unknown uids are only created
// when f says the user is a model.
func (c *Client) mergeFragment(uid int, f model.Fragment) {
	if f.Level != nil && *f.Level == protocol.LevelModel {
		c.registry.Merge(uid, f)
		return
	}
	if m, ok := c.registry.Get(uid); ok {
		m.Merge(f)
	}
}

func (c *Client) handleLogin(p *protocol.Packet) {
	c.mu.Lock()
	if c.loginTimer != nil {
		c.loginTimer.Stop()
		c.loginTimer = nil
	}
	name, ok := p.PayloadString()
	if p.Arg1 != protocol.ResponseSuccess || !ok {
		c.mu.Unlock()
		return
	}
	c.sessionID = p.To
	c.uid = p.Arg2
	c.username = name
	c.backoff.Reset()
	c.mu.Unlock()

	c.logger.Info("login handshake completed", "username", name, "session", p.To)
	c.emit(Event{Type: EventLoggedIn})
}

// mergeTagMap merges a {"<uid>": ["tag", ...]} payload.
func (c *Client) mergeTagMap(payload any) bool {
	tags, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	for key, v := range tags {
		uid, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		names := make([]string, 0, len(list))
		for _, t := range list {
			if s, ok := t.(string); ok {
				names = append(names, s)
			}
		}
		c.registry.MergeTags(uid, names)
	}
	return true
}

func (c *Client) handleBookmarks(p *protocol.Packet) {
	m, ok := p.PayloadMap()
	if !ok {
		return
	}
	list, ok := m["bookmarks"].([]any)
	if !ok {
		return
	}
	for _, b := range list {
		bm, ok := b.(map[string]any)
		if !ok {
			continue
		}
		f := model.FragmentFromMap(bm)
		if f.UID == nil {
			continue
		}
		c.registry.Merge(*f.UID, f)
	}
}

func (c *Client) handleManageList(p *protocol.Packet) []*protocol.Packet {
	m, ok := p.PayloadMap()
	if p.Arg2 <= 0 || !ok {
		return nil
	}
	raw, ok := m["rdata"]
	if !ok {
		return nil
	}
	rdata := ExpandListData(raw, c.logger)

	switch p.Arg2 {
	case protocol.ListRoommates, protocol.ListFriends, protocol.ListIgnores:
		c.mergeUserList(rdata)
	case protocol.ListCams:
		if c.mergeUserList(rdata) {
			c.listLoaded(true)
		}
	case protocol.ListTags:
		if c.mergeTagMap(rdata) {
			c.listLoaded(false)
		}
	case protocol.ListShareClubs, protocol.ListShareClubMemberships:
	case protocol.ListShareClubShows:
		list, ok := rdata.([]any)
		if !ok {
			return nil
		}
		var out []*protocol.Packet
		for _, item := range list {
			show, ok := item.(map[string]any)
			if !ok {
				continue
			}
			mid, _ := protocol.AsInt(show["model"])
			out = append(out, protocol.NewPacket(protocol.FCTypeClubShow, mid, p.To, p.Arg1, p.Arg2, 0, show))
		}
		return out
	default:
		c.logger.Warn("unhandled list type on MANAGELIST packet", "list", p.Arg2)
	}
	return nil
}

func (c *Client) mergeUserList(rdata any) bool {
	list, ok := rdata.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		user, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f := model.FragmentFromMap(user)
		if f.UID == nil {
			continue
		}
		c.mergeFragment(*f.UID, f)
	}
	return true
}

// listLoaded records that the model list (cams) or the tag list arrived
// and fires EventModelsLoaded once both did.
func (c *Client) listLoaded(cams bool) {
	c.mu.Lock()
	var fire bool
	if cams && !c.completedModels {
		c.completedModels = true
		fire = c.completedTags
	}
	if !cams && !c.completedTags {
		c.completedTags = true
		fire = c.completedModels
	}
	c.mu.Unlock()
	if fire {
		c.emit(Event{Type: EventModelsLoaded})
	}
}

func (c *Client) handleRoomData(p *protocol.Packet) {
	if p.Arg1 != 0 || p.Arg2 != 0 {
		return
	}
	switch counts := p.Payload.(type) {
	case []any:
		for i := 0; i+1 < len(counts); i += 2 {
			if uid, ok := protocol.AsInt(counts[i]); ok {
				c.setRoomCount(uid, counts[i+1])
			}
		}
	case map[string]any:
		for key, rc := range counts {
			if uid, err := strconv.Atoi(key); err == nil {
				c.setRoomCount(uid, rc)
			}
		}
	}
}

func (c *Client) setRoomCount(uid int, rc any) {
	m := c.registry.GetOrCreate(uid)
	m.Merge(model.FragmentFromMap(map[string]any{
		"sid": int64(m.BestSession().ID),
		"m":   map[string]any{"rc": rc},
	}))
}

func (c *Client) handleTKX(p *protocol.Packet) {
	m, ok := p.PayloadMap()
	if !ok {
		return
	}
	cxid, _ := protocol.AsInt(m["cxid"])
	tkx, _ := m["tkx"].(string)
	ctxenc, _ := m["ctxenc"].(string)
	if cxid == 0 || tkx == "" || ctxenc == "" {
		return
	}
	vidctx := ctxenc
	if parts := strings.Split(ctxenc, "/"); len(parts) > 1 {
		vidctx = parts[1]
	}
	c.mu.Lock()
	c.stream = streamAuth{cxid: cxid, password: tkx, vidctx: vidctx}
	c.mu.Unlock()
}

func (c *Client) handleClubShow(p *protocol.Packet) {
	m, ok := p.PayloadMap()
	if !ok {
		return
	}
	mid, ok := protocol.AsInt(m["model"])
	if !ok {
		return
	}
	op, _ := protocol.AsInt(m["op"])
	_, hasTicket := m["tksid"]

	c.mu.Lock()
	defer c.mu.Unlock()
	if op == protocol.ChanWelcome && hasTicket {
		c.clubShows[mid] = struct{}{}
	} else {
		delete(c.clubShows, mid)
	}
}

// handleExtData fetches deferred payloads addressed to this session and
// dispatches the packet they complete.
func (c *Client) handleExtData(p *protocol.Packet) {
	if p.Arg2 != protocol.ExtRedisJSON {
		return
	}
	c.mu.Lock()
	mine := p.To == c.sessionID
	c.mu.Unlock()
	m, ok := p.PayloadMap()
	if !mine || !ok {
		return
	}
	respkey, ok := m["respkey"]
	if !ok {
		return
	}
	inner, _ := m["msg"].(map[string]any)
	msglen, _ := protocol.AsInt(m["msglen"])
	url := fmt.Sprintf("%s/php/FcwExtResp.php?respkey=%v&type=%v&opts=%v&serv=%v&",
		c.opts.WebBaseURL, respkey, m["type"], m["opts"], m["serv"])

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		defer cancel()
		payload, err := c.fetchJSON(ctx, url)
		if err != nil {
			c.logger.Warn("ext data fetch failed", "url", url, "error", err)
			return
		}
		field := func(k string) int {
			n, _ := protocol.AsInt(inner[k])
			return n
		}
		c.handlePacket(protocol.NewPacket(protocol.FCType(field("type")), field("from"), field("to"), field("arg1"), field("arg2"), msglen, payload))
	}()
}

// Replay dispatches every packet of a capture as if it had been received,
// and returns how many packets were replayed.
func (c *Client) Replay(ctx context.Context, r io.Reader) (int, error) {
	cr := protocol.NewCaptureReader(r)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		p, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("replay packet %d: %w", n+1, err)
		}
		c.handlePacket(p)
		n++
	}
}

func (c *Client) record(p *protocol.Packet) {
	if c.capture == nil {
		return
	}
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if err := c.capture.Write(p); err != nil {
		c.logger.Warn("capture write failed", "error", err)
	}
}
