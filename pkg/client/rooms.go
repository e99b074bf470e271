package client

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/omochice/fcchat/pkg/protocol"
)

// JoinRoom joins the public room of a model, or the given channel, and
// returns the packet that confirmed the join. Refusals such as bans come
// back as *RejectedError.
func (c *Client) JoinRoom(ctx context.Context, id int) (*protocol.Packet, error) {
	modelID := protocol.ToUserID(id)
	roomID, err := c.NegotiateJoinChannel(c.toFreeIfModel(id), modelID)
	if err != nil {
		return nil, err
	}

	arg2 := protocol.ChanJoin | protocol.ChanHistory

	match := func(p *protocol.Packet) (bool, error) {
		switch p.Type {
		case protocol.FCTypeJoinChan, protocol.FCTypeZBan, protocol.FCTypeBanChan, protocol.FCTypeCMesg:
		default:
			return false, nil
		}
		if p.To != roomID && p.Arg1 != roomID {
			return false, nil
		}
		switch p.Type {
		case protocol.FCTypeCMesg:
			return true, nil
		case protocol.FCTypeJoinChan:
			switch p.Arg2 {
			case protocol.ChanJoin:
				return true, nil
			case protocol.ChanPart:
				return true, &RejectedError{Packet: p}
			}
			c.logger.Warn("unexpected JOINCHAN response", "packet", p.String())
			return false, nil
		default:
			return true, &RejectedError{Packet: p}
		}
	}

	return c.roundTrip(ctx, "join_room", c.opts.JoinTimeout, match, func() error {
		return c.TxCmd(protocol.FCTypeJoinChan, 0, roomID, arg2, "")
	}, attribute.Int("room", roomID))
}

// LeaveRoom leaves the public room of a model or the given channel. It is
// a no-op without an active connection.
func (c *Client) LeaveRoom(id int) error {
	if c.State() != StateActive {
		return nil
	}
	return c.TxCmd(protocol.FCTypeJoinChan, 0, c.toFreeIfModel(id), protocol.ChanPart, "")
}

// SendChat sends msg to a model's public room or a channel the client has
// joined.
func (c *Client) SendChat(ctx context.Context, id int, msg string) error {
	encoded, err := c.opts.ChatEncoder.EncodeChat(ctx, msg)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	return c.TxCmd(protocol.FCTypeCMesg, c.toFreeIfModel(id), 0, 0, encoded)
}

// SendPM sends a private message to a user.
func (c *Client) SendPM(ctx context.Context, id int, msg string) error {
	encoded, err := c.opts.ChatEncoder.EncodeChat(ctx, msg)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	return c.TxCmd(protocol.FCTypePMesg, protocol.ToUserID(id), 0, 0, encoded)
}

// User is the answer to a user lookup.
type User struct {
	UID        int
	SID        int
	Name       string
	Level      int
	VideoState protocol.State
	Fields     map[string]any
}

func userFromMap(m map[string]any) *User {
	u := &User{Level: -1, VideoState: protocol.StateOffline, Fields: m}
	u.UID, _ = protocol.AsInt(m["uid"])
	u.SID, _ = protocol.AsInt(m["sid"])
	u.Name, _ = protocol.AsString(m["nm"])
	if lv, ok := protocol.AsInt(m["lv"]); ok {
		u.Level = lv
	}
	if vs, ok := protocol.AsInt(m["vs"]); ok {
		u.VideoState = protocol.State(vs)
	}
	return u
}

// Query ids correlate lookups with their answers across every client of
// the process.
var lastQueryID atomic.Int64

func init() {
	lastQueryID.Store(19)
}

// QueryUser looks a user up by name, or by id when nameOrID is numeric.
// A user that does not exist yields (nil, nil).
func (c *Client) QueryUser(ctx context.Context, nameOrID string) (*User, error) {
	if id, err := strconv.Atoi(nameOrID); err == nil {
		return c.QueryUserID(ctx, id)
	}
	return c.queryUser(ctx, 0, nameOrID)
}

// QueryUserID looks a user up by id.
func (c *Client) QueryUserID(ctx context.Context, id int) (*User, error) {
	return c.queryUser(ctx, id, "")
}

func (c *Client) queryUser(ctx context.Context, id int, name string) (*User, error) {
	qid := int(lastQueryID.Add(1))
	p, err := c.roundTrip(ctx, "query_user", c.opts.RequestTimeout, func(p *protocol.Packet) (bool, error) {
		return p.Type == protocol.FCTypeUsernameLookup && p.Arg1 == qid, nil
	}, func() error {
		return c.TxCmd(protocol.FCTypeUsernameLookup, 0, qid, id, name)
	}, attribute.Int("query_id", qid))
	if err != nil {
		return nil, err
	}
	m, ok := p.PayloadMap()
	if !ok {
		return nil, nil
	}
	return userFromMap(m), nil
}

// Room helper error messages.
const (
	msgHelperModelOffline = "Model offline, cannot execute room helper cmd"
	msgHelperUnauthorized = "Not authorized"
)

// roomHelperMatcher matches the server's answer to a room helper command
// for model id.
func (c *Client) roomHelperMatcher(id int) matcher {
	return func(p *protocol.Packet) (bool, error) {
		if p.Type != protocol.FCTypeRoomHelper || p.Arg1 != id {
			return false, nil
		}
		switch p.Arg2 {
		case protocol.ResponseSuccess:
			return true, nil
		case protocol.ResponseError:
			var msg string
			if m, ok := p.PayloadMap(); ok {
				msg, _ = m["_msg"].(string)
			}
			switch msg {
			case msgHelperModelOffline:
				c.mu.Lock()
				c.roomHelper[id] = false
				c.mu.Unlock()
				return true, ErrNotRoomHelper
			case msgHelperUnauthorized:
				return true, ErrModelOffline
			}
			return true, &RejectedError{Packet: p}
		}
		return false, nil
	}
}

func (c *Client) roomHelperCmd(ctx context.Context, name string, id int, cmd protocol.FCType, options map[string]any, extra matcher) (*protocol.Packet, error) {
	if !c.IsRoomHelper(id) {
		return nil, ErrNotRoomHelper
	}
	payload, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	match := c.roomHelperMatcher(id)
	if extra != nil {
		helper := match
		match = func(p *protocol.Packet) (bool, error) {
			if done, err := extra(p); done {
				return done, err
			}
			return helper(p)
		}
	}
	return c.roundTrip(ctx, name, c.opts.RequestTimeout, match, func() error {
		return c.TxCmd(protocol.FCTypeRoomHelper, 0, int(cmd), id, string(payload))
	}, attribute.Int("model", id))
}

func (c *Client) moderate(ctx context.Context, id int, action, user string, clearChat bool) (*protocol.Packet, error) {
	if !c.IsRoomHelper(id) {
		return nil, ErrNotRoomHelper
	}
	u, err := c.QueryUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, user)
	}

	cmd := protocol.FCTypeZBan
	options := map[string]any{"model": id, "op": action}
	if action == "kick" {
		cmd = protocol.FCTypeChanOp
		options["chan"] = protocol.ToRoomID(id, c.opts.Platform)
		options["users"] = []int{u.SID}
	} else {
		options["username"] = u.Name
		options["sid"] = u.SID
	}
	options["type"] = int(cmd)
	if action == "mute" || action == "unmute" {
		options["ztype"] = "m"
	}
	if clearChat {
		options["clearchat"] = 1
	}
	return c.roomHelperCmd(ctx, action+"_user", id, cmd, options, nil)
}

// BanUser bans a user, given by name or id, from the room of model id.
func (c *Client) BanUser(ctx context.Context, id int, user string, clearChat bool) (*protocol.Packet, error) {
	return c.moderate(ctx, id, "ban", user, clearChat)
}

// UnbanUser lifts a ban in the room of model id.
func (c *Client) UnbanUser(ctx context.Context, id int, user string) (*protocol.Packet, error) {
	return c.moderate(ctx, id, "unban", user, false)
}

// MuteUser mutes a user in the room of model id.
func (c *Client) MuteUser(ctx context.Context, id int, user string, clearChat bool) (*protocol.Packet, error) {
	return c.moderate(ctx, id, "mute", user, clearChat)
}

// UnmuteUser lifts a mute in the room of model id.
func (c *Client) UnmuteUser(ctx context.Context, id int, user string) (*protocol.Packet, error) {
	return c.moderate(ctx, id, "unmute", user, false)
}

// KickUser kicks a user out of the room of model id.
func (c *Client) KickUser(ctx context.Context, id int, user string) (*protocol.Packet, error) {
	return c.moderate(ctx, id, "kick", user, false)
}

var (
	wbrTag    = regexp.MustCompile(`<wbr>`)
	longWord  = regexp.MustCompile(`(\S{20})`)
	wbrMarker = regexp.MustCompile(`(?:\s%%WBR%%\s)+`)
)

// FormatTopic escapes a room topic and inserts word breaks into runs of 20
// or more non-space characters.
func FormatTopic(topic string) string {
	s := wbrTag.ReplaceAllString(topic, " %%WBR%% ")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = longWord.ReplaceAllString(s, "$1 %%WBR%% ")
	return wbrMarker.ReplaceAllString(s, "<wbr>")
}

// SetTopic sets the topic of model id's room.
func (c *Client) SetTopic(ctx context.Context, id int, topic string) (*protocol.Packet, error) {
	options := map[string]any{
		"model": id,
		"type":  int(protocol.FCTypeSetWelcome),
		"topic": FormatTopic(topic),
	}
	return c.roomHelperCmd(ctx, "set_topic", id, protocol.FCTypeSetWelcome, options, nil)
}

// SetCountdown starts, adjusts or, with countdown false, ends the tip
// countdown in model id's room.
func (c *Client) SetCountdown(ctx context.Context, id, total int, countdown bool, sofar int) (*protocol.Packet, error) {
	options := map[string]any{
		"model":     id,
		"type":      int(protocol.FCTypeRoomData),
		"total":     total,
		"sofar":     sofar,
		"countdown": countdown,
	}
	roomData := func(p *protocol.Packet) (bool, error) {
		if p.Type != protocol.FCTypeRoomData {
			return false, nil
		}
		m, ok := p.PayloadMap()
		if !ok {
			return false, nil
		}
		model, ok := protocol.AsInt(m["model"])
		return ok && model == id, nil
	}
	return c.roomHelperCmd(ctx, "set_countdown", id, protocol.FCTypeRoomData, options, roomData)
}

// ConnectAndWaitForModels connects, logs in and returns once the initial
// model and tag lists were processed. It returns at once when the client
// is already active.
func (c *Client) ConnectAndWaitForModels(ctx context.Context) error {
	if c.State() == StateActive {
		return nil
	}
	loaded := make(chan struct{}, 1)
	unsubscribe := c.OnEvent(func(e Event) {
		if e.Type != EventModelsLoaded {
			return
		}
		select {
		case loaded <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if err := c.Connect(ctx, true); err != nil {
		return err
	}
	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
