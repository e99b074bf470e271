package fakeserver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/omochice/fcchat/pkg/protocol"
)

// GuestLogin accepts every login. Guests are named after their session the
// way ChatRoom names them, other users keep their name. The session id sent
// back is the server session id.
func GuestLogin() Handler {
	return func(s *Session, cmd protocol.Command) {
		if cmd.Type != protocol.FCTypeLogin {
			return
		}
		user := loginName(s, cmd.Payload)
		_ = s.Send(protocol.NewPacket(protocol.FCTypeLogin, 0, s.ID, protocol.ResponseSuccess, 100000+s.ID, len(user), user))
	}
}

// loginName extracts the user from "<version>/<user>:<password>" login
// credentials, optionally behind a "<token>@" prefix. Guests are named
// after their session.
func loginName(s *Session, credentials string) string {
	if i := strings.LastIndex(credentials, "@"); i >= 0 {
		credentials = credentials[i+1:]
	}
	if i := strings.Index(credentials, "/"); i >= 0 {
		credentials = credentials[i+1:]
	}
	user, _, _ := strings.Cut(credentials, ":")
	if user == "" || user == "guest" {
		user = fmt.Sprintf("Guest%d", s.ID)
	}
	return user
}

var demoStates = []protocol.State{
	protocol.StateFreeChat,
	protocol.StateFreeChat,
	protocol.StateGroupShow,
	protocol.StateClub,
}

var demoTags = []string{"chatty", "music", "gaming", "art"}

// DemoModels answers a login with a model list of n broadcasters followed
// by their tags, the two lists a client waits for before it reports the
// models loaded.
func DemoModels(n int) Handler {
	return func(s *Session, cmd protocol.Command) {
		if cmd.Type != protocol.FCTypeLogin {
			return
		}
		rdata := []any{
			[]any{"uid", "nm", "sid", "lv", "vs", map[string]any{"u": []any{"camserv", "phase"}}, map[string]any{"m": []any{"rc", "topic"}}},
		}
		tags := make(map[string]any, n)
		for i := range n {
			uid := 1000 + i
			rdata = append(rdata, []any{
				uid, fmt.Sprintf("Model%02d", i), 5000 + i, protocol.LevelModel, int(demoStates[i%len(demoStates)]),
				1000 + i%10, "", 10 * i, "welcome to my room",
			})
			tags[strconv.Itoa(uid)] = []any{demoTags[i%len(demoTags)]}
		}
		_ = s.Send(protocol.NewPacket(protocol.FCTypeManageList, 0, s.ID, 0, protocol.ListCams, 0,
			map[string]any{"count": n, "rdata": rdata}))
		_ = s.Send(protocol.NewPacket(protocol.FCTypeManageList, 0, s.ID, 0, protocol.ListTags, 0,
			map[string]any{"rdata": tags}))
	}
}
