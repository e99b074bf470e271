package fakeserver

import (
	"fmt"
	"sync"

	"github.com/omochice/fcchat/pkg/protocol"
)

// ChatRoom relays chat between the sessions that joined the same channel.
// Joins and parts are announced to the room and chat is echoed to every
// member, the sender included.
type ChatRoom struct {
	mu    sync.Mutex
	names map[*Session]string
	rooms map[int]map[*Session]struct{}
}

// NewChatRoom creates an empty ChatRoom.
func NewChatRoom() *ChatRoom {
	return &ChatRoom{
		names: make(map[*Session]string),
		rooms: make(map[int]map[*Session]struct{}),
	}
}

// Handle is a Handler.
func (r *ChatRoom) Handle(s *Session, cmd protocol.Command) {
	switch cmd.Type {
	case protocol.FCTypeLogin:
		r.login(s, cmd.Payload)
	case protocol.FCTypeJoinChan:
		if cmd.Arg2&protocol.ChanPart != 0 {
			r.part(s, cmd.Arg1)
			return
		}
		r.join(s, cmd.Arg1)
	case protocol.FCTypeCMesg:
		r.chat(s, cmd.To, cmd.Payload)
	}
}

// Members returns how many sessions are in room.
func (r *ChatRoom) Members(room int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

func (r *ChatRoom) login(s *Session, credentials string) {
	r.mu.Lock()
	r.names[s] = loginName(s, credentials)
	r.mu.Unlock()
}

func (r *ChatRoom) name(s *Session) string {
	if nm, ok := r.names[s]; ok {
		return nm
	}
	return fmt.Sprintf("Guest%d", s.ID)
}

func (r *ChatRoom) join(s *Session, room int) {
	r.mu.Lock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[room] = members
	}
	members[s] = struct{}{}
	p := protocol.NewPacket(protocol.FCTypeJoinChan, 0, s.ID, room, protocol.ChanJoin, 0,
		map[string]any{"sid": s.ID, "nm": r.name(s)})
	recipients := r.membersLocked(room)
	r.mu.Unlock()

	r.send(room, recipients, p)
}

func (r *ChatRoom) part(s *Session, room int) {
	r.mu.Lock()
	if _, ok := r.rooms[room][s]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.rooms[room], s)
	p := protocol.NewPacket(protocol.FCTypeJoinChan, 0, s.ID, room, protocol.ChanPart, 0,
		map[string]any{"sid": s.ID, "nm": r.name(s)})
	recipients := append(r.membersLocked(room), s)
	r.mu.Unlock()

	r.send(room, recipients, p)
}

func (r *ChatRoom) chat(s *Session, room int, msg string) {
	r.mu.Lock()
	if _, ok := r.rooms[room][s]; !ok {
		r.mu.Unlock()
		return
	}
	p := protocol.NewPacket(protocol.FCTypeCMesg, s.ID, room, 0, 0, 0,
		map[string]any{"sid": s.ID, "nm": r.name(s), "msg": msg})
	recipients := r.membersLocked(room)
	r.mu.Unlock()

	r.send(room, recipients, p)
}

func (r *ChatRoom) membersLocked(room int) []*Session {
	out := make([]*Session, 0, len(r.rooms[room]))
	for s := range r.rooms[room] {
		out = append(out, s)
	}
	return out
}

// send delivers p and drops members whose session closed.
func (r *ChatRoom) send(room int, recipients []*Session, p *protocol.Packet) {
	for _, s := range recipients {
		if err := s.Send(p); err != nil {
			r.mu.Lock()
			delete(r.rooms[room], s)
			delete(r.names, s)
			r.mu.Unlock()
		}
	}
}
