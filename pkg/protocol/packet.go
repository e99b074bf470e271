package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Packet is a single decoded message from the chat server.
// Packets are never modified after construction.
type Packet struct {
	Type       FCType
	From       int
	To         int
	Arg1       int
	Arg2       int
	PayloadLen int
	// Payload is nil, a string, or decoded JSON (map[string]any, []any or a
	// scalar) with numbers normalized to int64/float64.
	Payload any

	cache *packetCache
}

type packetCache struct {
	textOnce sync.Once
	text     string
	hasText  bool
}

// NewPacket builds a packet from already decoded parts.
func NewPacket(t FCType, from, to, arg1, arg2, payloadLen int, payload any) *Packet {
	return &Packet{
		Type:       t,
		From:       from,
		To:         to,
		Arg1:       arg1,
		Arg2:       arg2,
		PayloadLen: payloadLen,
		Payload:    payload,
		cache:      &packetCache{},
	}
}

// PayloadMap returns the payload when it is a JSON object.
func (p *Packet) PayloadMap() (map[string]any, bool) {
	m, ok := p.Payload.(map[string]any)
	return m, ok
}

// PayloadString returns the payload when it is raw text.
func (p *Packet) PayloadString() (string, bool) {
	s, ok := p.Payload.(string)
	return s, ok
}

// AboutID returns the user id of the entity this packet is about.
func (p *Packet) AboutID() (int, bool) {
	id := -1
	switch p.Type {
	case FCTypeAddFriend, FCTypeAddIgnore, FCTypeJoinChan, FCTypeStatus, FCTypeChatFlash, FCTypeZBan:
		id = p.Arg1
	case FCTypeSessionState, FCTypeListChan:
		id = p.Arg2
	case FCTypeUsernameLookup, FCTypeNewsItem, FCTypePMesg, FCTypeClubShow:
		id = p.From
	case FCTypeGuestCount, FCTypeTokenInc, FCTypeCMesg, FCTypeBanChan:
		id = p.To
	case FCTypeRoomData:
		if m, ok := p.PayloadMap(); ok {
			if model, ok := m["model"].(int64); ok {
				id = int(model)
			}
		}
	}
	if id == -1 {
		return 0, false
	}
	return ToUserID(id), true
}

// Text returns the chat text of CMESG, PMESG and TOKENINC packets with
// emote tokens replaced by their short codes.
func (p *Packet) Text() (string, bool) {
	if p.cache == nil {
		return p.text()
	}
	p.cache.textOnce.Do(func() {
		p.cache.text, p.cache.hasText = p.text()
	})
	return p.cache.text, p.cache.hasText
}

func (p *Packet) text() (string, bool) {
	switch p.Type {
	case FCTypeCMesg, FCTypePMesg, FCTypeTokenInc:
	default:
		return "", false
	}
	m, ok := p.PayloadMap()
	if !ok {
		return "", false
	}
	msg, ok := m["msg"].(string)
	if !ok {
		return "", false
	}
	return ParseEmotes(msg), true
}

// ChatString renders chat, PM and tip packets the way they read in a chat
// window.
func (p *Packet) ChatString() (string, bool) {
	m, ok := p.PayloadMap()
	if !ok {
		return "", false
	}
	switch p.Type {
	case FCTypeCMesg, FCTypePMesg:
		text, ok := p.Text()
		if !ok {
			return "", false
		}
		nm, _ := m["nm"].(string)
		return nm + ": " + text, true
	case FCTypeTokenInc:
		tokens, ok := m["tokens"].(int64)
		if !ok {
			return "", false
		}
		tipper, ok1 := nameAt(m["u"])
		model, ok2 := nameAt(m["m"])
		if !ok1 || !ok2 {
			return "", false
		}
		s := fmt.Sprintf("%s has tipped %s %d tokens", tipper, model, tokens)
		if text, ok := p.Text(); ok {
			return s + ": '" + text + "'", true
		}
		return s + ".", true
	default:
		return "", false
	}
}

// nameAt reads the name out of a [uid, sid, name] triple.
func nameAt(v any) (string, bool) {
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return "", false
	}
	s, ok := list[2].(string)
	return s, ok
}

// String returns a one-line representation for logs.
func (p *Packet) String() string {
	payload := ""
	if p.Payload != nil {
		if b, err := json.Marshal(p.Payload); err == nil {
			payload = " " + string(b)
		} else {
			payload = fmt.Sprintf(" %v", p.Payload)
		}
	}
	return fmt.Sprintf("%s from=%d to=%d arg1=%d arg2=%d len=%d%s",
		p.Type, p.From, p.To, p.Arg1, p.Arg2, p.PayloadLen, payload)
}
