package protocol

import (
	"net/url"
	"regexp"
)

// maxEmotes bounds the replacements done on a single message.
const maxEmotes = 10

var emotePattern = regexp.MustCompile(`#~(e|c|u|ue),(\w+)(\.?)(jpeg|jpg|gif|png)?,([\w\-\:\);\(\]\=\$\?\*]{0,48}),?(\d*),?(\d*)~#`)

// ParseEmotes percent-decodes msg and replaces encoded emote tokens with
// their short ":code" form.
func ParseEmotes(msg string) string {
	if decoded, err := url.PathUnescape(msg); err == nil {
		msg = decoded
	}

	for i := 0; i < maxEmotes; i++ {
		loc := emotePattern.FindStringSubmatchIndex(msg)
		if loc == nil {
			break
		}
		code := msg[loc[10]:loc[11]]
		msg = msg[:loc[0]] + ":" + code + msg[loc[1]:]
	}
	return msg
}
