package protocol

import (
	"math/rand"
	"strings"
)

const channelAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"

const (
	ChannelMinLen = 32
	ChannelMaxLen = 64
)

// GenChannelName returns a random session ID between min and max characters
// long. It is not a secret, only unique enough to not collide on one bridge.
func GenChannelName(min, max int) string {
	if min < 1 {
		min = 1
	}

	if max < min {
		max = min
	}

	n := min + rand.Intn(max-min+1)

	var b strings.Builder
	b.Grow(n)

	for i := 0; i < n; i++ {
		b.WriteByte(channelAlphabet[rand.Intn(len(channelAlphabet))])
	}

	return b.String()
}
