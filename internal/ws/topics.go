package ws

import (
	"strings"

	"github.com/teknowguy/autopilot-backend/internal/events"
)

// Topic names clients use when subscribing.
const (
	TopicNotifications = "notifications"
	TopicProgress      = "progress"
	TopicPosts         = "posts"
)

var topicChannels = map[string]string{
	TopicNotifications: events.ChannelNotifications,
	TopicProgress:      events.ChannelProgress,
	TopicPosts:         events.ChannelPosts,
}

// AllTopics in a stable order.
var AllTopics = []string{TopicNotifications, TopicProgress, TopicPosts}

// channelsForTopics maps topic names to bus channels, ignoring unknown ones.
// "*" or an empty list selects everything.
func channelsForTopics(topics []string) []string {
	if len(topics) == 0 {
		return append([]string(nil), events.AllChannels...)
	}
	seen := make(map[string]bool)
	var channels []string
	for _, topic := range topics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic == "*" {
			return append([]string(nil), events.AllChannels...)
		}
		if ch, ok := topicChannels[topic]; ok && !seen[ch] {
			seen[ch] = true
			channels = append(channels, ch)
		}
	}
	return channels
}

func topicForChannel(channel string) string {
	for topic, ch := range topicChannels {
		if ch == channel {
			return topic
		}
	}
	return channel
}

func parseTopics(param string) []string {
	if param == "" {
		return nil
	}
	return strings.Split(param, ",")
}

func originAllowed(allowed []string, origin string) bool {
	// Same-origin requests carry no Origin header.
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
