package redisrepo

import "fmt"

const ns = "tixevents:v1"

func KeyEvent(eventID string) string {
	return fmt.Sprintf("%s:event:%s", ns, eventID)
}

func KeyEventList(publicOnly bool) string {
	if publicOnly {
		return ns + ":events:public"
	}
	return ns + ":events:all"
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
