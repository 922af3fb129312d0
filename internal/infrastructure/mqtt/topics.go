package mqtt

import "fmt"

// TopicPrefix is the root of every coolpanel topic.
const TopicPrefix = "coolpanel"

// Topics builds the topics owned by one panel instance. The instance is
// identified by the broker client ID so several hosts can share a broker.
//
//	topics := mqtt.NewTopics("desk-pc")
//	topics.Telemetry() // "coolpanel/desk-pc/telemetry"
type Topics struct {
	base string
}

// NewTopics returns the topic builder for the given client ID.
func NewTopics(clientID string) Topics {
	return Topics{base: fmt.Sprintf("%s/%s", TopicPrefix, clientID)}
}

// Telemetry carries one JSON snapshot per publish interval.
//
// Example: coolpanel/desk-pc/telemetry
func (t Topics) Telemetry() string {
	return t.base + "/telemetry"
}

// State carries the retained mode view (mode, media path, brightness).
//
// Example: coolpanel/desk-pc/state
func (t Topics) State() string {
	return t.base + "/state"
}

// Command accepts control requests in the same JSON shape as the socket.
//
// Example: coolpanel/desk-pc/command
func (t Topics) Command() string {
	return t.base + "/command"
}

// Response carries the reply to each request received on Command.
//
// Example: coolpanel/desk-pc/response
func (t Topics) Response() string {
	return t.base + "/response"
}

// Status carries the retained online/offline status and the LWT.
//
// Example: coolpanel/desk-pc/status
func (t Topics) Status() string {
	return t.base + "/status"
}

// All matches every coolpanel topic on the broker.
//
// Pattern: coolpanel/#
func (Topics) All() string {
	return TopicPrefix + "/#"
}
