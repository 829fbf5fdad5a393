package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic prefixes.
const (
	// TopicPrefixAccess is the base for all attendance gateway topics.
	TopicPrefixAccess = "graylogic/access"

	// TopicPrefixSystem is the base for system topics shared with the
	// rest of the Gray Logic stack.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for gateway MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	id := topics.TerminalID("192.168.1.201", 4370)
//	healthTopic := topics.TerminalHealth(id)
//	// Returns: "graylogic/access/terminal/192.168.1.201_4370/health"
type Topics struct{}

// TerminalID returns the topic level that identifies a terminal.
// MQTT separators and wildcards in the host are replaced.
//
// Example: 192.168.1.201_4370
func (Topics) TerminalID(host string, port int) string {
	r := strings.NewReplacer("/", "_", "+", "_", "#", "_")
	return r.Replace(host) + "_" + strconv.Itoa(port)
}

// TerminalHealth returns the topic for a terminal's latest probe result.
// Messages are retained.
//
// Example: graylogic/access/terminal/192.168.1.201_4370/health
func (Topics) TerminalHealth(terminalID string) string {
	return fmt.Sprintf("%s/terminal/%s/health", TopicPrefixAccess, terminalID)
}

// TerminalEvent returns the topic for operation events on a terminal.
//
// Example: graylogic/access/terminal/192.168.1.201_4370/event/door.unlock
func (Topics) TerminalEvent(terminalID, action string) string {
	return fmt.Sprintf("%s/terminal/%s/event/%s", TopicPrefixAccess, terminalID, action)
}

// AllTerminalEvents returns a wildcard matching every terminal event.
//
// Example: graylogic/access/terminal/+/event/#
func (Topics) AllTerminalEvents() string {
	return TopicPrefixAccess + "/terminal/+/event/#"
}

// AllTerminalHealth returns a wildcard matching every terminal health topic.
//
// Example: graylogic/access/terminal/+/health
func (Topics) AllTerminalHealth() string {
	return TopicPrefixAccess + "/terminal/+/health"
}

// SystemStatus returns the topic for the gateway's online/offline status.
// The LWT is published here.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
