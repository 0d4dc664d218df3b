package models

import (
	"strings"
)

// ChannelPrefix is the single channel namespace recognized by this service.
// Channel names double as broker-side routing keys, so the format is exact
// and case-sensitive.
const ChannelPrefix = "workflow:"

// ChannelName identifies a broker channel scoped to a single workflow.
type ChannelName string

// String returns the wire form of the channel name.
func (c ChannelName) String() string { return string(c) }

// ChannelForWorkflow maps a workflow id to its channel name. The mapping is
// deterministic and injective: one workflow, one channel, for the lifetime of
// the workflow.
func ChannelForWorkflow(workflowID string) ChannelName {
	return ChannelName(ChannelPrefix + workflowID)
}

// ParseChannel is the inverse of ChannelForWorkflow. It returns ok=false for
// any name outside the workflow namespace or containing characters outside
// the workflow id alphabet, so a client cannot construct a colliding or
// ambiguous name.
func ParseChannel(name string) (workflowID string, ok bool) {
	if !strings.HasPrefix(name, ChannelPrefix) {
		return "", false
	}
	id := name[len(ChannelPrefix):]
	if !ValidWorkflowID(id) {
		return "", false
	}
	return id, true
}

// ValidWorkflowID reports whether id consists solely of the allowed workflow
// identifier alphabet (lowercase UUID characters). Empty ids are invalid.
func ValidWorkflowID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}
