package channels

// Message types carried in the "type" data field
const (
	TypeZoneBreach = "zone-breach"
	TypeEmergency  = "emergency"
	TypeAssignment = "assignment"
	TypeAlert      = "alert"
)

// Priority is the delivery urgency a message type maps to
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Style is the platform presentation for a message type
type Style struct {
	ChannelID string
	Color     string
	Priority  Priority
}

var styles = map[string]Style{
	TypeZoneBreach: {ChannelID: "zone-breach", Color: "#FF0000", Priority: PriorityHigh},
	TypeEmergency:  {ChannelID: "emergency", Color: "#FF0000", Priority: PriorityUrgent},
	TypeAssignment: {ChannelID: "assignment", Color: "#FFA500", Priority: PriorityNormal},
}

var defaultStyle = Style{ChannelID: "default", Color: "#2196F3", Priority: PriorityNormal}

// StyleFor returns the presentation for a message type
func StyleFor(msgType string) Style {
	if s, ok := styles[msgType]; ok {
		return s
	}
	return defaultStyle
}
