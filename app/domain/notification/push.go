package notification

// PushPayload is the JSON body delivered by the push gateway.
type PushPayload struct {
	SessionID         string       `json:"session_id"`
	Sender            string       `json:"sender,omitempty"`
	SenderDisplayName string       `json:"sender_display_name,omitempty"`
	EventID           string       `json:"event_id,omitempty"`
	RoomID            string       `json:"room_id,omitempty"`
	RoomName          string       `json:"room_name,omitempty"`
	Content           *PushContent `json:"content,omitempty"`
	Unread            *int         `json:"unread,omitempty"`
}

type PushContent struct {
	Body string `json:"body,omitempty"`
}

// SenderName prefers the display name over the raw sender id.
func (p *PushPayload) SenderName() string {
	if p.SenderDisplayName != "" {
		return p.SenderDisplayName
	}
	return p.Sender
}

func (p *PushPayload) IsNewMessage() bool {
	return p.SenderName() != "" && p.EventID != ""
}

func (p *PushPayload) IsReadSync() bool {
	return p.Unread != nil && *p.Unread == 0
}

func (p *PushPayload) Title() string {
	if p.RoomName != "" {
		return p.SenderName() + " wrote you in " + p.RoomName
	}
	return p.SenderName() + " wrote you"
}

func (p *PushPayload) Body() string {
	if p.Content == nil {
		return ""
	}
	return p.Content.Body
}
