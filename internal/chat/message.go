// Package chat holds the scripted conversation that the phone preview plays
// back: the profile shown in the header and the ordered message sequence.
//
// Values in this package are treated as immutable. Sequence edits return a
// new slice and never modify their input, so a slice handed to a renderer
// stays stable while the caller keeps editing.
package chat

import "strings"

// Role identifies which side of the conversation sent a message.
type Role string

const (
	// RoleUser is the person talking to the agent (left-aligned bubbles).
	RoleUser Role = "user"
	// RoleAgent is the scripted agent (right-aligned bubbles).
	RoleAgent Role = "agent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent
}

// Message is a single chat bubble.
type Message struct {
	From Role   `json:"from" yaml:"from"`
	Text string `json:"text" yaml:"text"`
}

// Profile is the contact shown in the phone header.
type Profile struct {
	Name      string `json:"name" yaml:"name"`
	AvatarURL string `json:"avatarUrl" yaml:"avatarUrl"`
}

// DisplayName returns the profile name, or a placeholder if it is blank.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return "Your name"
}

// Script is the complete input of a playback: who is talking and what is
// said, in order. It is also the persisted and imported document shape.
type Script struct {
	Profile  Profile   `json:"profile" yaml:"profile"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// Clone returns a deep copy of s.
func (s Script) Clone() Script {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

// Equal reports whether two scripts have the same profile and messages.
func (s Script) Equal(o Script) bool {
	if s.Profile != o.Profile || len(s.Messages) != len(o.Messages) {
		return false
	}
	for i := range s.Messages {
		if s.Messages[i] != o.Messages[i] {
			return false
		}
	}
	return true
}

// DefaultScript is used when no persisted state exists.
func DefaultScript() Script {
	return Script{
		Profile: Profile{
			Name:      "MovIA Demo",
			AvatarURL: "https://i.pravatar.cc/150?img=32",
		},
		Messages: []Message{
			{From: RoleUser, Text: "Hi! Do you have a summary of the project?"},
			{From: RoleAgent, Text: "Sure, the demo shows a WhatsApp-style chat."},
			{From: RoleAgent, Text: "You can control the replay with Play/Pause and adjust the speed."},
		},
	}
}

// ExampleScript is the payload behind the "load example" action.
func ExampleScript() Script {
	return Script{
		Profile: Profile{
			Name:      "MovIA",
			AvatarURL: "https://i.pravatar.cc/150?img=68",
		},
		Messages: []Message{
			{From: RoleUser, Text: "Hi MovIA, can you show a quick demo?"},
			{From: RoleAgent, Text: "Of course! Here is an animated chat flow."},
			{From: RoleAgent, Text: "I can also import JSON and adjust the speed."},
			{From: RoleUser, Text: "Perfect, thanks."},
		},
	}
}
