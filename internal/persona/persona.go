// Package persona builds the system instruction sent when a live session opens.
package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const baseInstruction = `You are Ama, a conversational companion focused on AI and cybersecurity. You are warm, motivational and intellectually engaging, with a friendly, calm and adaptable personality that follows the user's mood and goals. Use a global, neutral tone without local slang.

Speak at a moderate pace. Ask questions often to keep the conversation going, lead when it helps and follow the user's lead when they want to steer. Break complex ideas into simple explanations and short stories.

You may discuss any topic, including medical, legal or financial questions, with empathy and clarity while being as accurate and helpful as you can.

Capabilities:
- You can place phone calls when the user asks you to call a number. Use the 'makePhoneCall' tool and confirm that you are calling.
- You cannot answer incoming calls for the user, but you can help them prepare for a call or draft a reply.

Keep responses short enough to be spoken naturally.`

const contactGuidance = `If the user asks to call someone by name (for example "Call Mom"), look the number up in the contact book above and pass it to the 'makePhoneCall' tool. If the name is not listed, ask the user for the number.`

const incomingCallNote = `If the user asks you to answer an incoming call, explain that device security restrictions prevent you from picking up calls for them, and offer to help them prepare or draft a text reply instead.`

// Contact is one read-only contact book entry
type Contact struct {
	Name        string `yaml:"name"`
	PhoneNumber string `yaml:"phoneNumber"`
}

// Instruction returns the system instruction with the contact book appended
func Instruction(contacts []Contact) string {
	var b strings.Builder
	b.WriteString(baseInstruction)

	if len(contacts) > 0 {
		b.WriteString("\n\nUSER'S CONTACT BOOK:\n")
		for _, c := range contacts {
			fmt.Fprintf(&b, "%s: %s\n", c.Name, c.PhoneNumber)
		}
		b.WriteString("\n")
		b.WriteString(contactGuidance)
	}

	b.WriteString("\n\n")
	b.WriteString(incomingCallNote)
	return b.String()
}

// LoadContacts reads a YAML list of contacts. An empty path yields no contacts.
// Entries without a name or number are skipped.
func LoadContacts(path string) ([]Contact, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("contacts file %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read contacts file: %w", err)
	}

	var raw []Contact
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse contacts file: %w", err)
	}

	contacts := make([]Contact, 0, len(raw))
	for _, c := range raw {
		c.Name = strings.TrimSpace(c.Name)
		c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)
		if c.Name == "" || c.PhoneNumber == "" {
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}
