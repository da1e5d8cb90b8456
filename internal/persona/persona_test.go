package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInstruction_WithoutContacts(t *testing.T) {
	instr := Instruction(nil)

	if !strings.HasPrefix(instr, "You are Ama") {
		t.Errorf("Expected base instruction first, got %q", instr[:20])
	}
	if strings.Contains(instr, "CONTACT BOOK") {
		t.Error("Expected no contact book without contacts")
	}
	if !strings.Contains(instr, "incoming call") {
		t.Error("Expected incoming call note")
	}
}

func TestInstruction_WithContacts(t *testing.T) {
	instr := Instruction([]Contact{
		{Name: "Mom", PhoneNumber: "555-0100"},
		{Name: "Sam", PhoneNumber: "555-0199"},
	})

	if !strings.Contains(instr, "USER'S CONTACT BOOK:\nMom: 555-0100\nSam: 555-0199\n") {
		t.Errorf("Expected contact lines, got %q", instr)
	}
	if !strings.Contains(instr, "makePhoneCall") {
		t.Error("Expected lookup guidance to reference makePhoneCall")
	}
}

func TestLoadContacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	content := `
- name: Mom
  phoneNumber: "555-0100"
- name: "  "
  phoneNumber: "555-0101"
- name: Sam
  phoneNumber: " 555-0199 "
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write contacts file: %v", err)
	}

	contacts, err := LoadContacts(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(contacts) != 2 {
		t.Fatalf("Expected 2 contacts, got %d", len(contacts))
	}
	if contacts[1].Name != "Sam" || contacts[1].PhoneNumber != "555-0199" {
		t.Errorf("Expected trimmed Sam entry, got %+v", contacts[1])
	}
}

func TestLoadContacts_EmptyPath(t *testing.T) {
	contacts, err := LoadContacts("")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if contacts != nil {
		t.Errorf("Expected no contacts, got %v", contacts)
	}
}

func TestLoadContacts_Errors(t *testing.T) {
	if _, err := LoadContacts(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("name: [unclosed"), 0o600)
	if _, err := LoadContacts(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
