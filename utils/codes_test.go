package utils

import (
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestGenerateCodeFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := GenerateCode(InviteCodeLength)
		if len(code) != InviteCodeLength {
			t.Fatalf("expected %d chars, got %q", InviteCodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeCharset, r) {
				t.Fatalf("unexpected character %q in code %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Fatalf("codes look non-random: %d distinct out of 100", len(seen))
	}
}

func TestGenerateUniqueCodeAgainstTable(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Exec("CREATE TABLE groups (id INTEGER PRIMARY KEY, invite_code TEXT)").Error; err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	code := GenerateUniqueCode(db, "groups", "invite_code", InviteCodeLength)
	if len(code) != InviteCodeLength {
		t.Fatalf("expected %d chars, got %q", InviteCodeLength, code)
	}

	db.Exec("INSERT INTO groups (invite_code) VALUES (?)", code)
	next := GenerateUniqueCode(db, "groups", "invite_code", InviteCodeLength)
	if next == code {
		t.Fatalf("expected a different code after collision, got %q twice", code)
	}
}
