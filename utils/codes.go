package utils

import (
	"math/rand"
	"strings"

	"gorm.io/gorm"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InviteCodeLength is the length of group invite and parent-child link codes.
const InviteCodeLength = 6

// GenerateCode returns a random uppercase alphanumeric code of the given length.
func GenerateCode(length int) string {
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		sb.WriteByte(codeCharset[rand.Intn(len(codeCharset))])
	}
	return sb.String()
}

// GenerateUniqueCode generates a code and retries on collision against the
// given table/column. Gives up after a handful of attempts and returns the
// last candidate; with 36^6 possibilities that path is effectively unreachable.
func GenerateUniqueCode(db *gorm.DB, table, column string, length int) string {
	code := GenerateCode(length)
	for attempt := 0; attempt < 5; attempt++ {
		var count int64
		db.Table(table).Where(column+" = ?", code).Count(&count)
		if count == 0 {
			break
		}
		code = GenerateCode(length)
	}
	return code
}
