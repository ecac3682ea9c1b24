package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Input validation shared by handlers and services.

var (
	monthKeyRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
	safeIDRe   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)
)

const maxNameLength = 255

// ValidMonthKey reports whether s is a strict YYYY-MM month key.
func ValidMonthKey(s string) bool {
	return monthKeyRe.MatchString(s)
}

// SanitizeID returns the id if it only contains safe characters,
// otherwise the empty string.
func SanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if !safeIDRe.MatchString(id) {
		return ""
	}
	return id
}

// SanitizeName trims whitespace and caps the length of a display name.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameLength {
		runes := []rune(name)
		name = string(runes[:maxNameLength])
	}
	return name
}

// NextMonthKey returns the month key following key ("2025-12" → "2026-01").
// Assumes key is already validated.
func NextMonthKey(key string) string {
	year, _ := strconv.Atoi(key[:4])
	month, _ := strconv.Atoi(key[5:])
	month++
	if month > 12 {
		month = 1
		year++
	}
	return fmt.Sprintf("%04d-%02d", year, month)
}

// MonthKeysInRange generates consecutive month keys from start up to end
// (exclusive). A nil end generates at most maxMonths keys.
func MonthKeysInRange(start string, end string, maxMonths int) []string {
	var months []string
	key := start
	for count := 0; count < maxMonths; count++ {
		if end != "" && key >= end {
			break
		}
		months = append(months, key)
		key = NextMonthKey(key)
	}
	return months
}
