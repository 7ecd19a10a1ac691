package notes

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sanitizer normalizes records arriving from untrusted sources (the remote document, backup
// files) into the data model. All methods are total: malformed input is dropped, never reported.
type Sanitizer struct {
	chapters ChapterSet
	clock    func() time.Time
}

// NewSanitizer builds a sanitizer bound to a chapter whitelist. A nil clock defaults to time.Now.
func NewSanitizer(chapters ChapterSet, clock func() time.Time) *Sanitizer {
	if clock == nil {
		clock = time.Now
	}
	return &Sanitizer{chapters: chapters, clock: clock}
}

// Chapters exposes the whitelist used for sanitization.
func (s *Sanitizer) Chapters() ChapterSet {
	return s.chapters
}

// Now returns the sanitizer clock formatted as an ISO-8601 timestamp.
func (s *Sanitizer) Now() string {
	return FormatTimestamp(s.clock())
}

// Notes keeps whitelisted entries whose base64 field is a string and fills missing optional
// fields. Everything else, including unknown chapter keys, is dropped.
func (s *Sanitizer) Notes(raw any) NoteMap {
	clean := NoteMap{}
	object, ok := toGeneric(raw).(map[string]any)
	if !ok {
		return clean
	}
	now := s.Now()
	for _, chapter := range s.chapters.names {
		entry, ok := object[chapter].(map[string]any)
		if !ok {
			continue
		}
		payload, ok := entry["base64"].(string)
		if !ok {
			continue
		}
		clean[chapter] = Note{
			Filename:   stringOr(entry["filename"], chapter+".pdf"),
			Base64:     payload,
			UploadedAt: stringOr(entry["uploadedAt"], now),
			Size:       sizeOf(entry["size"]),
			Source:     sourceOf(entry["source"]),
		}
	}
	return clean
}

// Users keeps array entries carrying a truthy name and coerces every field to its declared type.
// Non-array input yields an empty list.
func (s *Sanitizer) Users(raw any) []UserLogin {
	clean := []UserLogin{}
	items, ok := toGeneric(raw).([]any)
	if !ok {
		return clean
	}
	now := s.Now()
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok || !truthy(entry["name"]) {
			continue
		}
		clean = append(clean, UserLogin{
			Name:        stringify(entry["name"]),
			Email:       stringOr(entry["email"], ""),
			IP:          stringOr(entry["ip"], IPNotAvailable),
			LastLoginAt: stringOr(entry["lastLoginAt"], now),
			LoginCount:  loginCountOf(entry["loginCount"]),
		})
	}
	return clean
}

// CloudState normalizes a fetched remote document. A document without a notes field is read as
// the legacy layout where the whole document is a flat notes map.
func (s *Sanitizer) CloudState(raw any) CloudState {
	generic := toGeneric(raw)
	object, isObject := generic.(map[string]any)
	if isObject && !truthy(object["notes"]) {
		return CloudState{
			Notes:     s.Notes(object),
			Users:     []UserLogin{},
			UpdatedAt: s.Now(),
		}
	}
	var notesRaw, usersRaw, updatedRaw any
	if isObject {
		notesRaw = object["notes"]
		usersRaw = object["users"]
		updatedRaw = object["updatedAt"]
	}
	return CloudState{
		Notes:     s.Notes(notesRaw),
		Users:     s.Users(usersRaw),
		UpdatedAt: stringOr(updatedRaw, s.Now()),
	}
}

// FormatTimestamp renders t the way browsers serialize dates (UTC, millisecond precision).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// toGeneric converts typed or encoded input into the shapes produced by json.Unmarshal into any.
func toGeneric(raw any) any {
	switch value := raw.(type) {
	case nil:
		return nil
	case map[string]any, []any, string, float64, bool:
		return value
	case json.RawMessage:
		return decodeGeneric(value)
	case []byte:
		return decodeGeneric(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		return decodeGeneric(encoded)
	}
}

func decodeGeneric(encoded []byte) any {
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil
	}
	return decoded
}

func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case float64:
		return typed != 0 && !math.IsNaN(typed)
	default:
		return true
	}
}

func stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

func stringOr(value any, fallback string) string {
	if !truthy(value) {
		return fallback
	}
	return stringify(value)
}

func numberOf(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return 0, false
		}
		return typed, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}
		return parsed, true
	case bool:
		if typed {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func sizeOf(value any) int64 {
	number, ok := numberOf(value)
	if !ok || number <= 0 {
		return 0
	}
	return clampInt64(number)
}

func loginCountOf(value any) int64 {
	number, ok := numberOf(value)
	if !ok || number < 1 {
		return 1
	}
	return clampInt64(number)
}

// clampInt64 truncates a non-negative number, saturating at math.MaxInt64 where int64
// conversion would overflow.
func clampInt64(number float64) int64 {
	if number >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(number)
}

func sourceOf(value any) Source {
	switch Source(stringify(value)) {
	case SourceLocal:
		return SourceLocal
	default:
		return SourceCloud
	}
}
