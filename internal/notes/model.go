package notes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Source tags the provenance of the copy of a note currently held.
type Source string

const (
	// SourceLocal marks a note read from the durable local store.
	SourceLocal Source = "local"
	// SourceCloud marks a note that came from, or was pushed to, the shared remote document.
	SourceCloud Source = "cloud"
)

// IPNotAvailable replaces a login address that could not be resolved.
const IPNotAvailable = "Not available"

const maxChapterLength = 190

var (
	// ErrUnknownChapter indicates that a chapter name is not part of the configured whitelist.
	ErrUnknownChapter = errors.New("notes: unknown chapter")
	// ErrInvalidChapterSet indicates that a whitelist is empty or contains unusable names.
	ErrInvalidChapterSet = errors.New("notes: invalid chapter set")
)

// Note models one stored PDF for a chapter. The chapter itself is the key of NoteMap.
type Note struct {
	Filename   string `json:"filename"`
	Base64     string `json:"base64"`
	UploadedAt string `json:"uploadedAt"`
	Size       int64  `json:"size"`
	Source     Source `json:"source"`
}

// WithSource returns a copy of the note tagged with the provided source.
func (n Note) WithSource(source Source) Note {
	n.Source = source
	return n
}

// NoteMap maps chapter names to their notes.
type NoteMap map[string]Note

// Clone returns a shallow copy that can be mutated independently.
func (m NoteMap) Clone() NoteMap {
	cloned := make(NoteMap, len(m))
	for chapter, note := range m {
		cloned[chapter] = note
	}
	return cloned
}

// Chapters returns the map keys in lexical order.
func (m NoteMap) Chapters() []string {
	chapters := make([]string, 0, len(m))
	for chapter := range m {
		chapters = append(chapters, chapter)
	}
	sort.Strings(chapters)
	return chapters
}

// UserLogin is one entry of the usage log, keyed by (Name, Email).
type UserLogin struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	IP          string `json:"ip"`
	LastLoginAt string `json:"lastLoginAt"`
	LoginCount  int64  `json:"loginCount"`
}

// SameIdentity reports whether both records share the (name, email) natural key.
func (u UserLogin) SameIdentity(other UserLogin) bool {
	return u.Name == other.Name && u.Email == other.Email
}

// CloudState is the single shared remote document.
type CloudState struct {
	Notes     NoteMap     `json:"notes"`
	Users     []UserLogin `json:"users"`
	UpdatedAt string      `json:"updatedAt"`
}

// DefaultChapters lists the curriculum chapters accepted when no whitelist is configured.
var DefaultChapters = []string{
	"Matter in Our Surroundings",
	"Is Matter Around Us Pure",
	"Atoms and Molecules",
	"Structure of the Atom",
	"The Fundamental Unit of Life",
	"Tissues",
	"Motion",
	"Force and Laws of Motion",
	"Gravitation",
	"Work and Energy",
	"Sound",
	"Improvement in Food Resources",
}

// ChapterSet is an ordered, validated chapter whitelist.
type ChapterSet struct {
	names  []string
	lookup map[string]struct{}
}

// NewChapterSet validates raw names and returns a ChapterSet preserving their order.
func NewChapterSet(rawNames []string) (ChapterSet, error) {
	if len(rawNames) == 0 {
		return ChapterSet{}, fmt.Errorf("%w: empty", ErrInvalidChapterSet)
	}
	set := ChapterSet{
		names:  make([]string, 0, len(rawNames)),
		lookup: make(map[string]struct{}, len(rawNames)),
	}
	for _, rawName := range rawNames {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return ChapterSet{}, fmt.Errorf("%w: blank chapter name", ErrInvalidChapterSet)
		}
		if len(name) > maxChapterLength {
			return ChapterSet{}, fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidChapterSet, name, maxChapterLength)
		}
		if _, exists := set.lookup[name]; exists {
			return ChapterSet{}, fmt.Errorf("%w: duplicate chapter %q", ErrInvalidChapterSet, name)
		}
		set.lookup[name] = struct{}{}
		set.names = append(set.names, name)
	}
	return set, nil
}

// DefaultChapterSet returns the whitelist built from DefaultChapters.
func DefaultChapterSet() ChapterSet {
	set, err := NewChapterSet(DefaultChapters)
	if err != nil {
		panic(err)
	}
	return set
}

// Names returns the whitelist in configured order.
func (s ChapterSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Contains reports whether the chapter is whitelisted.
func (s ChapterSet) Contains(chapter string) bool {
	_, ok := s.lookup[chapter]
	return ok
}

// Validate returns the trimmed chapter name or ErrUnknownChapter.
func (s ChapterSet) Validate(rawChapter string) (string, error) {
	chapter := strings.TrimSpace(rawChapter)
	if !s.Contains(chapter) {
		return "", fmt.Errorf("%w: %q", ErrUnknownChapter, rawChapter)
	}
	return chapter, nil
}
