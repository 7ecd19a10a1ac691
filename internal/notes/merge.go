package notes

// TieBreak selects which side wins when both maps hold the same chapter.
type TieBreak int

const (
	// PreferLocal lets the durable local store override the remote document.
	PreferLocal TieBreak = iota
	// PreferRemote lets the remote document override local entries.
	PreferRemote
)

// String renders the policy for logs.
func (policy TieBreak) String() string {
	switch policy {
	case PreferLocal:
		return "prefer_local"
	case PreferRemote:
		return "prefer_remote"
	default:
		return "unknown"
	}
}

// Merge unions two note maps. Entries present on one side only are kept as is; for chapters
// present on both sides the policy decides, unconditionally. Timestamps are never compared.
// Neither input is modified.
func Merge(local, remote NoteMap, policy TieBreak) NoteMap {
	base, overlay := remote, local
	if policy == PreferRemote {
		base, overlay = local, remote
	}
	merged := make(NoteMap, len(base)+len(overlay))
	for chapter, note := range base {
		merged[chapter] = note
	}
	for chapter, note := range overlay {
		merged[chapter] = note
	}
	return merged
}
