package types

// FileFingerprint records what a file looked like when its chunks were last
// committed. It is used to detect change without diffing content.
type FileFingerprint struct {
	RelativePath string `json:"relative_path"`
	ContentHash  string `json:"content_hash"`
	Size         int64  `json:"size"`
}

// Matches reports whether two fingerprints describe the same content
func (f FileFingerprint) Matches(other FileFingerprint) bool {
	return f.ContentHash == other.ContentHash && f.Size == other.Size
}
