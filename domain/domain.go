package domain

const (
	// VideoField is the multipart form field carrying the upload.
	VideoField = "video"

	MsgUploaded = "Video uploaded successfully"
	MsgNoVideo  = "No video uploaded"

	DefaultMaxUploadBytes = 1 << 30 // 1 GiB
)

// StoreMode selects how successive uploads share the destination directory.
type StoreMode string

const (
	// ModeOverwrite writes every upload to the same path, replacing the previous one.
	ModeOverwrite StoreMode = "overwrite"
	// ModeVersioned writes every upload to a new time-stamped file.
	ModeVersioned StoreMode = "versioned"
)

func (m StoreMode) Valid() bool {
	return m == ModeOverwrite || m == ModeVersioned
}

type SavedFile struct {
	Path   string
	Size   int64
	SHA256 string
}
