package store

// File is stored object metadata. ObjectKey addresses the bytes in the
// configured blob backend.
type File struct {
	Bucket      string
	ID          string
	ObjectKey   string
	ContentType string
	Size        int64
	CreatedAt   int64
}
