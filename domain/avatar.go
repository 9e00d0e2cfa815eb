package domain

import "io"

// BinaryData is a blob handed to the ContentStore.
type BinaryData struct {
	ContentType string
	Length      int64
	Filename    string
	Body        io.Reader
}
