package media

import "errors"

// ErrFileNotFound indicates the input path does not exist.
var ErrFileNotFound = errors.New("file not found")

// ErrNotRegular indicates the input is a directory or special file.
var ErrNotRegular = errors.New("not a regular file")

// ErrEmptyFile indicates the input has zero bytes.
var ErrEmptyFile = errors.New("file is empty")
