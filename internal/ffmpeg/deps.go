package ffmpeg

import (
	"os"
	"os/exec"
)

// ---------------------------------------------------------------------------
// Interfaces - local to this package, following Go idiom
// ---------------------------------------------------------------------------

// fileStatter abstracts os.Stat.
type fileStatter interface {
	Stat(name string) (os.FileInfo, error)
}

// envProvider abstracts environment and path lookup operations.
type envProvider interface {
	Getenv(key string) string
	LookPath(file string) (string, error)
}

// workspaceFS abstracts the filesystem calls a Session makes.
type workspaceFS interface {
	MkdirTemp(dir, pattern string) (string, error)
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	MkdirAll(path string, perm os.FileMode) error
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to standard library
// ---------------------------------------------------------------------------

var (
	_ fileStatter = osFS{}
	_ workspaceFS = osFS{}
	_ envProvider = osEnvProvider{}
)

type osFS struct{}

func (osFS) Stat(name string) (os.FileInfo, error)         { return os.Stat(name) }
func (osFS) MkdirTemp(dir, pattern string) (string, error) { return os.MkdirTemp(dir, pattern) }
func (osFS) RemoveAll(path string) error                   { return os.RemoveAll(path) }
func (osFS) Rename(oldpath, newpath string) error          { return os.Rename(oldpath, newpath) }
func (osFS) MkdirAll(path string, perm os.FileMode) error  { return os.MkdirAll(path, perm) }

type osEnvProvider struct{}

func (osEnvProvider) Getenv(key string) string             { return os.Getenv(key) }
func (osEnvProvider) LookPath(file string) (string, error) { return exec.LookPath(file) }
