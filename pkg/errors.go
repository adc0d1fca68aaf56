package lstio

import "fmt"

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e ErrOpenFile) Unwrap() error { return e.Err }

// ErrMissingTable represents a FITS file without a required extension.
type ErrMissingTable struct {
	Filename  string
	TableName string
}

func (e ErrMissingTable) Error() string {
	return fmt.Sprintf("file %q has no %q extension", e.Filename, e.TableName)
}

// ErrShapeMismatch represents an array with an unexpected size during field
// mapping.
type ErrShapeMismatch struct {
	What     string
	Expected string
	Got      string
}

func (e ErrShapeMismatch) Error() string {
	return fmt.Sprintf("unexpected %s size: expected %s, got %s", e.What, e.Expected, e.Got)
}

// ErrMultipleRuns represents stream files from different runs given as one
// input set.
type ErrMultipleRuns struct {
	RunIDs []uint64
}

func (e ErrMultipleRuns) Error() string {
	return fmt.Sprintf("found multiple run ids in input files: %v", e.RunIDs)
}
