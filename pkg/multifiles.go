package lstio

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"golang.org/x/exp/maps"
)

// eventStream is one ordered source of raw events. It is the part of
// RawFile that MultiFiles needs.
type eventStream interface {
	Config() *CameraConfig
	NumEvents() int64
	NextEvent() (*RawEvent, error)
	Close() error
}

// MultiFiles merges the parallel stream files of one subrun into a single
// sequence ordered by event id. Every stream must belong to the same run.
type MultiFiles struct {
	streams []eventStream
	heads   []*RawEvent
	config  *CameraConfig
	nEvents int64
}

// OpenMultiFiles opens path and, when allStreams is set, its sibling
// stream files for the same run and subrun.
func OpenMultiFiles(path string, allStreams bool) (*MultiFiles, error) {
	paths, err := allStreamPaths(path, allStreams)
	if err != nil {
		return nil, err
	}
	streams := make([]eventStream, 0, len(paths))
	for _, p := range paths {
		f, err := OpenRawFile(p)
		if err != nil {
			for _, s := range streams {
				s.Close()
			}
			return nil, err
		}
		streams = append(streams, f)
	}
	m, err := newMultiFiles(streams)
	if err != nil {
		for _, s := range streams {
			s.Close()
		}
		return nil, err
	}
	return m, nil
}

func newMultiFiles(streams []eventStream) (*MultiFiles, error) {
	if len(streams) == 0 {
		return nil, errors.New("no input streams")
	}
	m := &MultiFiles{
		streams: streams,
		heads:   make([]*RawEvent, len(streams)),
		config:  streams[0].Config(),
	}
	seen := map[uint64]bool{}
	for _, s := range streams {
		seen[s.Config().ConfigurationID] = true
		m.nEvents += s.NumEvents()
	}
	if len(seen) > 1 {
		runs := maps.Keys(seen)
		slices.Sort(runs)
		return nil, ErrMultipleRuns{RunIDs: runs}
	}
	for i := range streams {
		if err := m.advance(i); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MultiFiles) advance(i int) error {
	evt, err := m.streams[i].NextEvent()
	if err != nil {
		if errors.Is(err, io.EOF) {
			m.heads[i] = nil
			return nil
		}
		return err
	}
	m.heads[i] = evt
	return nil
}

// Config returns the camera configuration of the run.
func (m *MultiFiles) Config() *CameraConfig { return m.config }

// RunID returns the run number of the merged streams.
func (m *MultiFiles) RunID() uint64 { return m.config.ConfigurationID }

// NumEvents returns the total number of events across all streams.
func (m *MultiFiles) NumEvents() int64 { return m.nEvents }

// NumStreams returns the number of merged stream files.
func (m *MultiFiles) NumStreams() int { return len(m.streams) }

// NextEvent returns the pending event with the smallest event id, or
// io.EOF once every stream is exhausted.
func (m *MultiFiles) NextEvent() (*RawEvent, error) {
	min := -1
	for i, head := range m.heads {
		if head == nil {
			continue
		}
		if min < 0 || head.EventID < m.heads[min].EventID {
			min = i
		}
	}
	if min < 0 {
		return nil, io.EOF
	}
	evt := m.heads[min]
	if err := m.advance(min); err != nil {
		return nil, err
	}
	return evt, nil
}

func (m *MultiFiles) Close() error {
	var errs []error
	for _, s := range m.streams {
		errs = append(errs, s.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing input streams: %w", err)
	}
	return nil
}
