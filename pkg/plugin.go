package lstio

import "fmt"

// EventSource is the reader contract the host framework instantiates
// through the registry: metadata about the run plus sequential event
// access. Next returns io.EOF when the input is exhausted.
type EventSource interface {
	Subarray() *SubarrayDescription
	DataLevels() []DataLevel
	ObservationID() uint64
	Next() (*ArrayEvent, error)
	Close() error
}

// OpenFunc builds an event source for an input url.
type OpenFunc func(inputURL string) (EventSource, error)

type sourcePlugin struct {
	name       string
	compatible func(inputURL string) bool
	open       OpenFunc
}

var sourcePlugins []sourcePlugin

// RegisterSource adds a source implementation to the registry. The
// compatible probe decides whether the implementation can read a given
// input.
func RegisterSource(name string, compatible func(string) bool, open OpenFunc) {
	sourcePlugins = append(sourcePlugins, sourcePlugin{
		name:       name,
		compatible: compatible,
		open:       open,
	})
}

// OpenURL opens the input with the first registered source that declares
// itself compatible.
func OpenURL(inputURL string) (EventSource, error) {
	for _, plugin := range sourcePlugins {
		if plugin.compatible(inputURL) {
			logger.Info(fmt.Sprintf("Opening %s with %s", inputURL, plugin.name), "plugin")
			return plugin.open(inputURL)
		}
	}
	return nil, fmt.Errorf("no event source found for %s", inputURL)
}
