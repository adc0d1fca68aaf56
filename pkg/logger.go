package lstio

type Logger interface {
	Info(message string, module string)
	Error(string)
}

var logger Logger = nopLogger{}

func SetLogger(l Logger) {
	logger = l
}

type nopLogger struct{}

func (nopLogger) Info(string, string) {}
func (nopLogger) Error(string)        {}
