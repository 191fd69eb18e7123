package log

import (
	"github.com/rs/zerolog"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// RouteWarnings sends errors.Warn output through logger instead of the
// standard library logger. Pass nil to restore the default handler.
func RouteWarnings(logger Logger) {
	if logger == nil {
		sfoerrors.SetZerologWarnFunc(nil)
		return
	}
	sfoerrors.SetZerologWarnFunc(func(w error) {
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			logger.Warn(w.Error(), "warning", m)
			return
		}
		logger.Warn(w.Error())
	})
}
