package log

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.ErrorStackFieldName = StacktraceKey
	zerolog.ErrorStackMarshaler = marshalStack
}

// marshalStack extracts the stack recorded by cockroachdb/errors so that
// Error logs carry the origin of the failure, not the logging call site.
func marshalStack(err error) interface{} {
	if err == nil {
		return nil
	}
	if st := errors.GetReportableStackTrace(err); st != nil && len(st.Frames) > 0 {
		frames := make([]string, 0, len(st.Frames))
		// ReportableStackTrace lists the innermost frame last.
		for i := len(st.Frames) - 1; i >= 0; i-- {
			f := st.Frames[i]
			frames = append(frames, f.Function+" "+f.Filename+":"+strconv.Itoa(f.Lineno))
		}
		return frames
	}
	details := errors.GetSafeDetails(err).SafeDetails
	if len(details) > 0 {
		return details[0]
	}
	return nil
}
