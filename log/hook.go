package log

import (
	"runtime"

	"github.com/rs/zerolog"
)

// stackHook attaches a call stack to error-level and above events.
type stackHook struct{}

func (h *stackHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level < zerolog.ErrorLevel {
		return
	}

	arr := zerolog.Arr()
	for _, f := range frames(5) {
		arr.Dict(zerolog.Dict().
			Int("line", f.Line).
			Str("file", f.File).
			Str("function", f.Function),
		)
	}
	e.Array("stack", arr)
}

type frame struct {
	Line     int
	File     string
	Function string
}

func frames(skip int) []frame {
	const depth = 64
	var pcs [depth]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return nil
	}

	callerFrames := runtime.CallersFrames(pcs[:n])
	out := make([]frame, 0, n)
	for {
		f, more := callerFrames.Next()
		out = append(out, frame{
			Line:     f.Line,
			File:     f.File,
			Function: f.Function,
		})
		if !more {
			break
		}
	}

	return out
}
