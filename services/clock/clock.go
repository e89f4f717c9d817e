// Package clock is a small compiled-in service used by the CLI demo
// and the end-to-end tests.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/toolhost/toolhost/internal/handler"
)

func init() {
	handler.RegisterService(Registry())
}

// Registry builds a fresh handler registry for the clock service.
func Registry() *handler.Registry {
	r := handler.NewRegistry("clock")
	r.Tool("get_time", "clock.get_time", handler.Func(getTime))
	r.Tool("wait", "clock.wait", handler.BlockingFunc(wait))
	return r
}

func getTime(_ context.Context, args map[string]any) (any, error) {
	location := time.UTC
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
		location = loc
	}

	format := time.RFC3339
	if f, ok := args["format"].(string); ok && f != "" {
		format = f
	}

	return time.Now().In(location).Format(format), nil
}

// wait blocks for the requested number of seconds. It exists to
// exercise the blocking-handler path.
func wait(args map[string]any) (any, error) {
	seconds, ok := args["seconds"].(float64)
	if !ok {
		return nil, fmt.Errorf("\"seconds\" must be a number")
	}
	if seconds < 0 || seconds > 60 {
		return nil, fmt.Errorf("\"seconds\" must be between 0 and 60, got %v", seconds)
	}

	time.Sleep(time.Duration(seconds * float64(time.Second)))
	return map[string]any{"slept_seconds": seconds}, nil
}
