package media

import (
	"context"
	"os"
	"strings"
	"sync"
)

type call struct {
	Name string
	Args []string
}

// stubRunner scripts tool invocations. handle is called for every run;
// outputs named by -o (yt-dlp) or the trailing path (ffmpeg) are created
// on success unless the handler returns an error.
type stubRunner struct {
	mu     sync.Mutex
	calls  []call
	handle func(name string, args []string, n int) ([]byte, error)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	s.mu.Lock()
	n := 0
	for _, c := range s.calls {
		if c.Name == name {
			n++
		}
	}
	s.calls = append(s.calls, call{Name: name, Args: append([]string(nil), args...)})
	s.mu.Unlock()

	var (
		out []byte
		err error
	)
	if s.handle != nil {
		out, err = s.handle(name, args, n)
	}
	if err != nil {
		return out, err
	}
	if path := outputPath(name, args); path != "" {
		_ = os.WriteFile(path, []byte("audio"), 0o644)
	}
	return out, nil
}

func (s *stubRunner) callsTo(name string) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func outputPath(name string, args []string) string {
	switch {
	case strings.HasSuffix(name, "yt-dlp"):
		for i, a := range args {
			if a == "-o" && i+1 < len(args) {
				return args[i+1]
			}
		}
	case strings.HasSuffix(name, "ffmpeg"):
		if len(args) > 0 {
			return args[len(args)-1]
		}
	}
	return ""
}

type countingRefresher struct {
	mu    sync.Mutex
	count int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return r.err
}

func (r *countingRefresher) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func hasArg(args []string, want ...string) bool {
	for i := 0; i+len(want) <= len(args); i++ {
		match := true
		for j, w := range want {
			if args[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
