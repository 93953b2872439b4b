// Copyright 2024 The gridloop Authors
// This file is part of the gridloop library.
//
// The gridloop library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The gridloop library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the gridloop library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// TerminalHandler writes human-readable records, colorized when the
// underlying writer is attached to a terminal.
type TerminalHandler struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
}

// NewTerminalHandler wraps w, detecting TTY-ness with go-isatty and
// upgrading Windows consoles with go-colorable.
func NewTerminalHandler(w io.Writer) *TerminalHandler {
	h := &TerminalHandler{out: w}
	if f, ok := w.(*os.File); ok {
		h.colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		if h.colorize {
			h.out = colorable.NewColorable(f)
		}
	}
	return h
}

func (h *TerminalHandler) Log(r record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	lvl := r.lvl.String()
	if h.colorize {
		if c, ok := levelColor[r.lvl]; ok {
			lvl = c.Sprint(lvl)
		}
	}

	line := fmt.Sprintf("%s [%-5s] %s", r.time.Format("2006-01-02T15:04:05.000"), lvl, r.msg)
	for i := 0; i+1 < len(r.ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", r.ctx[i], r.ctx[i+1])
	}
	line += "\n"

	if _, err := io.WriteString(h.out, line); err != nil {
		fallbackWriter(os.Stderr, r)
		return err
	}
	return nil
}

// JSONHandler writes one JSON object per record, used for piping logs
// into a collector rather than a human terminal.
type JSONHandler struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONHandler wraps w for structured, machine-parseable output.
func NewJSONHandler(w io.Writer) *JSONHandler {
	return &JSONHandler{out: w}
}

func (h *JSONHandler) Log(r record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fields := make(map[string]any, len(r.ctx)/2+3)
	fields["t"] = r.time.Format(time.RFC3339Nano)
	fields["lvl"] = r.lvl.String()
	fields["msg"] = r.msg
	for i := 0; i+1 < len(r.ctx); i += 2 {
		key := fmt.Sprintf("%v", r.ctx[i])
		fields[key] = r.ctx[i+1]
	}
	return writeJSONLine(h.out, fields)
}
