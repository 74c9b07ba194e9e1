package process

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// forwarderBufferSize is the initial read buffer for child output.
// Longer lines still arrive whole; the reader grows as needed.
const forwarderBufferSize = 4096

// Classify maps a line of child output to a log level.
// Lines mentioning "error" in any case are errors, everything else is info.
func Classify(text string) slog.Level {
	if strings.Contains(strings.ToLower(text), "error") {
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Forward reads r line by line until EOF or a read error, handing each
// non-empty line to sink with its classified level. Trailing CR/LF is
// trimmed. A final line without a newline is still delivered.
func Forward(r io.Reader, pid int, sink LineSink) error {
	br := bufio.NewReaderSize(r, forwarderBufferSize)
	for {
		raw, err := br.ReadString('\n')
		if text := strings.TrimRight(raw, "\r\n"); text != "" {
			sink.WriteLine(Line{
				PID:   pid,
				Level: Classify(text),
				Text:  text,
				Time:  time.Now(),
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
