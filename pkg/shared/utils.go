package helpers

import (
	"io"
	"log/slog"
)

// CloseOrLog Helper function to attempt to close IO connections and log error if it fails, useful for closing on defer
func CloseOrLog(closer io.Closer) {
	err := closer.Close()
	if err != nil {
		slog.Error("Error closing I/O", "error", err)
	}
}

// DrainAndClose discards whatever is left of a response body before closing it so the
// underlying keep-alive connection can be reused
func DrainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	CloseOrLog(body)
}
