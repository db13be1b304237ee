package utilities

import (
	"io"

	"github.com/sirupsen/logrus"
)

// maxResponseBody bounds how much of an upstream response is buffered.
const maxResponseBody = 1 << 20

func SafeClose(closer io.Closer) {
	if err := closer.Close(); err != nil {
		logrus.WithError(err).Warn("Close operation failed")
	}
}

// ReadBody reads at most 1 MiB of an upstream response body.
func ReadBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBody))
}
