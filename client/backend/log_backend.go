package backend

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender writes every request URL to the log and reports success without any network I/O.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Type() string {
	return string(SenderTypeLog)
}

func (s *LogSender) Send(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.WithField("url", url).Info("Dry run, not sending track request")
	return nil
}
