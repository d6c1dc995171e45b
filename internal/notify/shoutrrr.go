package notify

import (
	"context"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/privacy"
)

// sender is the part of the shoutrrr router used to deliver messages
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// ShoutrrrNotifier sends run summaries to every configured shoutrrr URL
type ShoutrrrNotifier struct {
	sender sender
}

// NewShoutrrrNotifier validates the URLs and builds a single sender for all of them
func NewShoutrrrNotifier(urls []string, timeout time.Duration) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.New(privacy.WrapError(err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "create_notification_sender").
			Context("urls", len(urls)).
			Build()
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrNotifier{sender: router}, nil
}

// NotifyRun sends the run summary. The router applies its own timeout, so ctx
// is only checked before sending.
func (n *ShoutrrrNotifier) NotifyRun(ctx context.Context, s RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	params.SetTitle(s.Title())

	var failed []error
	for _, err := range n.sender.Send(s.Message(), &params) {
		if err != nil {
			failed = append(failed, privacy.WrapError(err))
		}
	}
	if len(failed) > 0 {
		return errors.New(errors.Join(failed...)).
			Category(errors.CategoryNotification).
			Context("run_id", s.RunID).
			Context("failed", len(failed)).
			Build()
	}

	GetLogger().Info("run notification sent", logger.String("run_id", s.RunID))
	return nil
}
