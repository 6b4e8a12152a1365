// Package notify pushes operator-facing reports out over the control
// channel. Sends are rate limited so a chatty dispatch loop cannot trip the
// control channel's own flood protection, and transport errors are logged
// rather than propagated: reporting is never allowed to fail a campaign.
package notify

import (
	"context"

	"golang.org/x/time/rate"

	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

type Service struct {
	adapter transport.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

func New(adapter transport.Adapter, ratePerSec int, log logx.Logger) *Service {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

func (s *Service) Send(ctx context.Context, to transport.ChatTarget, text string) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := s.adapter.SendText(ctx, to, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		s.log.Warn("notification send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

// SendPhoto forwards an image (pairing QR) to an operator, best-effort.
func (s *Service) SendPhoto(ctx context.Context, to transport.ChatTarget, png []byte, caption string) {
	if len(png) == 0 {
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	if err := s.adapter.SendPhoto(ctx, to, png, caption); err != nil {
		s.log.Warn("photo send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
