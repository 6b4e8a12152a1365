package campaign

import (
	"context"
	"time"

	"blastbot/internal/channel"
	"blastbot/pkg/logx"
)

// trackDelivery schedules a fire-and-forget delivery observation for one
// successfully sent message. It holds the concrete *Campaign, so a late
// observation updates the correct (possibly already archived) record rather
// than whatever occupies the current slot. Query failures are logged and
// swallowed: delivery accounting is advisory.
func (m *Manager) trackDelivery(c *Campaign, id channel.MessageID, delay time.Duration) {
	if delay <= 0 {
		delay = 30 * time.Second
	}
	go func() {
		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		ack, err := m.client.AckLevel(ctx, id)
		if err != nil {
			m.log.Debug("delivery check failed",
				logx.String("campaign", c.ID()),
				logx.String("msg", string(id)),
				logx.Err(err))
			return
		}
		if ack >= channel.AckDelivered {
			c.markDelivered()
			m.refreshRecord(c)
		}
	}()
}
