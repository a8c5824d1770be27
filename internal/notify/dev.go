package notify

import (
	"github.com/growmark/leadcapture/pkg/logger"
)

// DevSender logs messages instead of sending them.
type DevSender struct{}

func NewDevSender() *DevSender {
	return &DevSender{}
}

func (d *DevSender) Send(toEmail, toName, subject, text, html string) (string, error) {
	logger.Info("[DEV MAIL] outbound message",
		"to", toEmail,
		"name", toName,
		"subject", subject,
		"text", text,
	)
	return "dev-message", nil
}

func (d *DevSender) SendCampaignInvite(toEmail, toName, campaignName, link, trackingID string) error {
	logger.Info("[DEV MAIL] campaign invite",
		"to", toEmail,
		"campaign", campaignName,
		"link", link,
		"tracking_id", trackingID,
	)
	return nil
}
