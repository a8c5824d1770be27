package notify

// Sender delivers outbound campaign messages. Message bodies carry the
// tracking id in the `id:XXXXXX` form so a reply or form submission can be
// attributed back to the touchpoint.
type Sender interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
	SendCampaignInvite(toEmail, toName, campaignName, link, trackingID string) error
}
