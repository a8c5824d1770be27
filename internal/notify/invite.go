package notify

import (
	"fmt"

	"github.com/growmark/leadcapture/internal/tracking"
)

func inviteSubject(campaignName string) string {
	return fmt.Sprintf("You're invited: %s", campaignName)
}

func inviteText(campaignName, link, trackingID string) string {
	return fmt.Sprintf("Join us at %s!\nRegister here: %s\n\n%s",
		campaignName, link, tracking.Embed(trackingID))
}

func inviteHTML(campaignName, link, trackingID string) string {
	return fmt.Sprintf(`<p>Join us at <b>%s</b>!</p><p><a href="%s">Register here</a></p><p>%s</p>`,
		campaignName, link, tracking.Embed(trackingID))
}
