package conf

import (
	"slices"

	"github.com/8gabri8/TST-bioimage/internal/privacy"
)

// Redacted returns a copy of the settings with credentials masked and
// service URLs reduced to scheme and host, for display and run manifests.
func (s *Settings) Redacted() Settings {
	c := *s
	c.Datastore.MySQL.Password = privacy.RedactSecret(c.Datastore.MySQL.Password)
	c.MQTT.Password = privacy.RedactSecret(c.MQTT.Password)
	c.MQTT.Broker = redactURL(c.MQTT.Broker)
	c.Sentry.DSN = redactURL(c.Sentry.DSN)
	c.Notify.URLs = slices.Clone(c.Notify.URLs)
	for i, u := range c.Notify.URLs {
		c.Notify.URLs[i] = redactURL(u)
	}
	return c
}

func redactURL(u string) string {
	if u == "" {
		return ""
	}
	return privacy.RedactURL(u)
}
