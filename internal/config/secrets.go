package config

import "maps"

const redacted = "***"

// RedactedConfig returns a copy of cfg with credentials masked, safe to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Server.APIKey)

	// Reference types are copied so the redacted value can be mutated freely.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Paper.Venues != nil {
		out.Paper.Venues = make(map[string]PaperVenue, len(cfg.Paper.Venues))
		for k, v := range cfg.Paper.Venues {
			v.Prices = maps.Clone(v.Prices)
			v.LotSizes = maps.Clone(v.LotSizes)
			out.Paper.Venues[k] = v
		}
	}
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
