package config

import "maps"

// Redacted returns a copy of c with credentials replaced by the placeholder
// "***", for logging the active configuration. Slices and maps are copied so
// the result shares no mutable state with c.
func (c *Config) Redacted() Config {
	out := *c

	redact(&out.Venues.UniswapAPIKey)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.TelegramToken)

	out.Pairs = make([]PairConfig, len(c.Pairs))
	for i, p := range c.Pairs {
		p.Venues = append([]string(nil), p.Venues...)
		out.Pairs[i] = p
	}
	out.Venues.Disabled = append([]string(nil), c.Venues.Disabled...)
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), c.Notify.Events...)

	out.RateLimit.Endpoints = maps.Clone(c.RateLimit.Endpoints)
	out.Arbitrage.FeeBps = maps.Clone(c.Arbitrage.FeeBps)
	out.Gas.Static = maps.Clone(c.Gas.Static)
	out.Cache.VenueDurations = maps.Clone(c.Cache.VenueDurations)
	out.Cache.Multipliers = make(map[string]map[string]float64, len(c.Cache.Multipliers))
	for mode, m := range c.Cache.Multipliers {
		out.Cache.Multipliers[mode] = maps.Clone(m)
	}
	out.Venues.SolanaMints = maps.Clone(c.Venues.SolanaMints)
	out.Venues.BaseTokens = maps.Clone(c.Venues.BaseTokens)
	out.Venues.CoinGeckoIDs = maps.Clone(c.Venues.CoinGeckoIDs)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
