// Package notify delivers raised alerts outside the process.
//
// Webhook posts to Slack, Teams or a generic HTTP endpoint; Telegram sends
// to a chat via the Bot API; RedisStream appends to a Redis stream. Build
// assembles whichever of these config.AlertsConfig enables into a Multi.
package notify
