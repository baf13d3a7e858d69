// Package ws streams the fixture and alert snapshot to dashboard clients
// over WebSocket. Every message is {"event":"snapshot","data":{...}}.
package ws
