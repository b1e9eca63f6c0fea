// Package command defines the command envelope and the typed payloads of
// every repository command.
//
// Commands express intent. They are validated and normalized here, then
// decided against projected state by the engine. Payloads that touch a
// content stream can be copied onto another stream, which is how a
// workspace replays its history during rebase and selective publish.
package command
