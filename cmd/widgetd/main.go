// Command widgetd serves the chat widget backend.
//
//	@title						Chat Widget API
//	@version					1.0
//	@description				Backend for an embeddable customer-support chat widget: per-profile message logs with delayed bot replies, visitor tracking, and a live event stream.
//	@BasePath					/api/v1
//	@schemes					http https
//	@tag.name					Messages
//	@tag.description			Conversation log, sends and reactions
//	@tag.name					Visitor
//	@tag.description			Page history, host-frame notifications and country lookup
//	@tag.name					Stream
//	@tag.description			Websocket event stream
package main

func main() {
	Execute()
}
