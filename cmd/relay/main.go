// Relay is a chat proxy between lightweight chat front-ends and a hosted
// generative language model.
//
// Front-ends send one message per connection, either on the line-oriented
// socket protocol or as POST /v1/chat. The relay validates the message,
// prepends the configured persona and knowledge base, calls the model with
// jittered exponential backoff on transient failures, and answers with
// exactly one reply.
//
// Usage:
//
//	# Start the relay with relay.yaml (or defaults) and RELAY_* overrides
//	relay run
//
//	# Start with a custom configuration file
//	relay run --config /etc/relay/relay.yaml
//
//	# Validate configuration without starting
//	relay run --dry-run
//
//	# Send one message to a running relay
//	relay ask "What are your opening hours?"
//
//	# Show version information
//	relay version
package main

func main() {
	Execute()
}
