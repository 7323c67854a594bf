// Package chat connects agents to a chat service.
//
// Transport streams inbound Prompts and posts replies. MatrixTransport
// implements it with mautrix: replies are threaded to the prompt that
// triggered them so a later reply-to-reply can be correlated back to the
// same agent. FormatResponse renders an agent round as the reply body.
package chat
