// Package plugins provides building blocks concrete integrations assemble
// their capabilities from: a generic OAuth2 authorization code capability
// and identity resolvers that map issued tokens onto provider accounts.
package plugins
