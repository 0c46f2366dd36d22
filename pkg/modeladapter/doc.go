// Package modeladapter defines the interface and shared HTTP plumbing for
// text-generation adapters.
//
// It contains:
//   - [Completer] interface and embeddable [ModelAdapter] base struct with HTTP helpers, auth, token sources, and request throttling
//   - [TokenEstimator] for pre-call prompt sizing
//   - [github.com/germanamz/granitechat/pkg/modeladapter/usage]: thread-safe token usage tracker
//
// This package contains no provider-specific code. Concrete adapters live in
// separate packages under pkg/providers that embed ModelAdapter.
package modeladapter
