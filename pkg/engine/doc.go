// Package engine is the composition root that assembles the completer, the
// retriever and the question-answering façade from configuration. Frontends
// (the chat window, the one-shot ask command) hold an Engine and never build
// lower-level components themselves.
package engine
