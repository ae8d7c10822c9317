// Package backends defines the contract between the completion pipeline and
// the upstream conversational backends, plus the pieces both adapters share:
// the HTTP base with auth header injection, the serialized re-authentication
// guard, the SSE frame reader and history folding.
//
// Two implementations exist, in the unifiedlogin and appkey subpackages. They
// are selected by configuration at startup and used only through Backend.
package backends
