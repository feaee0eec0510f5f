// Package speech is a client for the Gemini speech generation REST API.
//
// A request carries a script, optional user instructions, a prebuilt voice
// and a model. The script is wrapped in a director's prompt that explains the
// inline tone tags and pronunciation hints before it is sent. The response is
// base64 encoded 16-bit PCM at 24 kHz.
package speech
