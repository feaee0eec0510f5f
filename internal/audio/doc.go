// Package audio plays sample buffers through the local audio device.
//
// The Engine owns a single playback node (a rate-controlled, gain-scaled
// Source feeding a backend Output) and converts between buffer time and
// wall-clock time using an anchor:
//
//	anchor  = now - offset/effectiveRate
//	elapsed = (now - anchor) * effectiveRate
//
// The Tracker samples the Engine once per display frame to publish
// progress and to detect the natural end of playback.
package audio
