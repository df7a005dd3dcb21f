// Package audio generates pronunciation files with text-to-speech providers.
package audio
