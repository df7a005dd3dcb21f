// Package models lists the OpenAI models usable for the pronunciation
// fallback, so users can pick a value for speech.openai_model.
package models
