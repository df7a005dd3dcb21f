// Package processor contains the orchestration behind every command. It
// resolves the configuration, opens the Anki collection, checks that the
// Yomitan API answers, backs the collection up and hands the notes to the
// backfill runner. It also serves as the backend of the GUI.
package processor
