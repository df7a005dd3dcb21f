// Package media writes files delivered by the Yomitan API into a
// collection's media folder.
package media
