// Package backfill fills empty note fields with dictionary content rendered
// by the Yomitan API.
//
// A run walks the requested notes in order. For every note it collects the
// target fields that may be written, asks the API once for all of their
// handlebars, copies the media the new values reference into the
// collection's media folder and finally writes all changed notes in a
// single transaction. Fields that already hold a value are left alone
// unless replacement was asked for, globally or per target.
package backfill
