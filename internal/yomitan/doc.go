// Package yomitan is a client for the yomitan-api companion server, which
// renders Yomitan's Anki handlebars for a term over local HTTP.
package yomitan
