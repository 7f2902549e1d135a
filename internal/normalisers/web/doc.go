// Package web normalises crawled HTML pages into the canonical
// representation the ingest pipeline works on: a plain-text stream
// with stable character offsets, an ordered heading outline, and the
// content images positioned within that stream.
//
// Boilerplate (navigation, footers, scripts) is removed before
// extraction and the content container is chosen in priority order
// <main>, <article>, <body>. URL canonicalisation lives here too so
// that crawler and normaliser agree on page identity.
package web
