// Package harvest provides a streaming delivery engine for scrapers.
// Items are produced page by page, queued for background delivery to an
// ingest API, and the whole run stays controllable from outside the process:
// an operator can pause, resume, or stop it between items.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency or concern (e.g., stream/, control/, sqlite/).
package harvest
